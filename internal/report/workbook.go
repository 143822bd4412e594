package report

// Sheet names.
const (
	SheetRegions    = "Regions"
	SheetFacilities = "Facilities"
	SheetSummary    = "Summary"
	SheetInventory  = "Inventory"
	SheetProfile    = "Profile"
	SheetAppUsage   = "App Usage"
	SheetHistory    = "History"
	SheetAudit      = "Audit"
)

// Column names. Consumers read these verbatim.
const (
	ColRegion      = "Region"
	ColSubregion   = "Sub-Region"
	ColSubregions  = "Sub-Regions"
	ColFacility    = "Facility"
	ColFacilities  = "Facilities"
	ColDevices     = "Devices"
	ColOnline      = "Online"
	ColOffline     = "Offline"
	ColDefective   = "Defective"
	ColScore       = "Performance Score"
	ColMetric      = "Metric"
	ColCount       = "Count"
	ColDeviceName  = "Device Name"
	ColDeviceID    = "Device ID"
	ColStatus      = "Status"
	ColLoad        = "Load"
	ColLastSeen    = "Last Seen"
	ColAppUsage    = "App Usage"
	ColField       = "Field"
	ColValue       = "Value"
	ColApplication = "Application"
	ColSeconds     = "Seconds"
	ColDuration    = "Duration"
	ColDate        = "Date"
	ColRuntime     = "Runtime Minutes"
	ColSource      = "Source"
)

// Row sources.
const (
	SourceHistory = "history"
	SourceLive    = "live"
)

var (
	regionColumns    = []string{ColRegion, ColSubregions, ColFacilities, ColDevices, ColOnline, ColOffline, ColDefective, ColScore}
	facilityColumns  = []string{ColFacility, ColSubregion, ColDevices, ColOnline, ColOffline, ColDefective, ColScore}
	summaryColumns   = []string{ColMetric, ColCount}
	inventoryColumns = []string{ColDeviceName, ColDeviceID, ColFacility, ColStatus, ColLoad, ColLastSeen, ColAppUsage}
	profileColumns   = []string{ColField, ColValue}
	appUsageColumns  = []string{ColApplication, ColSeconds, ColDuration}
	historyColumns   = []string{ColDate, ColRuntime, ColAppUsage, ColScore, ColSource}
	auditColumns     = []string{ColRegion, ColSubregion, ColFacility, ColDeviceName, ColDeviceID, ColDate, ColRuntime, ColAppUsage, ColScore, ColSource}
)

// Row is one line of a sheet keyed by column name.
type Row map[string]any

// Sheet is a named table with a fixed column order.
type Sheet struct {
	Name    string   `json:"sheetName"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Workbook is the ordered set of sheets a report produces.
type Workbook struct {
	Scope  Scope   `json:"scope"`
	Sheets []Sheet `json:"sheets"`
}

// RowCount sums the rows of all sheets.
func (w *Workbook) RowCount() int {
	n := 0
	for _, s := range w.Sheets {
		n += len(s.Rows)
	}
	return n
}

// Sheet returns the named sheet, if present.
func (w *Workbook) Sheet(name string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

func newSheet(name string, columns []string) Sheet {
	return Sheet{Name: name, Columns: columns, Rows: []Row{}}
}
