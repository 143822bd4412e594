package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-audit-backend/internal/fleet"
)

func newTestSynthesizer(src Source, opts Options) *Synthesizer {
	live := fleet.NewLiveness(40 * time.Second)
	live.Now = func() time.Time { return reportAt }
	return NewSynthesizer(src, live, fleet.NewReconciler(fleet.DefaultReconcileParams, zap.NewNop()), opts, zap.NewNop())
}

// sampleSource is two regions, an empty facility and one device without a location.
func sampleSource() *fakeSource {
	d1 := liveDevice("d1", "EMEA", "DACH", "Munich")
	d1.CPUScore = ptrFloat(120)
	d4 := liveDevice("d4", "APAC", "ANZ", "Sydney")
	d4.CPUScore = ptrFloat(50)

	return &fakeSource{
		facilities: []fleet.Facility{
			{Name: "Sydney", Subregion: "ANZ", Region: "APAC"},
			{Name: "Munich", Subregion: "DACH", Region: "EMEA"},
			{Name: "Oslo", Subregion: "Nordics", Region: "EMEA"},
			{Name: "Vienna", Subregion: "DACH", Region: "EMEA"},
		},
		devices: []fleet.Device{
			d1,
			staleDevice("d2", "EMEA", "DACH", "Munich"),
			liveDevice("d6", "EMEA", "DACH", "Munich"),
			liveDevice("d3", "EMEA", "DACH", "Vienna"),
			d4,
			staleDevice("d5", "", "", ""),
		},
		history: map[string][]fleet.HistoryEntry{},
	}
}

func TestSynthesize_GlobalRegions(t *testing.T) {
	s := newTestSynthesizer(sampleSource(), Options{})

	wb, err := s.Synthesize(context.Background(), Request{Scope: ScopeGlobal, Defective: []string{"d3"}, At: reportAt})
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	sheet := wb.Sheets[0]
	assert.Equal(t, SheetRegions, sheet.Name)
	assert.Equal(t, []string{"Region", "Sub-Regions", "Facilities", "Devices", "Online", "Offline", "Defective", "Performance Score"}, sheet.Columns)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, Row{
		ColRegion: "APAC", ColSubregions: 1, ColFacilities: 1, ColDevices: 1,
		ColOnline: 1, ColOffline: 0, ColDefective: 0, ColScore: 50.0,
	}, sheet.Rows[0])

	emea := sheet.Rows[1]
	assert.Equal(t, "EMEA", emea[ColRegion])
	assert.Equal(t, 2, emea[ColSubregions], "DACH plus the device-less Nordics")
	assert.Equal(t, 3, emea[ColFacilities])
	assert.Equal(t, 4, emea[ColDevices])
	assert.Equal(t, 2, emea[ColOnline])
	assert.Equal(t, 1, emea[ColOffline])
	assert.Equal(t, 1, emea[ColDefective])
	assert.Equal(t, fleet.MaxDisplayScore, emea[ColScore])

	unknown := sheet.Rows[2]
	assert.Equal(t, fleet.UnknownKey, unknown[ColRegion])
	assert.Equal(t, 1, unknown[ColOffline])
	assert.Equal(t, 0.0, unknown[ColScore])
}

func TestSynthesize_RegionIncludesFacilitiesWithoutDevices(t *testing.T) {
	s := newTestSynthesizer(sampleSource(), Options{})

	wb, err := s.Synthesize(context.Background(), Request{Scope: ScopeRegion, Selection: Selection{Regions: []string{"EMEA"}}})
	require.NoError(t, err)

	sheet, ok := wb.Sheet(SheetFacilities)
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	var names []any
	for _, r := range sheet.Rows {
		names = append(names, r[ColFacility])
	}
	assert.Equal(t, []any{"Munich", "Oslo", "Vienna"}, names)
	assert.Equal(t, Row{
		ColFacility: "Oslo", ColSubregion: "Nordics", ColDevices: 0,
		ColOnline: 0, ColOffline: 0, ColDefective: 0, ColScore: 0.0,
	}, sheet.Rows[1])
	assert.Equal(t, 3, sheet.Rows[0][ColDevices])
}

func TestSynthesize_RegionRequiresRegion(t *testing.T) {
	s := newTestSynthesizer(sampleSource(), Options{})

	_, err := s.Synthesize(context.Background(), Request{Scope: ScopeRegion})
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestSynthesize_FacilitySkipsEmptyFacility(t *testing.T) {
	s := newTestSynthesizer(sampleSource(), Options{})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope:     ScopeFacility,
		Selection: Selection{Facilities: []string{"Oslo", "Munich"}},
		Defective: []string{"d6"},
	})
	require.NoError(t, err)

	summary, ok := wb.Sheet(SheetSummary)
	require.True(t, ok)
	assert.Equal(t, []Row{
		{ColMetric: "Total Devices", ColCount: 3},
		{ColMetric: "Online", ColCount: 1},
		{ColMetric: "Offline", ColCount: 1},
		{ColMetric: "Defective", ColCount: 1},
	}, summary.Rows)

	inventory, ok := wb.Sheet(SheetInventory)
	require.True(t, ok)
	assert.Equal(t, inventoryColumns, inventory.Columns)
	require.Len(t, inventory.Rows, 3)
	assert.Equal(t, Row{
		ColDeviceName: "Device d1",
		ColDeviceID:   "d1",
		ColFacility:   "Munich",
		ColStatus:     "Online",
		ColLoad:       fleet.MaxDisplayScore,
		ColLastSeen:   "2024-05-02 11:59:55",
		ColAppUsage:   "",
	}, inventory.Rows[0])
	assert.Equal(t, "Offline", inventory.Rows[1][ColStatus])
	assert.Equal(t, "Defective", inventory.Rows[2][ColStatus])
}

func TestSynthesize_CustomSkipsEmptyFacility(t *testing.T) {
	s := newTestSynthesizer(sampleSource(), Options{})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope:     ScopeCustom,
		Selection: Selection{Facilities: []string{"Oslo", "Munich"}},
	})
	require.NoError(t, err)

	sheet, ok := wb.Sheet(SheetAudit)
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)
	for _, r := range sheet.Rows {
		assert.Equal(t, "Munich", r[ColFacility])
		assert.Equal(t, SourceLive, r[ColSource])
		assert.Equal(t, "2024-05-02", r[ColDate])
	}
}

func TestSynthesize_CustomIsolatesFailingUnits(t *testing.T) {
	src := sampleSource()
	src.failFacility = map[string]error{"Vienna": errUpstream}
	src.stallFacility = map[string]bool{"Sydney": true}
	s := newTestSynthesizer(src, Options{FetchTimeout: 50 * time.Millisecond, MaxConcurrency: 2})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope:     ScopeCustom,
		Selection: Selection{Facilities: []string{"Vienna", "Sydney", "Munich"}},
	})
	require.NoError(t, err)

	sheet, _ := wb.Sheet(SheetAudit)
	require.Len(t, sheet.Rows, 3)
	for _, r := range sheet.Rows {
		assert.Equal(t, "Munich", r[ColFacility])
	}
	assert.Equal(t, 3, src.deviceCalls)
}

func TestSynthesize_CustomEmptySelection(t *testing.T) {
	src := sampleSource()
	src.failFacility = map[string]error{"Munich": errUpstream}
	s := newTestSynthesizer(src, Options{})

	_, err := s.Synthesize(context.Background(), Request{
		Scope:     ScopeCustom,
		Selection: Selection{Facilities: []string{"Munich", "Oslo"}},
	})
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = s.Synthesize(context.Background(), Request{
		Scope:     ScopeCustom,
		Selection: Selection{DeviceIDs: []string{"nope"}},
	})
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestSynthesize_CustomHistoryNewestFirst(t *testing.T) {
	src := sampleSource()
	src.history["d1"] = []fleet.HistoryEntry{
		{DeviceID: "d1", Date: time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 49800},
		{DeviceID: "d1", Date: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 50000, AverageScore: ptrFloat(61.24)},
		{DeviceID: "d1", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 50500},
	}
	s := newTestSynthesizer(src, Options{})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope: ScopeCustom,
		Selection: Selection{
			DeviceIDs: []string{"d1"},
			From:      time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
			To:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	sheet, _ := wb.Sheet(SheetAudit)
	assert.Equal(t, auditColumns, sheet.Columns)
	require.Len(t, sheet.Rows, 2)

	assert.Equal(t, "2024-05-01", sheet.Rows[0][ColDate])
	assert.Equal(t, 500.0, sheet.Rows[0][ColRuntime])
	assert.Equal(t, "2024-04-30", sheet.Rows[1][ColDate])
	assert.Equal(t, 200.0, sheet.Rows[1][ColRuntime], "prior day outside the range still anchors the delta")
	assert.Equal(t, 61.2, sheet.Rows[1][ColScore])
	assert.Equal(t, SourceHistory, sheet.Rows[1][ColSource])
	assert.Equal(t, "EMEA", sheet.Rows[1][ColRegion])
	assert.Equal(t, "DACH", sheet.Rows[1][ColSubregion])
}

func deviceSource() *fakeSource {
	src := sampleSource()
	d := liveDevice("d7", "EMEA", "DACH", "Munich")
	d.RuntimeMinutes = 30
	d.AppSeconds = map[string]float64{"browser": 1008, "editor": 600}
	d.CPUScore = ptrFloat(42.26)
	src.devices = append(src.devices, d)
	src.history["d7"] = []fleet.HistoryEntry{
		{DeviceID: "d7", Date: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 10, AppSeconds: map[string]float64{"browser": 400}},
		{DeviceID: "d7", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 20, AppSeconds: map[string]float64{"browser": 1000}},
	}
	return src
}

func TestSynthesize_DeviceDropsImmaterialApps(t *testing.T) {
	s := newTestSynthesizer(deviceSource(), Options{})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope:        ScopeDevice,
		Selection:    Selection{DeviceIDs: []string{"d7"}},
		At:           reportAt,
		IncludeToday: true,
	})
	require.NoError(t, err)

	var names []string
	for _, sh := range wb.Sheets {
		names = append(names, sh.Name)
	}
	assert.Equal(t, []string{"Profile", "App Usage", "History"}, names)

	apps, _ := wb.Sheet(SheetAppUsage)
	assert.Equal(t, []Row{
		{ColApplication: "editor", ColSeconds: 600.0, ColDuration: "10m 00s"},
	}, apps.Rows, "browser moved 8 seconds since yesterday")

	profile, _ := wb.Sheet(SheetProfile)
	require.Len(t, profile.Rows, 9)
	assert.Equal(t, Row{ColField: ColStatus, ColValue: "Online"}, profile.Rows[5])
	assert.Equal(t, Row{ColField: ColScore, ColValue: 42.3}, profile.Rows[7])

	history, _ := wb.Sheet(SheetHistory)
	require.Len(t, history.Rows, 3)
	assert.Equal(t, Row{
		ColDate: "2024-05-02", ColRuntime: 30.0, ColAppUsage: "editor: 10m 00s", ColScore: 42.3, ColSource: SourceLive,
	}, history.Rows[0])
	assert.Equal(t, Row{
		ColDate: "2024-05-01", ColRuntime: 20.0, ColAppUsage: "browser: 10m 00s", ColScore: 42.3, ColSource: SourceHistory,
	}, history.Rows[1])
	assert.Equal(t, "browser: 6m 40s", history.Rows[2][ColAppUsage])
}

func TestSynthesize_DeviceSelectionErrors(t *testing.T) {
	s := newTestSynthesizer(deviceSource(), Options{})
	ctx := context.Background()

	_, err := s.Synthesize(ctx, Request{Scope: ScopeDevice, Selection: Selection{DeviceIDs: []string{"d1", "d7"}}})
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = s.Synthesize(ctx, Request{Scope: ScopeDevice, Selection: Selection{DeviceIDs: []string{"ghost"}}})
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = s.Synthesize(ctx, Request{Scope: "planet"})
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestParseScope(t *testing.T) {
	sc, err := ParseScope(" Custom ")
	require.NoError(t, err)
	assert.Equal(t, ScopeCustom, sc)

	_, err = ParseScope("")
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestSynthesize_DeviceLiveUsageIgnoresRangeEnd(t *testing.T) {
	src := sampleSource()
	d := liveDevice("d9", "EMEA", "DACH", "Munich")
	d.RuntimeMinutes = 50600
	d.AppSeconds = map[string]float64{"browser": 100000}
	src.devices = append(src.devices, d)
	src.history["d9"] = []fleet.HistoryEntry{
		{DeviceID: "d9", Date: time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 40000, AppSeconds: map[string]float64{"browser": 60000}},
		{DeviceID: "d9", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 50500, AppSeconds: map[string]float64{"browser": 97000}},
	}
	s := newTestSynthesizer(src, Options{})

	want := []Row{{ColApplication: "browser", ColSeconds: 3000.0, ColDuration: "50m 00s"}}
	for _, to := range []time.Time{{}, time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)} {
		wb, err := s.Synthesize(context.Background(), Request{
			Scope:     ScopeDevice,
			Selection: Selection{DeviceIDs: []string{"d9"}, To: to},
			At:        reportAt,
		})
		require.NoError(t, err)

		apps, _ := wb.Sheet(SheetAppUsage)
		assert.Equal(t, want, apps.Rows, "to=%s", to)
	}

	// The History sheet still honors the range.
	wb, err := s.Synthesize(context.Background(), Request{
		Scope:     ScopeDevice,
		Selection: Selection{DeviceIDs: []string{"d9"}, To: time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)},
		At:        reportAt,
	})
	require.NoError(t, err)
	history, _ := wb.Sheet(SheetHistory)
	require.Len(t, history.Rows, 1)
	assert.Equal(t, "2024-04-20", history.Rows[0][ColDate])
}

func TestSynthesize_CustomLiveFallbackIgnoresRangeEnd(t *testing.T) {
	src := sampleSource()
	d := liveDevice("d9", "EMEA", "DACH", "Munich")
	d.RuntimeMinutes = 50600
	src.devices = append(src.devices, d)
	src.history["d9"] = []fleet.HistoryEntry{
		{DeviceID: "d9", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), RuntimeMinutes: 50500},
	}
	s := newTestSynthesizer(src, Options{})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope: ScopeCustom,
		Selection: Selection{
			DeviceIDs: []string{"d9"},
			From:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			To:        time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
		},
		At: reportAt,
	})
	require.NoError(t, err)

	sheet, _ := wb.Sheet(SheetAudit)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, SourceLive, sheet.Rows[0][ColSource])
	assert.Equal(t, 100.0, sheet.Rows[0][ColRuntime])
}

func TestSynthesize_ScoreFallbackAcrossUpstreamFields(t *testing.T) {
	src := sampleSource()
	d := liveDevice("d8", "EMEA", "DACH", "Munich")
	d.AverageScore = ptrFloat(64.04)
	d.CPUScore = ptrFloat(91)
	src.devices = append(src.devices, d)
	src.history["d8"] = []fleet.HistoryEntry{
		{DeviceID: "d8", Date: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), AverageScore: ptrFloat(58)},
		{DeviceID: "d8", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	s := newTestSynthesizer(src, Options{})

	wb, err := s.Synthesize(context.Background(), Request{
		Scope: ScopeDevice, Selection: Selection{DeviceIDs: []string{"d8"}}, At: reportAt,
	})
	require.NoError(t, err)

	profile, _ := wb.Sheet(SheetProfile)
	assert.Equal(t, Row{ColField: ColScore, ColValue: 64.0}, profile.Rows[7], "averageScore outranks cpuScore")

	history, _ := wb.Sheet(SheetHistory)
	require.Len(t, history.Rows, 2)
	assert.Equal(t, 91.0, history.Rows[0][ColScore], "unscored day falls back to cpuScore")
	assert.Equal(t, 58.0, history.Rows[1][ColScore])
}
