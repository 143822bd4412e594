package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// WriteXLSX renders wb as a spreadsheet: one worksheet per sheet, with the column
// names as the header row.
func WriteXLSX(wb *Workbook, w io.Writer) error {
	if wb == nil || len(wb.Sheets) == 0 {
		return errors.New("workbook has no sheets")
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, sheet := range wb.Sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return fmt.Errorf("failed to name sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet, header); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet, headerStyle int) error {
	cols := make([]any, len(sheet.Columns))
	for i, c := range sheet.Columns {
		cols[i] = c
	}
	if err := f.SetSheetRow(sheet.Name, "A1", &cols); err != nil {
		return fmt.Errorf("failed to write header of %q: %w", sheet.Name, err)
	}
	if len(sheet.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(sheet.Columns), 1)
		_ = f.SetCellStyle(sheet.Name, "A1", last, headerStyle)
	}

	for r, row := range sheet.Rows {
		values := make([]any, len(sheet.Columns))
		for i, c := range sheet.Columns {
			values[i] = row[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", r+1, sheet.Name, err)
		}
	}
	return nil
}
