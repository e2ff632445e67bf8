// Package xlsx renders staged segments as a spreadsheet for download.
package xlsx

import (
	"bytes"
	"fmt"
	"time"

	"sleepstage-service/internal/sleepstage"

	"github.com/xuri/excelize/v2"
)

// SheetName is the name of the single sheet written by WriteSegments.
const SheetName = "Segments"

// Header is the header row of the segments sheet.
var Header = []string{"Start", "End", "Stage", "Minutes", "Depth"}

const timeLayout = "2006-01-02 15:04:05"

// WriteSegments returns an .xlsx workbook with one row per segment below a
// bold, frozen header row. An empty input produces a header-only sheet.
func WriteSegments(segments []sleepstage.Segment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SheetName); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, h := range Header {
		if err := setCell(f, col+1, 1, h); err != nil {
			return nil, err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, s := range segments {
		row := i + 2
		values := []any{
			s.Start.Format(timeLayout),
			s.End.Format(timeLayout),
			string(s.Stage),
			s.Duration().Round(time.Second).Minutes(),
			s.Stage.Depth(),
		}
		for col, v := range values {
			if err := setCell(f, col+1, row, v); err != nil {
				return nil, fmt.Errorf("failed to set cell at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(SheetName, cell, value)
}
