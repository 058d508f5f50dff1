// Package export renders test cases as CSV or XLSX documents.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tildaslashalef/unitforge/internal/extractor"
)

// ErrUnknownFormat is returned for formats other than csv and xlsx
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an export document type
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet that holds the test cases
const SheetName = "Test Cases"

// StatusPending is written to the Status column of every spreadsheet row
const StatusPending = "Pending"

// CSVColumns is the canonical CSV header
var CSVColumns = []string{"id", "function_name", "description", "input_data", "expected_output", "type", "test_code"}

// SheetColumns is the spreadsheet header row
var SheetColumns = []string{"Test ID", "Function Name", "Description", "Input Data", "Expected Result", "Type", "Status"}

var sheetColumnWidths = []float64{12, 32, 48, 32, 40, 12, 12}

// ParseFormat accepts csv or xlsx, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download name for the format
func (f Format) Filename() string {
	return "test_cases." + string(f)
}

// Write renders cases in the given format
func Write(w io.Writer, format Format, cases []extractor.TestCase) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, cases)
	case FormatXLSX:
		return WriteXLSX(w, cases)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteCSV writes the header and one record per case. An empty slice yields the header only.
func WriteCSV(w io.Writer, cases []extractor.TestCase) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVColumns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, tc := range cases {
		record := []string{tc.ID, tc.FunctionName, tc.Description, tc.InputData, tc.ExpectedOutput, tc.Type, tc.TestCode}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv record %s: %w", tc.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a bold, frozen header row
func WriteXLSX(w io.Writer, cases []extractor.TestCase) error {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with one sheet named Sheet1
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(SheetColumns))
	for i, c := range SheetColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header row: %w", err)
	}

	for i, tc := range cases {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{tc.ID, tc.FunctionName, tc.Description, tc.InputData, tc.ExpectedOutput, tc.Type, StatusPending}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := styleSheet(f, len(cases)); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func styleSheet(f *excelize.File, rows int) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(SheetColumns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	if rows > 0 {
		wrapStyle, err := f.NewStyle(&excelize.Style{
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err != nil {
			return fmt.Errorf("creating body style: %w", err)
		}
		bottom, err := excelize.CoordinatesToCellName(len(SheetColumns), rows+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, "A2", bottom, wrapStyle); err != nil {
			return fmt.Errorf("styling body: %w", err)
		}
	}

	for i, width := range sheetColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("setting column width: %w", err)
		}
	}

	return f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
