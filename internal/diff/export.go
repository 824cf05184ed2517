package diff

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{"path", "current", "other", "changed"}

// WriteCSV writes one line per leaf. Cells hold the full rendering, never the collapsed text.
func WriteCSV(w io.Writer, report *Report, renderer Renderer) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range renderer.Rows(report) {
		record := []string{row.Path, row.Current.Full, row.Other.Full, strconv.FormatBool(row.Changed)}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", row.Path, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteXLSX writes the report as a single-sheet workbook with changed rows highlighted.
func WriteXLSX(w io.Writer, report *Report, renderer Renderer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Diff"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	changedStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFF2CC"}},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create changed style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return fmt.Errorf("create body style: %w", err)
	}

	header := []any{"path", labelOr(report.Current.Label, "current"), labelOr(report.Other.Label, "other"), "changed"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range renderer.Rows(report) {
		line := i + 2
		start, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		end, err := excelize.CoordinatesToCellName(4, line)
		if err != nil {
			return err
		}
		values := []any{row.Path, row.Current.Full, row.Other.Full, row.Changed}
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("write row %s: %w", row.Path, err)
		}
		style := bodyStyle
		if row.Changed {
			style = changedStyle
		}
		if err := f.SetCellStyle(sheet, start, end, style); err != nil {
			return fmt.Errorf("style row %s: %w", row.Path, err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "C", 48); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
