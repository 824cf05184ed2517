package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when a file is neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	headerReplacer = strings.NewReplacer(" ", "_", ".", "_", "-", "_", "[", "_", "]", "_", "*", "_", "\t", "_")
)

// Table is a parsed upload: sanitized headers, the raw header cells and non-empty data rows
// padded to the header width.
type Table struct {
	Headers    []string
	RawHeaders []string
	Rows       [][]string
	HeaderRow  int
}

// RowNumber returns the 1-based line of a data row in the source file.
func (t Table) RowNumber(idx int) int {
	return t.HeaderRow + idx + 2
}

// ReadTable parses a CSV or XLSX payload, chosen by the file extension. When headerRow is
// nil the first non-empty row is the header.
func ReadTable(fileName string, payload []byte, headerRow *int) (Table, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv":
		records, err = readCSV(payload)
	case ".xlsx":
		records, err = readExcel(payload)
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Table{}, err
	}
	return normalizeTable(records, headerRow)
}

func readCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

func normalizeTable(records [][]string, headerRow *int) (Table, error) {
	if len(records) == 0 {
		return Table{}, errors.New("no rows found in file")
	}

	headerIndex := -1
	if headerRow != nil {
		if *headerRow < 0 || *headerRow >= len(records) {
			return Table{}, fmt.Errorf("header row index %d out of range", *headerRow)
		}
		if blank(records[*headerRow]) {
			return Table{}, fmt.Errorf("selected header row %d is empty", *headerRow+1)
		}
		headerIndex = *headerRow
	} else {
		for idx, row := range records {
			if !blank(row) {
				headerIndex = idx
				break
			}
		}
	}
	if headerIndex < 0 {
		return Table{}, errors.New("header row could not be detected")
	}

	raw := records[headerIndex]
	table := Table{
		Headers:    sanitizeHeaders(raw),
		RawHeaders: make([]string, len(raw)),
		HeaderRow:  headerIndex,
	}
	for i, value := range raw {
		table.RawHeaders[i] = strings.TrimSpace(value)
	}
	for _, row := range records[headerIndex+1:] {
		if blank(row) {
			continue
		}
		table.Rows = append(table.Rows, padRow(row, len(table.Headers)))
	}
	return table, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// sanitizeHeaders turns header cells into field names usable in conditions and diff paths.
// Empty headers become column_N and repeats get a numeric suffix.
func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := headerReplacer.Replace(strings.TrimSpace(value))
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1
		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
