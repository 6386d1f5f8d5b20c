package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var importHeader = []string{"file_name", "file_url", "policy_template_id"}

// ErrBadFile marks import files that cannot be parsed at all, as opposed
// to files with some invalid rows.
var ErrBadFile = errors.New("bad import file")

// ParseRows reads an import file into rows plus per-row validation
// errors. The format comes from the file extension: .xlsx or .csv, both
// with a file_name,file_url,policy_template_id header.
func ParseRows(fileName string, r io.Reader) ([]Row, []RowError, error) {
	var (
		records [][]string
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".xlsx":
		records, err = readXLSX(r)
	case ".csv":
		records, err = readCSV(r)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported format %q, want .xlsx or .csv", ErrBadFile, ext)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	rows, rowErrs, err := buildRows(records)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	return rows, rowErrs, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("xlsx has no sheets")
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return records, nil
}

func buildRows(records [][]string) ([]Row, []RowError, error) {
	if len(records) == 0 {
		return nil, nil, errors.New("import file has no header row")
	}
	if err := checkHeader(records[0]); err != nil {
		return nil, nil, err
	}

	var (
		rows    []Row
		rowErrs []RowError
	)
	for i, rec := range records[1:] {
		idx := i + 1

		// Pad short rows so trailing empty cells read as blanks.
		for len(rec) < len(importHeader) {
			rec = append(rec, "")
		}
		name := strings.TrimSpace(rec[0])
		url := strings.TrimSpace(rec[1])
		tplStr := strings.TrimSpace(rec[2])

		if name == "" && url == "" && tplStr == "" {
			continue // blank row, common at the end of spreadsheets
		}
		if name == "" {
			rowErrs = append(rowErrs, RowError{Index: idx, Message: "file_name is empty"})
			continue
		}
		if url == "" {
			rowErrs = append(rowErrs, RowError{Index: idx, Message: "file_url is empty"})
			continue
		}
		tplID, err := uuid.Parse(tplStr)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: idx, Message: fmt.Sprintf("bad policy_template_id %q", tplStr)})
			continue
		}

		rows = append(rows, Row{
			Index:            idx,
			FileName:         name,
			FileURL:          url,
			PolicyTemplateID: tplID,
		})
	}
	return rows, rowErrs, nil
}

func checkHeader(header []string) error {
	if len(header) < len(importHeader) {
		return fmt.Errorf("header must be %s", strings.Join(importHeader, ","))
	}
	for i, want := range importHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != want {
			return fmt.Errorf("header column %d is %q, want %q", i+1, strings.TrimSpace(header[i]), want)
		}
	}
	return nil
}
