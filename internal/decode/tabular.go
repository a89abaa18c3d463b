package decode

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"bibmerge/internal"
	"bibmerge/internal/util"
)

// ReadTabularFile decodes a spreadsheet export (xlsx or csv) into one
// FieldMap per data row, keyed by the header row.
func ReadTabularFile(path string) ([]internal.FieldMap, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(blob)
	case ".csv":
		return ReadCSV(bytes.NewReader(blob))
	default:
		return nil, fmt.Errorf("unsupported tabular file: %s", path)
	}
}

// ReadXLSX reads the first sheet of a workbook. Cell values are taken as
// displayed, the way a spreadsheet export shows them.
func ReadXLSX(content []byte) ([]internal.FieldMap, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rowsToFieldMaps(rows), nil
}

func ReadCSV(r io.Reader) ([]internal.FieldMap, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows := [][]string{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, row)
	}
	return rowsToFieldMaps(rows), nil
}

func rowsToFieldMaps(rows [][]string) []internal.FieldMap {
	headerIdx := -1
	for i, row := range rows {
		if !isBlankRow(row) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	headers := make([]string, len(rows[headerIdx]))
	seen := map[string]struct{}{}
	for i, h := range rows[headerIdx] {
		h = util.NormalizeSpaces(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := seen[h]; dup || h == "" {
			continue
		}
		seen[h] = struct{}{}
		headers[i] = h
	}

	out := make([]internal.FieldMap, 0, len(rows)-headerIdx-1)
	for _, row := range rows[headerIdx+1:] {
		if isBlankRow(row) {
			continue
		}
		fm := internal.FieldMap{}
		for i, cell := range row {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			fm[headers[i]] = cell
		}
		out = append(out, fm)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
