package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"bibmerge/internal"
	"bibmerge/internal/util"
)

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}

// ExportIssuesToXLSX writes an issue log as a review sheet, one row per
// issue entry with its problems joined by newlines.
func ExportIssuesToXLSX(issues []internal.Issue, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{"row", "source", "title", "isbn", "identifiers", "publisher", "material_type", "problem_count", "problems"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, issue := range issues {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		source := issue.Source
		if source == "" {
			source = strings.Join(issue.Sources, " -> ")
		}
		set(1, i+1)
		set(2, source)
		set(3, util.Deref(issue.Title))
		set(4, util.Deref(issue.ISBN))
		set(5, strings.Join(issue.Record, ", "))
		set(6, util.Deref(issue.Publisher))
		set(7, util.Deref(issue.MaterialType))
		set(8, len(issue.Issues))
		set(9, strings.Join(issue.Issues, "\n"))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
