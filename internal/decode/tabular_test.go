package decode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Title/Subtitle", "Publisher", "Material Type", "Subject"},
		{"Cat", "Acme", "Book", "Animals"},
		{},
		{"Dog", "", "Book", "Pets"},
	})
	rows, err := ReadXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}
	if rows[0]["Title/Subtitle"] != "Cat" || rows[0]["Subject"] != "Animals" {
		t.Fatalf("row0=%v", rows[0])
	}
	if _, ok := rows[1]["Publisher"]; ok {
		t.Fatalf("blank cell must be absent: %v", rows[1])
	}
}

func TestReadCSV(t *testing.T) {
	in := "Title,Publisher,Total Copies\nCat,Acme,3\n,,\nDog,Beta,\n"
	rows, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}
	if got := rows[0].Get("Total Copies"); got == nil || *got != "3" {
		t.Fatalf("copies=%v", got)
	}
	if rows[1].Get("Total Copies") != nil {
		t.Fatal("expected absent copies")
	}
}
