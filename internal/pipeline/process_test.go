package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"bibmerge/internal"
	"bibmerge/internal/config"
	"bibmerge/internal/decode"
	"bibmerge/internal/logger"
	"bibmerge/internal/storage"
)

const primaryCSV = "Title/Subtitle,Publisher,Material Type,Subject,Author,ISBN,Publication Year\n" +
	"Cat,Acme,Book,Animals,,,\n" +
	"Cat,Acme,Book,Pets,,,\n" +
	"Dog,Acme,Book,Animals,Ann,111,2020\n"

const supplementaryCSV = "Title,Publisher,Material Type,Standard Number,LCCN,Total Copies,Copies Available,Copies Checked Out,Copies Lost\n" +
	"dog,acme,book,,2001,3,2,1,0\n"

func writeFile(t *testing.T, path string, blob []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixtureConfig(t *testing.T) config.Config {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Config{
		DBPath:                   filepath.Join(tmp, "library.db"),
		OutputDir:                filepath.Join(tmp, "out"),
		IssuesDir:                filepath.Join(tmp, "issues"),
		TabularPrimaryPath:       filepath.Join(tmp, "in", "primary.csv"),
		TabularSupplementaryPath: filepath.Join(tmp, "in", "supplementary.csv"),
		MarcDir:                  filepath.Join(tmp, "in", "MARC"),
		OnixSourceAPath:          filepath.Join(tmp, "in", "a.xml"),
		OnixSourceAName:          "LEEANDLOW",
		OnixSourceBPath:          filepath.Join(tmp, "in", "b.xml"),
		OnixSourceBName:          "LERNER",
		PipelineParallel:         true,
		ExportIssuesXLSX:         true,
	}

	writeFile(t, cfg.TabularPrimaryPath, []byte(primaryCSV))
	writeFile(t, cfg.TabularSupplementaryPath, []byte(supplementaryCSV))

	good := append(decode.EncodeMarc(completeMarc("Book One", "ABC123")), decode.EncodeMarc(completeMarc("Book Two", "ABC-123"))...)
	writeFile(t, filepath.Join(cfg.MarcDir, "batch1.mrc"), good)
	writeFile(t, filepath.Join(cfg.MarcDir, "nested", "batch2.mrc"), decode.EncodeMarc(completeMarc("Book Three", "XYZ")))
	writeFile(t, filepath.Join(cfg.MarcDir, "broken.mrc"), []byte("00042 definitely not iso 2709"))

	writeFile(t, cfg.OnixSourceAPath, []byte(referenceFeed))
	writeFile(t, cfg.OnixSourceBPath, []byte(shortFeed))
	return cfg
}

func openService(t *testing.T, cfg config.Config) (*ProcessingService, *storage.DB) {
	t.Helper()
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewProcessingService(db, cfg, logger.Nop()), db
}

func count(t *testing.T, db *storage.DB, collection string) int {
	t.Helper()
	n, err := db.CountDocuments(collection)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunAllPersistsEveryPipeline(t *testing.T) {
	cfg := fixtureConfig(t)
	svc, db := openService(t, cfg)

	reports, err := svc.RunAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 3 {
		t.Fatalf("reports=%d", len(reports))
	}

	if got := count(t, db, internal.CollectionBooksCSV); got != 2 {
		t.Fatalf("books_csv=%d", got)
	}
	if got := count(t, db, internal.CollectionBooksMARC); got != 2 {
		t.Fatalf("books_marc=%d", got)
	}
	if got := count(t, db, internal.CollectionMARCIssues); got != 1 {
		t.Fatalf("marcIssuesLog=%d", got)
	}
	if got := count(t, db, internal.CollectionBooksONIX); got != 2 {
		t.Fatalf("books_onix=%d", got)
	}

	catalog := reports[1]
	if catalog.Counts.Skipped != 1 || catalog.Counts.Rejected != 1 || catalog.Counts.Input != 3 {
		t.Fatalf("catalog counts=%+v", catalog.Counts)
	}

	blob, err := os.ReadFile(filepath.Join(cfg.OutputDir, "mergedCSV.json"))
	if err != nil {
		t.Fatal(err)
	}
	var records []internal.TabularRecord
	if err := json.Unmarshal(blob, &records); err != nil {
		t.Fatal(err)
	}
	if *records[1].LCCN != "2001" || records[1].Copies.Total != 3 {
		t.Fatalf("dog=%+v", records[1])
	}

	for _, name := range []string{"csvIssuesLog", "marcIssuesLog", "onixIssuesLog"} {
		if _, err := os.Stat(filepath.Join(cfg.IssuesDir, name+".json")); err != nil {
			t.Fatal(err)
		}
		if _, err := os.Stat(filepath.Join(cfg.IssuesDir, name+".xlsx")); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("runs=%d", len(runs))
	}
}

func TestRunAllIsolatesFailedPipeline(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.OnixSourceBPath = filepath.Join(t.TempDir(), "missing.xml")
	cfg.PipelineParallel = false
	svc, db := openService(t, cfg)

	reports, err := svc.RunAll(context.Background())
	if err == nil {
		t.Fatal("expected trade failure")
	}
	if reports[2].Err == nil || reports[0].Err != nil || reports[1].Err != nil {
		t.Fatalf("reports=%+v", reports)
	}
	if got := count(t, db, internal.CollectionBooksCSV); got != 2 {
		t.Fatalf("books_csv=%d", got)
	}
	if got := count(t, db, internal.CollectionBooksONIX); got != 0 {
		t.Fatalf("books_onix=%d", got)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if runs[0].Family != "onix" || runs[0].Status != "failed" {
		t.Fatalf("latest run=%+v", runs[0])
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	cfg := fixtureConfig(t)
	svc, db := openService(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.RunTabular(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if got := count(t, db, internal.CollectionBooksCSV); got != 0 {
		t.Fatalf("books_csv=%d", got)
	}
}

func TestExportIssuesFromStore(t *testing.T) {
	cfg := fixtureConfig(t)
	svc, _ := openService(t, cfg)

	if _, err := svc.RunTrade(context.Background()); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "onix.xlsx")
	n, err := svc.ExportIssues(internal.FamilyTrade, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rows=%d", n)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][1] != "LEEANDLOW -> LERNER" {
		t.Fatalf("rows=%v", rows)
	}

	if _, err := svc.ExportIssues("unknown", out); err == nil {
		t.Fatal("expected unknown family error")
	}
}

func TestRunCatalogSkipsFileWithBadDirectory(t *testing.T) {
	cfg := fixtureConfig(t)
	blob := decode.EncodeMarc(completeMarc("Bad Offsets", "NEG1"))
	copy(blob[31:36], "-9999")
	writeFile(t, filepath.Join(cfg.MarcDir, "negative.mrc"), blob)
	svc, db := openService(t, cfg)

	report, err := svc.RunCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Counts.Skipped != 2 || report.Counts.Input != 3 {
		t.Fatalf("counts=%+v", report.Counts)
	}
	if got := count(t, db, internal.CollectionBooksMARC); got != 2 {
		t.Fatalf("books_marc=%d", got)
	}
}
