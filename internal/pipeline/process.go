package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bibmerge/internal"
	"bibmerge/internal/config"
	"bibmerge/internal/logger"
	"bibmerge/internal/storage"
)

type ProcessingService struct {
	db  *storage.DB
	cfg config.Config
	log *logger.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config, log *logger.Logger) *ProcessingService {
	if log == nil {
		log = logger.Nop()
	}
	return &ProcessingService{db: db, cfg: cfg, log: log}
}

// RunReport is the outcome of one pipeline run as recorded in the run ledger.
type RunReport struct {
	Family   internal.SourceFamily
	TraceID  string
	Counts   internal.RunCounts
	Duration time.Duration
	Err      error
}

// output names where one family's records and issues end up.
type output struct {
	recordsCollection string
	issuesCollection  string
	recordsFile       string
	issuesFile        string
}

var outputs = map[internal.SourceFamily]output{
	internal.FamilyTabular: {internal.CollectionBooksCSV, internal.CollectionCSVIssues, "mergedCSV.json", "csvIssuesLog"},
	internal.FamilyCatalog: {internal.CollectionBooksMARC, internal.CollectionMARCIssues, "marc.json", "marcIssuesLog"},
	internal.FamilyTrade:   {internal.CollectionBooksONIX, internal.CollectionONIXIssues, "mergedONIX.json", "onixIssuesLog"},
}

// IssuesCollection returns the issue log collection of family.
func IssuesCollection(family internal.SourceFamily) (string, bool) {
	out, ok := outputs[family]
	return out.issuesCollection, ok
}

// RunAll runs the three pipelines and reports every outcome. A failing
// pipeline does not stop the others from persisting; the returned error
// joins all failures.
func (s *ProcessingService) RunAll(ctx context.Context) ([]RunReport, error) {
	runs := []func(context.Context) (RunReport, error){s.RunTabular, s.RunCatalog, s.RunTrade}
	reports := make([]RunReport, len(runs))
	errs := make([]error, len(runs))

	if !s.cfg.PipelineParallel {
		for i, run := range runs {
			reports[i], errs[i] = run(ctx)
		}
		return reports, errors.Join(errs...)
	}

	// Goroutines never return an error so one failure cannot cancel siblings.
	var g errgroup.Group
	for i, run := range runs {
		g.Go(func() error {
			reports[i], errs[i] = run(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

func (s *ProcessingService) RunTabular(ctx context.Context) (RunReport, error) {
	return s.run(ctx, internal.FamilyTabular, func(t *timer) (internal.RunCounts, error) {
		in, err := LoadTabular(s.cfg.TabularPrimaryPath, s.cfg.TabularSupplementaryPath)
		if err != nil {
			return internal.RunCounts{}, err
		}
		t.mark("loadMs")

		res := MergeTabular(in.Primary, in.Supplementary)
		t.mark("mergeMs")

		counts := internal.RunCounts{Input: len(in.Primary), Records: len(res.Records), Issues: len(res.Issues)}
		return counts, s.persist(ctx, outputs[internal.FamilyTabular], documents(res.Records), res.Records, res.Issues)
	})
}

func (s *ProcessingService) RunCatalog(ctx context.Context) (RunReport, error) {
	return s.run(ctx, internal.FamilyCatalog, func(t *timer) (internal.RunCounts, error) {
		in, err := LoadCatalog(s.cfg.MarcDir, s.log)
		if err != nil {
			return internal.RunCounts{}, err
		}
		t.mark("loadMs")

		res := ProcessCatalog(in.Records)
		t.mark("mergeMs")

		counts := internal.RunCounts{
			Input:    len(in.Records),
			Records:  len(res.Accepted),
			Issues:   len(res.Issues),
			Skipped:  len(in.Skipped),
			Rejected: res.Rejected,
		}
		return counts, s.persist(ctx, outputs[internal.FamilyCatalog], documents(res.Accepted), res.Accepted, res.Issues)
	})
}

func (s *ProcessingService) RunTrade(ctx context.Context) (RunReport, error) {
	return s.run(ctx, internal.FamilyTrade, func(t *timer) (internal.RunCounts, error) {
		in, err := LoadTrade(s.cfg.OnixSourceAPath, s.cfg.OnixSourceAName, s.cfg.OnixSourceBPath, s.cfg.OnixSourceBName)
		if err != nil {
			return internal.RunCounts{}, err
		}
		t.mark("loadMs")

		res := MergeTrade(in.ProductsA, in.SourceA, in.ProductsB, in.SourceB)
		t.mark("mergeMs")

		counts := internal.RunCounts{Input: len(in.ProductsA) + len(in.ProductsB), Records: len(res.Records), Issues: len(res.Issues)}
		return counts, s.persist(ctx, outputs[internal.FamilyTrade], documents(res.Records), res.Records, res.Issues)
	})
}

// ExportIssues writes the persisted issue log of family to an xlsx review
// sheet and returns the number of rows written.
func (s *ProcessingService) ExportIssues(family internal.SourceFamily, outputPath string) (int, error) {
	collection, ok := IssuesCollection(family)
	if !ok {
		return 0, fmt.Errorf("unknown source family %q", family)
	}
	total, err := s.db.CountDocuments(collection)
	if err != nil {
		return 0, err
	}
	docs, err := s.db.ListDocuments(collection, 0, total)
	if err != nil {
		return 0, err
	}
	issues := make([]internal.Issue, 0, len(docs))
	for _, doc := range docs {
		var issue internal.Issue
		if err := json.Unmarshal(doc.Body, &issue); err != nil {
			return 0, fmt.Errorf("decode issue %s: %w", doc.ID, err)
		}
		issues = append(issues, issue)
	}
	if err := ExportIssuesToXLSX(issues, outputPath); err != nil {
		return 0, err
	}
	return len(issues), nil
}

type timer struct {
	start   time.Time
	last    time.Time
	timings map[string]float64
}

func newTimer() *timer {
	now := time.Now()
	return &timer{start: now, last: now, timings: map[string]float64{}}
}

func (t *timer) mark(name string) {
	now := time.Now()
	t.timings[name] = float64(now.Sub(t.last).Milliseconds())
	t.last = now
}

func (s *ProcessingService) run(ctx context.Context, family internal.SourceFamily, body func(t *timer) (internal.RunCounts, error)) (RunReport, error) {
	report := RunReport{Family: family, TraceID: uuid.NewString()}
	log := s.log.With("family", string(family), "trace", report.TraceID)
	t := newTimer()

	counts, err := internal.RunCounts{}, ctx.Err()
	if err == nil {
		counts, err = body(t)
	}
	report.Counts = counts
	report.Duration = time.Since(t.start)
	t.timings["totalMs"] = float64(report.Duration.Milliseconds())
	if err != nil {
		report.Err = fmt.Errorf("%s pipeline: %w", family, err)
		log.Error("pipeline failed", "error", err)
	} else {
		log.Info("pipeline finished", "input", counts.Input, "records", counts.Records, "issues", counts.Issues, "skipped", counts.Skipped, "rejected", counts.Rejected, "ms", t.timings["totalMs"])
	}

	if ledgerErr := s.db.InsertRun(report.TraceID, family, report.Err, t.timings, counts); ledgerErr != nil {
		log.Warn("run ledger write failed", "error", ledgerErr)
	}
	return report, report.Err
}

func (s *ProcessingService) persist(ctx context.Context, out output, docs []any, records any, issues []internal.Issue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(s.cfg.OutputDir, out.recordsFile), records); err != nil {
		return fmt.Errorf("write records dump: %w", err)
	}
	if err := WriteJSON(filepath.Join(s.cfg.IssuesDir, out.issuesFile+".json"), issues); err != nil {
		return fmt.Errorf("write issues dump: %w", err)
	}
	if _, err := s.db.ReplaceCollections(
		storage.Replacement{Collection: out.recordsCollection, Docs: docs},
		storage.Replacement{Collection: out.issuesCollection, Docs: documents(issues)},
	); err != nil {
		return fmt.Errorf("store %s and %s: %w", out.recordsCollection, out.issuesCollection, err)
	}
	if s.cfg.ExportIssuesXLSX {
		if err := ExportIssuesToXLSX(issues, filepath.Join(s.cfg.IssuesDir, out.issuesFile+".xlsx")); err != nil {
			return fmt.Errorf("export issues sheet: %w", err)
		}
	}
	return nil
}

func documents[T any](items []T) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}
