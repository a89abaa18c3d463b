package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bibmerge/internal"
	"bibmerge/internal/config"
	"bibmerge/internal/feeds"
	"bibmerge/internal/logger"
	"bibmerge/internal/pipeline"
	"bibmerge/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	must(err)
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	if cmd == "detect" {
		detect(os.Args[2:])
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	processor := pipeline.NewProcessingService(db, cfg, log)

	switch cmd {
	case "run":
		reports, err := processor.RunAll(ctx)
		for _, r := range reports {
			printReport(r)
		}
		must(err)
	case "tabular":
		report, err := processor.RunTabular(ctx)
		printReport(report)
		must(err)
	case "catalog":
		report, err := processor.RunCatalog(ctx)
		printReport(report)
		must(err)
	case "trade":
		report, err := processor.RunTrade(ctx)
		printReport(report)
		must(err)
	case "feeds:sync":
		if len(cfg.FeedSources) == 0 {
			must(fmt.Errorf("FEED_SOURCES is empty"))
		}
		svc := feeds.NewSyncService(db, cfg, log)
		results, err := svc.SyncAll(ctx)
		for _, r := range results {
			state := "unchanged"
			if r.Changed {
				state = "downloaded"
			}
			fmt.Printf("feed %s %s bytes=%d family=%s path=%s\n", r.Name, state, r.Bytes, r.Family, r.Path)
		}
		must(err)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		family := fs.String("family", "", "csv|marc|onix")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*family) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--family and --out are required"))
		}
		n, err := processor.ExportIssues(internal.SourceFamily(*family), *out)
		must(err)
		fmt.Printf("exported %d issues to %s\n", n, *out)
	case "count":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		collection := fs.String("collection", "", "collection name (default: all)")
		_ = fs.Parse(os.Args[2:])
		names := storage.Collections
		if *collection != "" {
			names = []string{*collection}
		}
		for _, name := range names {
			n, err := db.CountDocuments(name)
			must(err)
			fmt.Printf("%s=%d\n", name, n)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func detect(paths []string) {
	if len(paths) == 0 {
		must(fmt.Errorf("detect needs at least one file"))
	}
	for _, p := range paths {
		res, err := pipeline.DetectFile(p)
		must(err)
		fmt.Printf("%s family=%s score=%.2f reason=%s\n", p, res.Family, res.Score, res.Reason)
	}
}

func printReport(r pipeline.RunReport) {
	status := "ok"
	if r.Err != nil {
		status = "failed: " + r.Err.Error()
	}
	fmt.Printf("%s trace=%s input=%d records=%d issues=%d skipped=%d rejected=%d took=%s %s\n",
		r.Family, r.TraceID, r.Counts.Input, r.Counts.Records, r.Counts.Issues,
		r.Counts.Skipped, r.Counts.Rejected, r.Duration, status)
}

func usage() {
	fmt.Println("usage: bibmerge <command>")
	fmt.Println("commands:")
	fmt.Println("  run                      all three pipelines")
	fmt.Println("  tabular | catalog | trade")
	fmt.Println("  detect <file>...")
	fmt.Println("  feeds:sync")
	fmt.Println("  export:xlsx --family=csv|marc|onix --out=./issues/review.xlsx")
	fmt.Println("  count [--collection=books_marc]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
