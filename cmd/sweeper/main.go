package main

import (
	"context"
	"flag"
	"time"

	"verification-service/internal/factory"
	"verification-service/internal/util"
)

// The sweeper runs as a cron job, not a daemon. One pass, report, exit.
func main() {
	dryRun := flag.Bool("dry-run", false, "count purgeable submissions without deleting anything")
	days := flag.Int("days", 0, "override the retention horizon in days (0 uses config)")
	timeout := flag.Duration("timeout", 10*time.Minute, "abort the sweep after this long")
	flag.Parse()

	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	var horizon time.Duration
	if *days > 0 {
		horizon = time.Duration(*days) * 24 * time.Hour
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sweeper := f.ServiceFactory().RetentionSweeper()
	report, err := sweeper.Sweep(ctx, horizon, *dryRun)
	if err != nil {
		util.Fatal("Retention sweep failed",
			util.Int("scanned", report.Scanned),
			util.Int("purged", report.Purged),
			util.ErrorField(err),
		)
	}

	util.Info("Retention sweep completed",
		util.Int("scanned", report.Scanned),
		util.Int("archived", report.Archived),
		util.Int("purged", report.Purged),
		util.Bool("dry_run", report.DryRun),
	)
	util.Sync()
}
