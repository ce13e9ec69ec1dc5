package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"verification-service/internal/config"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

// SweepReport summarizes one sweeper run.
type SweepReport struct {
	Scanned  int  `json:"scanned"`
	Archived int  `json:"archived"`
	Purged   int  `json:"purged"`
	DryRun   bool `json:"dry_run"`
}

// RetentionSweeper purges terminal submissions past the retention horizon.
// Each record is archived to the analytical store before its row and digest
// index are deleted; audit entries are never touched. Running the sweeper
// twice over the same horizon is a no-op the second time.
type RetentionSweeper struct {
	store   VerificationStore
	archive ArchiveSink
	config  *config.Config
}

func NewRetentionSweeper(store VerificationStore, archive ArchiveSink, cfg *config.Config) *RetentionSweeper {
	return &RetentionSweeper{
		store:   store,
		archive: archive,
		config:  cfg,
	}
}

// Sweep runs one pass. A zero horizon uses the configured default. In dry
// run mode it only counts what would be purged.
func (s *RetentionSweeper) Sweep(ctx context.Context, horizon time.Duration, dryRun bool) (*SweepReport, error) {
	if horizon <= 0 {
		horizon = s.config.Retention.Horizon
	}
	cutoff := time.Now().UTC().Add(-horizon)

	report := &SweepReport{DryRun: dryRun}

	statuses := []string{models.SubmissionStatusRejected}
	if s.config.Retention.PurgeApproved {
		statuses = append(statuses, models.SubmissionStatusApproved)
	}

	for _, status := range statuses {
		statusCutoff := cutoff
		if status == models.SubmissionStatusApproved {
			statusCutoff = time.Now().UTC().Add(-s.config.Retention.ApprovedAfter)
		}
		if err := s.sweepStatus(ctx, status, statusCutoff, dryRun, report); err != nil {
			return report, err
		}
	}

	util.Info("Retention sweep finished",
		util.Int("scanned", report.Scanned),
		util.Int("archived", report.Archived),
		util.Int("purged", report.Purged),
		util.Bool("dry_run", report.DryRun),
	)
	return report, nil
}

func (s *RetentionSweeper) sweepStatus(ctx context.Context, status string, cutoff time.Time, dryRun bool, report *SweepReport) error {
	batchSize := s.config.Retention.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for {
		subs, err := s.store.ListTerminalOlderThan(ctx, status, cutoff, batchSize)
		if err != nil {
			return fmt.Errorf("failed to list %s submissions: %w", status, err)
		}
		report.Scanned += len(subs)
		if len(subs) == 0 {
			return nil
		}

		if dryRun {
			// Counting only; nothing changes, so one batch is the whole story
			return nil
		}

		var archived, purged int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, sub := range subs {
			sub := sub
			g.Go(func() error {
				if err := s.purgeOne(gctx, sub); err != nil {
					return err
				}
				atomic.AddInt64(&archived, 1)
				atomic.AddInt64(&purged, 1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			report.Archived += int(atomic.LoadInt64(&archived))
			report.Purged += int(atomic.LoadInt64(&purged))
			return fmt.Errorf("sweep batch failed: %w", err)
		}
		report.Archived += int(atomic.LoadInt64(&archived))
		report.Purged += int(atomic.LoadInt64(&purged))

		if len(subs) < batchSize {
			return nil
		}
	}
}

// purgeOne archives first and deletes second. If the archive write fails
// the row survives until the next run.
func (s *RetentionSweeper) purgeOne(ctx context.Context, sub *models.SellerVerification) error {
	trail, err := s.store.ListAuditByUser(ctx, sub.UserID, 100)
	if err != nil {
		return fmt.Errorf("failed to load audit trail for %s: %w", sub.ID, err)
	}

	if err := s.archive.ArchiveSubmission(ctx, sub, trail); err != nil {
		return fmt.Errorf("failed to archive submission %s: %w", sub.ID, err)
	}

	if err := s.store.DeleteSubmission(ctx, sub); err != nil {
		return fmt.Errorf("failed to delete submission %s: %w", sub.ID, err)
	}

	util.Debug("Submission purged",
		util.String("submission_id", sub.ID),
		util.String("status", sub.Status),
	)
	return nil
}
