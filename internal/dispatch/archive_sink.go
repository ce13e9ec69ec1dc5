package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/client"
	"verification-service/internal/config"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

const insertArchiveQuery = `
	INSERT INTO submission_archive (
		submission_id, user_id, status, national_id_masked,
		submitted_at, reviewed_at, rejection_reason, audit_trail, archived_at
	)`

// ClickHouseArchiveSink writes purged submissions to the analytical store.
// Only masked and terminal fields go in; the ciphertext and digest die with
// the Scylla row.
type ClickHouseArchiveSink struct {
	ch     *client.ClickHouseClient
	logger *zap.Logger
}

func NewClickHouseArchiveSink(cfg *config.Config, ch *client.ClickHouseClient, logger *zap.Logger) *ClickHouseArchiveSink {
	return &ClickHouseArchiveSink{ch: ch, logger: logger}
}

func (s *ClickHouseArchiveSink) ArchiveSubmission(ctx context.Context, sub *models.SellerVerification, trail []*models.AuditLogEntry) error {
	trailJSON, err := json.Marshal(trail)
	if err != nil {
		return fmt.Errorf("failed to marshal audit trail: %w", err)
	}

	var reviewedAt time.Time
	if sub.ReviewedAt != nil {
		reviewedAt = *sub.ReviewedAt
	}

	rows := [][]interface{}{{
		sub.ID,
		sub.UserID,
		sub.Status,
		sub.NationalIDMasked,
		sub.SubmittedAt,
		reviewedAt,
		sub.RejectionReason,
		string(trailJSON),
		time.Now().UTC(),
	}}

	if err := s.ch.BatchInsert(ctx, insertArchiveQuery, rows); err != nil {
		return fmt.Errorf("failed to archive submission: %w", err)
	}

	s.logger.Debug("Submission archived",
		util.String("submission_id", sub.ID),
	)
	return nil
}

// NoopArchiveSink is used when ClickHouse is unavailable in development.
// Purges proceed without an archive copy.
type NoopArchiveSink struct{}

func (NoopArchiveSink) ArchiveSubmission(ctx context.Context, sub *models.SellerVerification, trail []*models.AuditLogEntry) error {
	return nil
}
