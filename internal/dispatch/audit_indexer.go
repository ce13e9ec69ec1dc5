package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"verification-service/internal/client"
	"verification-service/internal/config"
	"verification-service/internal/models"
	"verification-service/internal/util"
)

// ESAuditIndexer mirrors committed audit entries into Elasticsearch so the
// back office can search the trail. Indexing happens after the Scylla
// commit and is best-effort; the caller logs failures and moves on.
type ESAuditIndexer struct {
	es     *client.ESClient
	index  string
	logger *zap.Logger
}

func NewESAuditIndexer(cfg *config.Config, es *client.ESClient, logger *zap.Logger) *ESAuditIndexer {
	return &ESAuditIndexer{
		es:     es,
		index:  cfg.Elasticsearch.AuditIndex,
		logger: logger,
	}
}

func (i *ESAuditIndexer) Index(ctx context.Context, entry *models.AuditLogEntry) error {
	res, err := i.es.IndexDocument(i.index, entry.ID, entry)
	if err != nil {
		return fmt.Errorf("failed to index audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index audit entry: %s", res.String())
	}

	i.logger.Debug("Audit entry indexed",
		util.String("audit_id", entry.ID),
		util.String("action", entry.Action),
	)
	return nil
}

// NoopAuditIndexer is used when Elasticsearch is unavailable in development.
type NoopAuditIndexer struct{}

func (NoopAuditIndexer) Index(ctx context.Context, entry *models.AuditLogEntry) error {
	return nil
}
