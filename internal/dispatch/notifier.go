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

// ReviewNotification is published when a submission reaches a terminal
// state. The notification service downstream turns it into an email.
type ReviewNotification struct {
	SubmissionID    string    `json:"submission_id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ReviewedAt      time.Time `json:"reviewed_at"`
}

// KafkaReviewNotifier publishes review outcomes to the notification topic.
type KafkaReviewNotifier struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaReviewNotifier(cfg *config.Config, producer *client.KafkaProducer, logger *zap.Logger) *KafkaReviewNotifier {
	return &KafkaReviewNotifier{
		producer: producer,
		topic:    cfg.Kafka.NotificationTopic,
		logger:   logger,
	}
}

func (n *KafkaReviewNotifier) NotifyReviewed(ctx context.Context, sub *models.SellerVerification) error {
	reviewedAt := time.Now().UTC()
	if sub.ReviewedAt != nil {
		reviewedAt = *sub.ReviewedAt
	}

	payload, err := json.Marshal(ReviewNotification{
		SubmissionID:    sub.ID,
		UserID:          sub.UserID,
		Status:          sub.Status,
		RejectionReason: sub.RejectionReason,
		ReviewedAt:      reviewedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal review notification: %w", err)
	}

	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(sub.UserID), payload, nil); err != nil {
		return fmt.Errorf("failed to publish review notification: %w", err)
	}

	n.logger.Info("Review notification published",
		util.String("submission_id", sub.ID),
		util.String("status", sub.Status),
	)
	return nil
}

// NoopReviewNotifier is used when Kafka is unavailable in development.
type NoopReviewNotifier struct{}

func (NoopReviewNotifier) NotifyReviewed(ctx context.Context, sub *models.SellerVerification) error {
	return nil
}
