package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"verification-service/internal/client"
	"verification-service/internal/config"
	"verification-service/internal/util"
)

// SMSMessage is the payload published to the SMS dispatch topic. A carrier
// gateway consumes it downstream.
type SMSMessage struct {
	Phone   string    `json:"phone"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

// KafkaSMSDispatcher publishes outbound SMS requests to Kafka, throttled by
// a process-wide token bucket so a burst of sign-ups cannot flood the
// carrier gateway.
type KafkaSMSDispatcher struct {
	producer *client.KafkaProducer
	topic    string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewKafkaSMSDispatcher(cfg *config.Config, producer *client.KafkaProducer, logger *zap.Logger) *KafkaSMSDispatcher {
	return &KafkaSMSDispatcher{
		producer: producer,
		topic:    cfg.Kafka.SMSTopic,
		limiter:  rate.NewLimiter(rate.Limit(cfg.OTP.DispatchRate), cfg.OTP.DispatchBurst),
		logger:   logger,
	}
}

func (d *KafkaSMSDispatcher) Send(ctx context.Context, phone, message string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms dispatch throttled: %w", err)
	}

	payload, err := json.Marshal(SMSMessage{
		Phone:   phone,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms message: %w", err)
	}

	if err := d.producer.ProduceMessage(ctx, d.topic, []byte(phone), payload, nil); err != nil {
		return fmt.Errorf("failed to publish sms message: %w", err)
	}

	d.logger.Debug("SMS dispatch published",
		util.String("phone_masked", util.MaskPhone(phone)),
	)
	return nil
}

// LogSMSDispatcher is the development fallback when no Kafka broker is
// available. It logs the masked destination, never the code.
type LogSMSDispatcher struct {
	logger *zap.Logger
}

func NewLogSMSDispatcher(logger *zap.Logger) *LogSMSDispatcher {
	return &LogSMSDispatcher{logger: logger}
}

func (d *LogSMSDispatcher) Send(ctx context.Context, phone, message string) error {
	d.logger.Info("SMS dispatch (log only)",
		util.String("phone_masked", util.MaskPhone(phone)),
	)
	return nil
}
