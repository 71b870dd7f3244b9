package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/client"
	"kyc-service/internal/util"
)

// KYC lifecycle event types emitted to the event stream.
const (
	TypeDocumentSubmitted = "kyc.document.submitted"
	TypeReviewCompleted   = "kyc.review.completed"
)

// KYCEvent is the envelope published for downstream consumers (risk,
// analytics, notification fan-out).
type KYCEvent struct {
	Type        string    `json:"type"`
	UserID      string    `json:"user_id"`
	ApplicantID string    `json:"applicant_id,omitempty"`
	IDType      string    `json:"id_type,omitempty"`
	Status      string    `json:"status,omitempty"`
	Answer      string    `json:"answer,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher emits KYC lifecycle events. Implementations must be safe to call
// from request paths; failures are the caller's to log, never to propagate.
type Publisher interface {
	Publish(ctx context.Context, event KYCEvent) error
}

// KafkaPublisher writes events to the configured Kafka topic, keyed by user
// id so per-user ordering is preserved.
type KafkaPublisher struct {
	producer *client.KafkaProducer
	logger   *zap.Logger
}

func NewKafkaPublisher(producer *client.KafkaProducer, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event KYCEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal kyc event: %w", err)
	}
	if err := p.producer.Publish(ctx, []byte(event.UserID), value); err != nil {
		return fmt.Errorf("failed to publish kyc event: %w", err)
	}
	p.logger.Debug("KYC event published",
		util.String("type", event.Type),
		util.String("user_id", event.UserID),
	)
	return nil
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, KYCEvent) error { return nil }
