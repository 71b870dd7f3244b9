package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/client"
	"kyc-service/internal/util"
)

// Entry is one row of the KYC audit trail.
type Entry struct {
	UserID      string
	ApplicantID string
	Action      string
	IDType      string
	Status      string
	Detail      string
	OccurredAt  time.Time
}

// Audit actions.
const (
	ActionDocumentSubmitted = "document_submitted"
	ActionApplicantCreated  = "applicant_created"
	ActionReviewApplied     = "review_applied"
)

// Recorder appends entries to the compliance audit trail. Recording is
// best-effort from the caller's perspective; an unreachable sink must not
// fail a user-facing flow.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// ClickHouseRecorder writes the trail to ClickHouse, which back-office
// tooling queries for compliance reviews.
type ClickHouseRecorder struct {
	client *client.ClickHouseClient
	logger *zap.Logger
}

func NewClickHouseRecorder(client *client.ClickHouseClient, logger *zap.Logger) *ClickHouseRecorder {
	return &ClickHouseRecorder{client: client, logger: logger}
}

const insertEntrySQL = `INSERT INTO kyc_audit_log
	(user_id, applicant_id, action, id_type, status, detail, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

func (r *ClickHouseRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.client.Conn.Exec(ctx, insertEntrySQL,
		entry.UserID, entry.ApplicantID, entry.Action, entry.IDType,
		entry.Status, entry.Detail, entry.OccurredAt)
	if err != nil {
		r.logger.Warn("Failed to record audit entry",
			util.String("user_id", entry.UserID),
			util.String("action", entry.Action),
			util.ErrorField(err),
		)
		return err
	}
	return nil
}

// NoopRecorder is used when ClickHouse is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Entry) error { return nil }
