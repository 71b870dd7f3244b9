package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/client"
	"kyc-service/internal/models"
	"kyc-service/internal/util"
)

// ReviewDocument is the flattened per-user KYC view kept in Elasticsearch
// for back-office search ("all rejected national_id submissions this week").
type ReviewDocument struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	ApplicantID string    `json:"applicant_id,omitempty"`
	IDType      string    `json:"id_type,omitempty"`
	IDStatus    string    `json:"id_status,omitempty"`
	Passport    string    `json:"passport_status,omitempty"`
	License     string    `json:"driver_license_status,omitempty"`
	NationalID  string    `json:"national_id_status,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Indexer refreshes the search view of a user's KYC state. Best-effort, same
// contract as the audit recorder.
type Indexer interface {
	IndexUser(ctx context.Context, user *models.User) error
}

type ESIndexer struct {
	client *client.ESClient
	logger *zap.Logger
}

func NewESIndexer(client *client.ESClient, logger *zap.Logger) *ESIndexer {
	return &ESIndexer{client: client, logger: logger}
}

func (i *ESIndexer) IndexUser(ctx context.Context, user *models.User) error {
	doc := ReviewDocument{
		UserID:      user.UserID,
		Email:       user.Email,
		ApplicantID: user.SumsubApplicantID,
		IDType:      user.IDType,
		IDStatus:    user.IDStatus,
		UpdatedAt:   time.Now().UTC(),
	}
	if s := user.KYC.Passport; s != nil {
		doc.Passport = s.Status
	}
	if s := user.KYC.DriverLicense; s != nil {
		doc.License = s.Status
	}
	if s := user.KYC.NationalID; s != nil {
		doc.NationalID = s.Status
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal review document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := i.client.IndexDocument(ctx, user.UserID, body); err != nil {
		i.logger.Warn("Failed to index KYC review document",
			util.String("user_id", user.UserID),
			util.ErrorField(err),
		)
		return err
	}
	return nil
}

// NoopIndexer is used when Elasticsearch is disabled.
type NoopIndexer struct{}

func (NoopIndexer) IndexUser(context.Context, *models.User) error { return nil }
