package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kyc-service/internal/audit"
	"kyc-service/internal/events"
	"kyc-service/internal/models"
	"kyc-service/internal/repository"
	"kyc-service/internal/search"
	"kyc-service/internal/sumsub"
	"kyc-service/internal/util"
)

// Warning codes surfaced on degraded (but not failed) submissions.
const (
	WarnApplicantCreateFailed = "SUMSUB_CREATE_FAILED"
	WarnFrontSubmitFailed     = "SUMSUB_FRONT_SUBMIT_FAILED"
	WarnBackSubmitFailed      = "SUMSUB_BACK_SUBMIT_FAILED"
)

// ObjectStorage persists raw document images and hands back a public URL.
type ObjectStorage interface {
	Store(ctx context.Context, localPath, key, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// VerificationProvider is the outbound surface of the verification vendor.
type VerificationProvider interface {
	CreateApplicant(ctx context.Context, externalUserID, levelName string, fixedInfo sumsub.FixedInfo) (string, error)
	SubmitDocument(ctx context.Context, doc sumsub.DocumentUpload) sumsub.Result
	SubmitDocumentMetadataOnly(ctx context.Context, applicantID string, metadata sumsub.DocumentMetadata) sumsub.Result
	LevelName() string
}

// SubmissionRequest is a validated-later document submission. Back is
// ignored for passports.
type SubmissionRequest struct {
	UserID  string
	IDType  string
	Country string
	Front   *DecodedImage
	Back    *DecodedImage
}

// SubmissionResult reports what the submission accomplished. Warnings list
// the non-fatal steps that failed; local state is authoritative regardless.
type SubmissionResult struct {
	IDType          string          `json:"idType"`
	FrontURL        string          `json:"frontUrl"`
	BackURL         string          `json:"backUrl,omitempty"`
	Slot            *models.KYCSlot `json:"kyc"`
	SumsubAttempted bool            `json:"sumsubAttempted"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// KYCStatus is the per-user view of all three document slots, each nullable.
type KYCStatus struct {
	IDType        string          `json:"idType,omitempty"`
	IDStatus      string          `json:"idStatus,omitempty"`
	Passport      *models.KYCSlot `json:"passport"`
	DriverLicense *models.KYCSlot `json:"driverLicense"`
	NationalID    *models.KYCSlot `json:"nationalId"`
}

// DocumentSubmissionService orchestrates a document submission: validation,
// durable image storage, applicant provisioning, provider forwarding, and
// the local slot update. Provider failures degrade to warnings; validation
// failures abort before any durable write.
type DocumentSubmissionService struct {
	repo      repository.UserRepository
	storage   ObjectStorage
	provider  VerificationProvider
	publisher events.Publisher
	recorder  audit.Recorder
	indexer   search.Indexer
	logger    *zap.Logger
	now       func() time.Time
}

func NewDocumentSubmissionService(
	repo repository.UserRepository,
	storage ObjectStorage,
	provider VerificationProvider,
	publisher events.Publisher,
	recorder audit.Recorder,
	indexer search.Indexer,
	logger *zap.Logger,
) *DocumentSubmissionService {
	return &DocumentSubmissionService{
		repo:      repo,
		storage:   storage,
		provider:  provider,
		publisher: publisher,
		recorder:  recorder,
		indexer:   indexer,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit runs the full submission flow for one document type.
func (s *DocumentSubmissionService) Submit(ctx context.Context, req SubmissionRequest) (*SubmissionResult, error) {
	idType := models.NormalizeIDType(req.IDType)
	if idType == "" {
		return nil, fmt.Errorf("%w: unsupported id type %q", ErrInvalidInput, req.IDType)
	}
	if req.Front == nil {
		return nil, fmt.Errorf("%w: front image is required", ErrInvalidInput)
	}
	back := req.Back
	if idType == models.IDTypePassport {
		// Passports are single-sided; a supplied back image is dropped.
		back = nil
	} else if back == nil {
		return nil, fmt.Errorf("%w: back image is required for %s", ErrInvalidInput, idType)
	}
	if !req.Front.MimeAllowed() {
		return nil, fmt.Errorf("%w: unsupported front image type %q", ErrInvalidInput, req.Front.MimeType)
	}
	if back != nil && !back.MimeAllowed() {
		return nil, fmt.Errorf("%w: unsupported back image type %q", ErrInvalidInput, back.MimeType)
	}

	user, err := s.repo.GetUserByID(ctx, req.UserID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	frontURL, backURL, err := s.storeImages(ctx, req.UserID, idType, req.Front, back)
	if err != nil {
		return nil, err
	}

	var warnings []string

	applicantID, created, err := s.ensureApplicant(ctx, user)
	if err != nil {
		s.logger.Warn("applicant creation failed, continuing with local bookkeeping",
			util.String("user_id", req.UserID), util.ErrorField(err))
		warnings = append(warnings, WarnApplicantCreateFailed)
	}

	slotKey := models.SlotKeyForIDType(idType)
	updated, err := s.repo.Update(ctx, req.UserID, func(u *models.User) error {
		if created && u.SumsubApplicantID == "" {
			u.SumsubApplicantID = applicantID
		}
		u.IDType = idType
		u.IDFrontURL = frontURL
		u.IDBackURL = backURL
		u.IDStatus = models.KYCStatusUnderReview
		slot := u.KYC.EnsureSlot(slotKey)
		slot.FrontURL = frontURL
		slot.BackURL = backURL
		slot.Status = models.KYCStatusUnderReview
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update kyc record: %w", err)
	}

	country := strings.ToUpper(strings.TrimSpace(req.Country))
	attempted := false
	if applicantID == "" {
		applicantID = updated.SumsubApplicantID
	}
	if country != "" && applicantID != "" {
		attempted = true
		warnings = append(warnings, s.forwardToProvider(ctx, applicantID, idType, country, req.Front, back)...)
	}

	s.recordSubmission(ctx, updated, idType, attempted)

	return &SubmissionResult{
		IDType:          idType,
		FrontURL:        frontURL,
		BackURL:         backURL,
		Slot:            updated.KYC.Slot(slotKey),
		SumsubAttempted: attempted,
		Warnings:        warnings,
	}, nil
}

// Status returns the user's three document slots, nil where never submitted.
func (s *DocumentSubmissionService) Status(ctx context.Context, userID string) (*KYCStatus, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &KYCStatus{
		IDType:        user.IDType,
		IDStatus:      user.IDStatus,
		Passport:      user.KYC.Passport,
		DriverLicense: user.KYC.DriverLicense,
		NationalID:    user.KYC.NationalID,
	}, nil
}

// EnsureApplicant provisions a provider applicant for the user if one does
// not exist yet, persisting the new id. Exposed for the explicit
// create-applicant endpoint.
func (s *DocumentSubmissionService) EnsureApplicant(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	applicantID, created, err := s.ensureApplicant(ctx, user)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if created {
		if _, err := s.repo.Update(ctx, userID, func(u *models.User) error {
			if u.SumsubApplicantID == "" {
				u.SumsubApplicantID = applicantID
			}
			return nil
		}); err != nil {
			return "", fmt.Errorf("failed to persist applicant id: %w", err)
		}
	}
	return applicantID, nil
}

// SubmitMetadata forwards a metadata-only document record to the provider
// for the user's existing applicant.
func (s *DocumentSubmissionService) SubmitMetadata(ctx context.Context, userID, idDocType, country, idDocSubType string) (sumsub.Result, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return sumsub.Result{}, ErrUserNotFound
		}
		return sumsub.Result{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user.SumsubApplicantID == "" {
		return sumsub.Result{}, fmt.Errorf("%w: no applicant for user", ErrInvalidInput)
	}
	return s.provider.SubmitDocumentMetadataOnly(ctx, user.SumsubApplicantID, sumsub.DocumentMetadata{
		IDDocType:    strings.ToUpper(idDocType),
		Country:      strings.ToUpper(country),
		IDDocSubType: strings.ToUpper(idDocSubType),
	}), nil
}

// ensureApplicant returns the user's applicant id, creating one when absent.
// created reports whether a new applicant was provisioned this call.
func (s *DocumentSubmissionService) ensureApplicant(ctx context.Context, user *models.User) (applicantID string, created bool, err error) {
	if user.SumsubApplicantID != "" {
		return user.SumsubApplicantID, false, nil
	}
	applicantID, err = s.provider.CreateApplicant(ctx, user.UserID, s.provider.LevelName(), sumsub.FixedInfo{})
	if err != nil {
		return "", false, err
	}
	s.recordAudit(ctx, audit.Entry{
		UserID:      user.UserID,
		ApplicantID: applicantID,
		Action:      audit.ActionApplicantCreated,
		OccurredAt:  s.now(),
	})
	return applicantID, true, nil
}

// storeImages spools both images to temp files and uploads them to object
// storage concurrently. Temp files are removed regardless of outcome.
func (s *DocumentSubmissionService) storeImages(ctx context.Context, userID, idType string, front, back *DecodedImage) (frontURL, backURL string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	stamp := s.now().UnixNano()

	g.Go(func() error {
		url, err := s.storeOne(gctx, front, fmt.Sprintf("%s/%s_front_%d%s", userID, idType, stamp, front.Ext()))
		if err != nil {
			return fmt.Errorf("failed to store front image: %w", err)
		}
		frontURL = url
		return nil
	})
	if back != nil {
		g.Go(func() error {
			url, err := s.storeOne(gctx, back, fmt.Sprintf("%s/%s_back_%d%s", userID, idType, stamp, back.Ext()))
			if err != nil {
				return fmt.Errorf("failed to store back image: %w", err)
			}
			backURL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return frontURL, backURL, nil
}

func (s *DocumentSubmissionService) storeOne(ctx context.Context, img *DecodedImage, key string) (string, error) {
	tmp, err := os.CreateTemp("", "kyc-doc-*"+img.Ext())
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(img.Bytes); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return s.storage.Store(ctx, tmp.Name(), key, img.MimeType)
}

// forwardToProvider submits front (and back, when present) to the provider.
// Failures come back as warnings, never errors.
func (s *DocumentSubmissionService) forwardToProvider(ctx context.Context, applicantID, idType, country string, front, back *DecodedImage) []string {
	var warnings []string
	docType := models.ProviderDocType(idType)

	frontSubType := "FRONT_SIDE"
	if idType == models.IDTypePassport {
		frontSubType = ""
	}
	res := s.provider.SubmitDocument(ctx, sumsub.DocumentUpload{
		ApplicantID:  applicantID,
		FileBytes:    front.Bytes,
		FileName:     front.FileName,
		MimeType:     front.MimeType,
		IDDocType:    docType,
		Country:      country,
		IDDocSubType: frontSubType,
	})
	if !res.Success {
		s.logger.Warn("provider rejected front image submission",
			util.String("applicant_id", applicantID), util.Int("code", res.Code), util.String("message", res.Message))
		warnings = append(warnings, WarnFrontSubmitFailed)
	}

	if back != nil {
		res := s.provider.SubmitDocument(ctx, sumsub.DocumentUpload{
			ApplicantID:  applicantID,
			FileBytes:    back.Bytes,
			FileName:     back.FileName,
			MimeType:     back.MimeType,
			IDDocType:    docType,
			Country:      country,
			IDDocSubType: "BACK_SIDE",
		})
		if !res.Success {
			s.logger.Warn("provider rejected back image submission",
				util.String("applicant_id", applicantID), util.Int("code", res.Code), util.String("message", res.Message))
			warnings = append(warnings, WarnBackSubmitFailed)
		}
	}
	return warnings
}

// recordSubmission emits the best-effort side channels: event stream, audit
// trail, search index.
func (s *DocumentSubmissionService) recordSubmission(ctx context.Context, user *models.User, idType string, attempted bool) {
	if err := s.publisher.Publish(ctx, events.KYCEvent{
		Type:        events.TypeDocumentSubmitted,
		UserID:      user.UserID,
		ApplicantID: user.SumsubApplicantID,
		IDType:      idType,
		Status:      models.KYCStatusUnderReview,
		OccurredAt:  s.now(),
	}); err != nil {
		s.logger.Warn("failed to publish submission event", util.ErrorField(err))
	}
	s.recordAudit(ctx, audit.Entry{
		UserID:      user.UserID,
		ApplicantID: user.SumsubApplicantID,
		Action:      audit.ActionDocumentSubmitted,
		IDType:      idType,
		Status:      models.KYCStatusUnderReview,
		Detail:      fmt.Sprintf("provider_attempted=%t", attempted),
		OccurredAt:  s.now(),
	})
	if err := s.indexer.IndexUser(ctx, user); err != nil {
		s.logger.Warn("failed to index user", util.ErrorField(err))
	}
}

func (s *DocumentSubmissionService) recordAudit(ctx context.Context, entry audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", util.ErrorField(err))
	}
}
