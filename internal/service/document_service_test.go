package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kyc-service/internal/audit"
	"kyc-service/internal/events"
	"kyc-service/internal/models"
	"kyc-service/internal/repository"
	"kyc-service/internal/search"
	"kyc-service/internal/sumsub"
)

type fakeStorage struct {
	mu     sync.Mutex
	stored []string
	fail   bool
}

func (s *fakeStorage) Store(_ context.Context, _ string, key string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", fmt.Errorf("bucket unavailable")
	}
	s.stored = append(s.stored, key)
	return "https://store.test/" + key, nil
}

func (s *fakeStorage) Delete(context.Context, string) error { return nil }

type fakeProvider struct {
	createCalls  int
	createErr    error
	applicantID  string
	submissions  []sumsub.DocumentUpload
	submitResult sumsub.Result
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		applicantID:  "app-1",
		submitResult: sumsub.Result{Success: true},
	}
}

func (p *fakeProvider) CreateApplicant(context.Context, string, string, sumsub.FixedInfo) (string, error) {
	p.createCalls++
	if p.createErr != nil {
		return "", p.createErr
	}
	return p.applicantID, nil
}

func (p *fakeProvider) SubmitDocument(_ context.Context, doc sumsub.DocumentUpload) sumsub.Result {
	p.submissions = append(p.submissions, doc)
	return p.submitResult
}

func (p *fakeProvider) SubmitDocumentMetadataOnly(_ context.Context, applicantID string, metadata sumsub.DocumentMetadata) sumsub.Result {
	p.submissions = append(p.submissions, sumsub.DocumentUpload{
		ApplicantID:  applicantID,
		IDDocType:    metadata.IDDocType,
		Country:      metadata.Country,
		IDDocSubType: metadata.IDDocSubType,
	})
	return p.submitResult
}

func (p *fakeProvider) LevelName() string { return "id-and-liveness" }

func newDocumentFixture(t *testing.T) (*DocumentSubmissionService, *repository.MemoryUserRepository, *fakeStorage, *fakeProvider, *models.User) {
	t.Helper()
	repo := repository.NewMemoryUserRepository()
	storage := &fakeStorage{}
	provider := newFakeProvider()

	svc := NewDocumentSubmissionService(
		repo, storage, provider,
		events.NoopPublisher{}, audit.NoopRecorder{}, search.NoopIndexer{},
		zap.NewNop(),
	)

	user := &models.User{Email: "kyc@test.dev", IsVerified: true}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return svc, repo, storage, provider, user
}

func jpeg(name string) *DecodedImage {
	return &DecodedImage{Bytes: []byte{0xFF, 0xD8, 0xFF}, MimeType: "image/jpeg", FileName: name}
}

func png(name string) *DecodedImage {
	return &DecodedImage{Bytes: []byte{0x89, 0x50, 0x4E, 0x47}, MimeType: "image/png", FileName: name}
}

func TestSubmitNationalIDFrontAndBack(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "national_id",
		Country: "us",
		Front:   jpeg("front.jpg"),
		Back:    jpeg("back.jpg"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.IDTypeNationalID, result.IDType)
	assert.NotEmpty(t, result.FrontURL)
	assert.NotEmpty(t, result.BackURL)
	assert.True(t, result.SumsubAttempted)
	assert.Empty(t, result.Warnings)
	require.NotNil(t, result.Slot)
	assert.Equal(t, models.KYCStatusUnderReview, result.Slot.Status)

	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, "app-1", stored.SumsubApplicantID)
	assert.Equal(t, models.KYCStatusUnderReview, stored.IDStatus)
	require.NotNil(t, stored.KYC.NationalID)
	assert.Equal(t, result.FrontURL, stored.KYC.NationalID.FrontURL)
	assert.Equal(t, result.BackURL, stored.KYC.NationalID.BackURL)

	// Front and back both forwarded, with sides and uppercased country.
	require.Len(t, provider.submissions, 2)
	assert.Equal(t, "ID_CARD", provider.submissions[0].IDDocType)
	assert.Equal(t, "US", provider.submissions[0].Country)
	assert.Equal(t, "FRONT_SIDE", provider.submissions[0].IDDocSubType)
	assert.Equal(t, "BACK_SIDE", provider.submissions[1].IDDocSubType)
}

func TestSubmitPassportWithoutCountrySkipsProvider(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmissionRequest{
		UserID: user.UserID,
		IDType: "passport",
		Front:  png("passport.png"),
	})
	require.NoError(t, err)

	assert.False(t, result.SumsubAttempted)
	assert.Empty(t, result.Warnings)
	assert.Empty(t, provider.submissions)
	assert.NotEmpty(t, result.FrontURL)
	assert.Empty(t, result.BackURL)

	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	require.NotNil(t, stored.KYC.Passport)
	assert.Equal(t, models.KYCStatusUnderReview, stored.KYC.Passport.Status)
}

func TestSubmitRejectsDisallowedMimeBeforeStorage(t *testing.T) {
	svc, repo, storage, _, user := newDocumentFixture(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "driver_license",
		Country: "US",
		Front:   &DecodedImage{Bytes: []byte("gif"), MimeType: "image/gif", FileName: "front.gif"},
		Back:    jpeg("back.jpg"),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, storage.stored, "no storage write before validation passes")

	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored.KYC.DriverLicense)
	assert.EqualValues(t, 1, stored.Version)
}

func TestSubmitRejectsUnknownIDType(t *testing.T) {
	svc, _, storage, _, user := newDocumentFixture(t)

	_, err := svc.Submit(context.Background(), SubmissionRequest{
		UserID: user.UserID,
		IDType: "library_card",
		Front:  jpeg("front.jpg"),
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, storage.stored)
}

func TestSubmitRequiresBackForTwoSidedTypes(t *testing.T) {
	svc, _, _, _, user := newDocumentFixture(t)

	for _, idType := range []string{"driver_license", "national_id"} {
		_, err := svc.Submit(context.Background(), SubmissionRequest{
			UserID: user.UserID,
			IDType: idType,
			Front:  jpeg("front.jpg"),
		})
		assert.ErrorIs(t, err, ErrInvalidInput, "idType %s", idType)
	}
}

func TestSubmitPassportIgnoresBackImage(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "passport",
		Country: "DE",
		Front:   jpeg("front.jpg"),
		Back:    jpeg("back.jpg"),
	})
	require.NoError(t, err)
	assert.Empty(t, result.BackURL)

	// Only the front goes to the provider, with no side marker.
	require.Len(t, provider.submissions, 1)
	assert.Equal(t, "PASSPORT", provider.submissions[0].IDDocType)
	assert.Empty(t, provider.submissions[0].IDDocSubType)

	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	assert.Empty(t, stored.KYC.Passport.BackURL)
}

func TestSubmitNormalizesAliases(t *testing.T) {
	svc, _, _, _, user := newDocumentFixture(t)

	result, err := svc.Submit(context.Background(), SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "drivers",
		Country: "GB",
		Front:   jpeg("front.jpg"),
		Back:    jpeg("back.jpg"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.IDTypeDriverLicense, result.IDType)
}

func TestSubmitSkipsApplicantCreationWhenPresent(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.SumsubApplicantID = "existing-app"
		return nil
	})
	require.NoError(t, err)

	result, err := svc.Submit(ctx, SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "passport",
		Country: "FR",
		Front:   jpeg("front.jpg"),
	})
	require.NoError(t, err)

	assert.Zero(t, provider.createCalls, "existing applicant must not trigger a second creation")
	assert.True(t, result.SumsubAttempted)
	require.Len(t, provider.submissions, 1)
	assert.Equal(t, "existing-app", provider.submissions[0].ApplicantID)
}

func TestSubmitApplicantCreationFailureDegradesToWarning(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	provider.createErr = fmt.Errorf("provider down")
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "passport",
		Country: "FR",
		Front:   jpeg("front.jpg"),
	})
	require.NoError(t, err)

	assert.Contains(t, result.Warnings, WarnApplicantCreateFailed)
	assert.False(t, result.SumsubAttempted, "no applicant id, nothing to submit against")
	assert.Empty(t, provider.submissions)

	// Local bookkeeping still happened.
	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	require.NotNil(t, stored.KYC.Passport)
	assert.Equal(t, models.KYCStatusUnderReview, stored.KYC.Passport.Status)
}

func TestSubmitProviderRejectionDegradesToWarnings(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	provider.submitResult = sumsub.Result{Success: false, Code: 502, Message: "bad gateway"}
	ctx := context.Background()

	result, err := svc.Submit(ctx, SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "national_id",
		Country: "US",
		Front:   jpeg("front.jpg"),
		Back:    jpeg("back.jpg"),
	})
	require.NoError(t, err)

	assert.True(t, result.SumsubAttempted)
	assert.Contains(t, result.Warnings, WarnFrontSubmitFailed)
	assert.Contains(t, result.Warnings, WarnBackSubmitFailed)

	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusUnderReview, stored.KYC.NationalID.Status)
}

func TestSubmitStorageFailureAborts(t *testing.T) {
	svc, repo, storage, _, user := newDocumentFixture(t)
	storage.fail = true

	_, err := svc.Submit(context.Background(), SubmissionRequest{
		UserID:  user.UserID,
		IDType:  "passport",
		Country: "US",
		Front:   jpeg("front.jpg"),
	})
	require.Error(t, err)

	stored, err := repo.GetUserByID(context.Background(), user.UserID)
	require.NoError(t, err)
	assert.Nil(t, stored.KYC.Passport)
}

func TestSubmitUnknownUser(t *testing.T) {
	svc, _, _, _, _ := newDocumentFixture(t)

	_, err := svc.Submit(context.Background(), SubmissionRequest{
		UserID: "missing",
		IDType: "passport",
		Front:  jpeg("front.jpg"),
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResubmissionOverwritesSlot(t *testing.T) {
	svc, repo, _, _, user := newDocumentFixture(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmissionRequest{
		UserID: user.UserID,
		IDType: "passport",
		Front:  jpeg("v1.jpg"),
	})
	require.NoError(t, err)

	// Simulate a prior rejection, then resubmit.
	_, err = repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.KYC.Passport.Status = models.KYCStatusRejected
		u.KYC.Passport.ReviewAnswer = models.ReviewAnswerRed
		return nil
	})
	require.NoError(t, err)

	second, err := svc.Submit(ctx, SubmissionRequest{
		UserID: user.UserID,
		IDType: "passport",
		Front:  png("v2.png"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.FrontURL, second.FrontURL)

	stored, err := repo.GetUserByID(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.KYCStatusUnderReview, stored.KYC.Passport.Status)
	// Prior verdict metadata survives until the next reconciliation.
	assert.Equal(t, models.ReviewAnswerRed, stored.KYC.Passport.ReviewAnswer)
}

func TestStatusReturnsNullableSlots(t *testing.T) {
	svc, _, _, _, user := newDocumentFixture(t)
	ctx := context.Background()

	status, err := svc.Status(ctx, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, status.Passport)
	assert.Nil(t, status.DriverLicense)
	assert.Nil(t, status.NationalID)

	_, err = svc.Submit(ctx, SubmissionRequest{
		UserID: user.UserID,
		IDType: "passport",
		Front:  jpeg("front.jpg"),
	})
	require.NoError(t, err)

	status, err = svc.Status(ctx, user.UserID)
	require.NoError(t, err)
	require.NotNil(t, status.Passport)
	assert.Equal(t, models.KYCStatusUnderReview, status.Passport.Status)
	assert.Nil(t, status.NationalID)
}

func TestSubmitMetadataRequiresApplicant(t *testing.T) {
	svc, _, _, _, user := newDocumentFixture(t)

	_, err := svc.SubmitMetadata(context.Background(), user.UserID, "PASSPORT", "DE", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitMetadataUppercases(t *testing.T) {
	svc, repo, _, provider, user := newDocumentFixture(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.SumsubApplicantID = "app-7"
		return nil
	})
	require.NoError(t, err)

	result, err := svc.SubmitMetadata(ctx, user.UserID, "drivers", "gb", "front_side")
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, provider.submissions, 1)
	assert.Equal(t, "DRIVERS", provider.submissions[0].IDDocType)
	assert.Equal(t, "GB", provider.submissions[0].Country)
	assert.Equal(t, "FRONT_SIDE", provider.submissions[0].IDDocSubType)
}
