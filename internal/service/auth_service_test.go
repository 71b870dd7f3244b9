package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kyc-service/internal/bucketing"
	"kyc-service/internal/config"
	"kyc-service/internal/models"
	"kyc-service/internal/notification"
	"kyc-service/internal/repository"
)

// newAuthFixture wires an AuthService against the in-memory store. The OTP
// cache is left nil; flows that need it are covered elsewhere.
func newAuthFixture(t *testing.T) (*AuthService, *repository.MemoryUserRepository) {
	t.Helper()
	repo := repository.NewMemoryUserRepository()
	svc := NewAuthService(
		repo, nil,
		notification.NoopEmailSender{}, notification.NoopSMSSender{},
		nil, bucketing.NewManager(64), nil,
		config.JWTConfig{Secret: "test-secret", TTL: 7 * 24 * time.Hour},
		zap.NewNop(),
	)
	return svc, repo
}

func TestSignupStep1(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.SignupStep1(ctx, SignupRequest{
		Email:    "New.User@Example.com",
		Phone:    "+15551234567",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.UserID)
	assert.Equal(t, "new.user@example.com", user.Email)
	assert.False(t, user.IsVerified)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")))

	stored, err := repo.GetUserByEmail(ctx, "new.user@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, stored.UserID)
}

func TestSignupStep1Validation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.SignupStep1(ctx, SignupRequest{Email: "not-an-email", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignupStep1DuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)
	_, err = svc.SignupStep1(ctx, SignupRequest{Email: "A@B.C", Password: "longenough"})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestLoginIssuesParseableToken(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)
	_, err = repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.IsVerified = true
		return nil
	})
	require.NoError(t, err)

	token, logged, err := svc.Login(ctx, "a@b.c", "longenough")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, logged.UserID)

	subject, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, subject)
}

func TestLoginRejectsUnverified(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@b.c", "longenough")
	assert.ErrorIs(t, err, ErrNotVerified)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "a@b.c", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@b.c", "longenough")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown email must not be distinguishable")
}

func TestParseTokenRejectsTampered(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)
	_, err = repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.IsVerified = true
		return nil
	})
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, "a@b.c", "longenough")
	require.NoError(t, err)

	_, err = svc.ParseToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignupStep3RequiresNationalID(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)

	_, err = svc.SignupStep3(ctx, user.UserID, CardRequest{CardType: CardTypeVirtual})
	assert.ErrorIs(t, err, ErrKYCIncomplete)
}

func TestSignupStep3VirtualCard(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)
	_, err = repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.KYC.EnsureSlot(models.SlotNationalID).FrontURL = "front"
		return nil
	})
	require.NoError(t, err)

	updated, err := svc.SignupStep3(ctx, user.UserID, CardRequest{CardType: CardTypeVirtual})
	require.NoError(t, err)
	assert.Equal(t, CardTypeVirtual, updated.CardType)
	assert.Regexp(t, `^\*\*\*\* \*\*\*\* \*\*\*\* \d{4}$`, updated.CardNumber)
	assert.Regexp(t, `^\d{2}/\d{2}$`, updated.CardExpiry)
	assert.Regexp(t, `^\d{3}$`, updated.CardCVV)
}

func TestSignupStep3PhysicalCardNeedsAddress(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.SignupStep1(ctx, SignupRequest{Email: "a@b.c", Password: "longenough"})
	require.NoError(t, err)
	_, err = repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.KYC.EnsureSlot(models.SlotNationalID).FrontURL = "front"
		return nil
	})
	require.NoError(t, err)

	_, err = svc.SignupStep3(ctx, user.UserID, CardRequest{CardType: CardTypePhysical})
	assert.ErrorIs(t, err, ErrInvalidInput)

	updated, err := svc.SignupStep3(ctx, user.UserID, CardRequest{
		CardType: CardTypePhysical,
		Address:  &models.Address{Address: "1 Main St", City: "Austin", State: "TX", Zip: "78701"},
	})
	require.NoError(t, err)
	assert.Equal(t, CardTypePhysical, updated.CardType)
	require.NotNil(t, updated.Address)
	assert.Equal(t, "Austin", updated.Address.City)
	assert.Empty(t, updated.CardNumber)
}

func TestSignupStep3RejectsUnknownCardType(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, err := svc.SignupStep3(context.Background(), "any", CardRequest{CardType: "titanium"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
