package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kyc-service/internal/bucketing"
	"kyc-service/internal/config"
	"kyc-service/internal/encryption"
	"kyc-service/internal/models"
	"kyc-service/internal/notification"
	"kyc-service/internal/repository"
	redisrepo "kyc-service/internal/repository/redis"
	"kyc-service/internal/util"
)

const (
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5
	bcryptCost     = 10

	CardTypeVirtual  = "virtual"
	CardTypePhysical = "physical"
)

// AuthService owns the signup funnel around the KYC core: account creation,
// OTP verification, login, password reset, and the post-verification card
// step.
type AuthService struct {
	repo    repository.UserRepository
	otps    *redisrepo.OTPCache
	email   notification.EmailSender
	sms     notification.SMSSender
	enc     *encryption.Manager
	buckets *bucketing.Manager
	docs    *DocumentSubmissionService
	jwtCfg  config.JWTConfig
	logger  *zap.Logger
	now     func() time.Time
}

func NewAuthService(
	repo repository.UserRepository,
	otps *redisrepo.OTPCache,
	email notification.EmailSender,
	sms notification.SMSSender,
	enc *encryption.Manager,
	buckets *bucketing.Manager,
	docs *DocumentSubmissionService,
	jwtCfg config.JWTConfig,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		repo:    repo,
		otps:    otps,
		email:   email,
		sms:     sms,
		enc:     enc,
		buckets: buckets,
		docs:    docs,
		jwtCfg:  jwtCfg,
		logger:  logger,
		now:     time.Now,
	}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// SignupStep1 registers a new account. The email must be unused; the phone
// number is envelope-encrypted at rest when a KMS manager is configured.
func (s *AuthService) SignupStep1(ctx context.Context, req SignupRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if s.enc != nil && user.Phone != "" {
		blob, keyID, err := s.enc.Encrypt(ctx, []byte(user.Phone))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt phone: %w", err)
		}
		user.PhoneEncrypted = blob
		user.PhoneKeyID = keyID
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if err == repository.ErrUserExists {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.UserBucket = s.buckets.UserBucket(user.UserID)

	s.logger.Info("user registered", util.String("user_id", user.UserID))
	return user, nil
}

// SendOTP generates and delivers a 6-digit one-time code over the requested
// channel ("email" or "sms"). Attempts are rate-limited per address.
func (s *AuthService) SendOTP(ctx context.Context, email, channel string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	attempts, err := s.otps.IncrementAttempts(ctx, email, otpTTL)
	if err != nil {
		s.logger.Warn("failed to track otp attempts", util.ErrorField(err))
	} else if attempts > otpMaxAttempts {
		return ErrTooManyAttempts
	}

	code, err := randomCode(6)
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	if err := s.otps.SetOTP(ctx, email, code, otpTTL); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	switch channel {
	case "sms":
		phone := user.Phone
		if phone == "" && len(user.PhoneEncrypted) > 0 && s.enc != nil {
			plain, err := s.enc.Decrypt(ctx, user.PhoneEncrypted)
			if err != nil {
				return fmt.Errorf("failed to decrypt phone: %w", err)
			}
			phone = string(plain)
		}
		if phone == "" {
			return fmt.Errorf("%w: no phone number on file", ErrInvalidInput)
		}
		if err := s.sms.SendSMS(ctx, phone, body); err != nil {
			return fmt.Errorf("failed to send otp sms: %w", err)
		}
	default:
		if err := s.email.SendEmail(ctx, email, "Your verification code", body); err != nil {
			return fmt.Errorf("failed to send otp email: %w", err)
		}
	}

	s.logger.Info("otp sent", util.String("user_id", user.UserID), util.String("channel", channel))
	return nil
}

// VerifyOTPResult reports verification plus any degraded provisioning steps.
type VerifyOTPResult struct {
	User     *models.User `json:"user"`
	Warnings []string     `json:"warnings,omitempty"`
}

// VerifyOTP checks the code, marks the account verified, and idempotently
// provisions a verification-provider applicant. Applicant-creation failure
// is a warning, never a verification failure.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*VerifyOTPResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	stored, err := s.otps.GetOTP(ctx, email)
	if err != nil || stored == "" || stored != strings.TrimSpace(code) {
		return nil, ErrInvalidOTP
	}
	if err := s.otps.DeleteOTP(ctx, email); err != nil {
		s.logger.Warn("failed to delete consumed otp", util.ErrorField(err))
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	updated, err := s.repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.IsVerified = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark user verified: %w", err)
	}

	var warnings []string
	if _, err := s.docs.EnsureApplicant(ctx, updated.UserID); err != nil {
		s.logger.Warn("applicant provisioning failed after verification",
			util.String("user_id", updated.UserID), util.ErrorField(err))
		warnings = append(warnings, WarnApplicantCreateFailed)
	} else if fresh, err := s.repo.GetUserByID(ctx, updated.UserID); err == nil {
		updated = fresh
	}

	return &VerifyOTPResult{User: updated, Warnings: warnings}, nil
}

// Login authenticates a verified account and issues a JWT.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return "", nil, ErrNotVerified
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}

// ForgotPassword emails a short-lived reset code.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := s.repo.GetUserByEmail(ctx, email); err != nil {
		if err == repository.ErrUserNotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	code, err := randomCode(6)
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	if err := s.otps.SetResetCode(ctx, email, code, otpTTL); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}
	body := fmt.Sprintf("Your password reset code is %s. It expires in 10 minutes.", code)
	if err := s.email.SendEmail(ctx, email, "Password reset", body); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset code and replaces the password hash.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	stored, err := s.otps.GetResetCode(ctx, email)
	if err != nil || stored == "" || stored != strings.TrimSpace(code) {
		return ErrInvalidOTP
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if _, err := s.repo.Update(ctx, user.UserID, func(u *models.User) error {
		u.PasswordHash = string(hash)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.otps.DeleteResetCode(ctx, email); err != nil {
		s.logger.Warn("failed to delete consumed reset code", util.ErrorField(err))
	}
	return nil
}

type CardRequest struct {
	CardType string          `json:"cardType"`
	Address  *models.Address `json:"address,omitempty"`
}

// SignupStep3 records the user's card choice. A populated nationalId KYC
// slot is required before any card can be provisioned; a physical card
// additionally needs a shipping address, a virtual card gets provisioned
// card fields immediately.
func (s *AuthService) SignupStep3(ctx context.Context, userID string, req CardRequest) (*models.User, error) {
	if req.CardType != CardTypeVirtual && req.CardType != CardTypePhysical {
		return nil, fmt.Errorf("%w: cardType must be virtual or physical", ErrInvalidInput)
	}
	if req.CardType == CardTypePhysical {
		if req.Address == nil || req.Address.Address == "" || req.Address.City == "" || req.Address.Zip == "" {
			return nil, fmt.Errorf("%w: shipping address is required for a physical card", ErrInvalidInput)
		}
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if slot := user.KYC.NationalID; slot == nil || slot.FrontURL == "" {
		return nil, ErrKYCIncomplete
	}

	updated, err := s.repo.Update(ctx, userID, func(u *models.User) error {
		u.CardType = req.CardType
		if req.CardType == CardTypePhysical {
			u.Address = req.Address
			return nil
		}
		number, err := randomCode(4)
		if err != nil {
			return err
		}
		cvv, err := randomCode(3)
		if err != nil {
			return err
		}
		u.CardNumber = "**** **** **** " + number
		u.CardExpiry = s.now().AddDate(3, 0, 0).Format("01/06")
		u.CardCVV = cvv
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save card choice: %w", err)
	}
	return updated, nil
}

// ParseToken validates a JWT and returns the subject user id.
func (s *AuthService) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidCredentials
	}
	return sub, nil
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.UserID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.jwtCfg.TTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtCfg.Secret))
}

// randomCode returns n random decimal digits.
func randomCode(n int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < n; i++ {
		max.Mul(max, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
