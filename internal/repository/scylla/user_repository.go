package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kyc-service/internal/bucketing"
	"kyc-service/internal/models"
	"kyc-service/internal/repository"
	"kyc-service/internal/util"
)

const casRetries = 3

// UserRepository persists users in Scylla. The main table is keyed by
// (user_bucket, user_id); users_by_email and users_by_applicant are lookup
// tables maintained in the same logged batch. KYC slots and the address are
// serialized as JSON text columns. Update relies on an LWT compare-and-swap
// over the version column.
type UserRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
	logger    *zap.Logger
}

func NewUserRepository(client *ScyllaClient, bucketing *bucketing.Manager, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		bucketing: bucketing,
		logger:    logger,
	}
}

const (
	insertUserCQL = `INSERT INTO users (
		user_bucket, user_id, email, phone, phone_encrypted, phone_key_id,
		password_hash, is_verified, sumsub_applicant_id, id_type, id_front_url,
		id_back_url, id_status, kyc, card_type, card_number, card_expiry,
		card_cvv, address, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertEmailLookupCQL     = `INSERT INTO users_by_email (email, user_bucket, user_id) VALUES (?, ?, ?) IF NOT EXISTS`
	insertApplicantLookupCQL = `INSERT INTO users_by_applicant (applicant_id, user_bucket, user_id) VALUES (?, ?, ?)`

	selectUserCQL = `SELECT user_id, email, phone, phone_encrypted, phone_key_id,
		password_hash, is_verified, sumsub_applicant_id, id_type, id_front_url,
		id_back_url, id_status, kyc, card_type, card_number, card_expiry,
		card_cvv, address, version, created_at, updated_at
		FROM users WHERE user_bucket = ? AND user_id = ?`

	selectEmailLookupCQL     = `SELECT user_bucket, user_id FROM users_by_email WHERE email = ?`
	selectApplicantLookupCQL = `SELECT user_bucket, user_id FROM users_by_applicant WHERE applicant_id = ?`

	updateUserCQL = `UPDATE users SET
		phone = ?, phone_encrypted = ?, phone_key_id = ?, password_hash = ?,
		is_verified = ?, sumsub_applicant_id = ?, id_type = ?, id_front_url = ?,
		id_back_url = ?, id_status = ?, kyc = ?, card_type = ?, card_number = ?,
		card_expiry = ?, card_cvv = ?, address = ?, version = ?, updated_at = ?
		WHERE user_bucket = ? AND user_id = ? IF version = ?`
)

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.UserBucket = r.bucketing.UserBucket(user.UserID)
	user.CreatedAt = time.Now().UTC()
	user.Version = 1

	// Claim the email first; the LWT rejects duplicate registrations.
	applied, err := r.client.Session.Query(insertEmailLookupCQL,
		user.Email, user.UserBucket, user.UserID).WithContext(ctx).ScanCAS(nil, nil)
	if err != nil {
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if !applied {
		return repository.ErrUserExists
	}

	kycJSON, addressJSON, err := encodeJSONColumns(user)
	if err != nil {
		return err
	}

	if err := r.client.Session.Query(insertUserCQL,
		user.UserBucket, user.UserID, user.Email, user.Phone, user.PhoneEncrypted,
		user.PhoneKeyID, user.PasswordHash, user.IsVerified, user.SumsubApplicantID,
		user.IDType, user.IDFrontURL, user.IDBackURL, user.IDStatus, kycJSON,
		user.CardType, user.CardNumber, user.CardExpiry, user.CardCVV, addressJSON,
		user.Version, user.CreatedAt, user.UpdatedAt).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))
	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	return r.getUser(ctx, r.bucketing.UserBucket(userID), userID)
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var bucket int
	var userID string
	err := r.client.Session.Query(selectEmailLookupCQL, email).WithContext(ctx).Scan(&bucket, &userID)
	if err == gocql.ErrNotFound {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve email: %w", err)
	}
	return r.getUser(ctx, bucket, userID)
}

func (r *UserRepository) GetUserByApplicantID(ctx context.Context, applicantID string) (*models.User, error) {
	var bucket int
	var userID string
	err := r.client.Session.Query(selectApplicantLookupCQL, applicantID).WithContext(ctx).Scan(&bucket, &userID)
	if err == gocql.ErrNotFound {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve applicant id: %w", err)
	}
	return r.getUser(ctx, bucket, userID)
}

// Update performs read-CAS-write with a bounded retry loop. The mutate
// callback runs on a fresh read each attempt so concurrent writers converge
// instead of clobbering each other mid-record.
func (r *UserRepository) Update(ctx context.Context, userID string, mutate func(*models.User) error) (*models.User, error) {
	bucket := r.bucketing.UserBucket(userID)

	for attempt := 0; attempt < casRetries; attempt++ {
		user, err := r.getUser(ctx, bucket, userID)
		if err != nil {
			return nil, err
		}

		previousVersion := user.Version
		hadApplicant := user.SumsubApplicantID != ""

		if err := mutate(user); err != nil {
			return nil, err
		}
		user.Version = previousVersion + 1
		now := time.Now().UTC()
		user.UpdatedAt = &now

		kycJSON, addressJSON, err := encodeJSONColumns(user)
		if err != nil {
			return nil, err
		}

		applied, err := r.client.Session.Query(updateUserCQL,
			user.Phone, user.PhoneEncrypted, user.PhoneKeyID, user.PasswordHash,
			user.IsVerified, user.SumsubApplicantID, user.IDType, user.IDFrontURL,
			user.IDBackURL, user.IDStatus, kycJSON, user.CardType, user.CardNumber,
			user.CardExpiry, user.CardCVV, addressJSON, user.Version, user.UpdatedAt,
			bucket, userID, previousVersion).WithContext(ctx).ScanCAS(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		if !applied {
			util.Debug("User update CAS conflict, retrying",
				zap.String("user_id", userID),
				zap.Int("attempt", attempt+1))
			continue
		}

		if user.SumsubApplicantID != "" && !hadApplicant {
			if err := r.client.Session.Query(insertApplicantLookupCQL,
				user.SumsubApplicantID, bucket, userID).WithContext(ctx).Exec(); err != nil {
				util.Error("Failed to index applicant id",
					zap.String("user_id", userID),
					zap.Error(err))
			}
		}
		return user, nil
	}
	return nil, repository.ErrVersionConflict
}

func (r *UserRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func (r *UserRepository) getUser(ctx context.Context, bucket int, userID string) (*models.User, error) {
	user := &models.User{UserBucket: bucket}
	var kycJSON, addressJSON string

	err := r.client.Session.Query(selectUserCQL, bucket, userID).WithContext(ctx).Scan(
		&user.UserID, &user.Email, &user.Phone, &user.PhoneEncrypted, &user.PhoneKeyID,
		&user.PasswordHash, &user.IsVerified, &user.SumsubApplicantID, &user.IDType,
		&user.IDFrontURL, &user.IDBackURL, &user.IDStatus, &kycJSON, &user.CardType,
		&user.CardNumber, &user.CardExpiry, &user.CardCVV, &addressJSON,
		&user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err == gocql.ErrNotFound {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		util.Error("Failed to get user",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if kycJSON != "" {
		if err := json.Unmarshal([]byte(kycJSON), &user.KYC); err != nil {
			return nil, fmt.Errorf("failed to decode kyc column: %w", err)
		}
	}
	if addressJSON != "" {
		if err := json.Unmarshal([]byte(addressJSON), &user.Address); err != nil {
			return nil, fmt.Errorf("failed to decode address column: %w", err)
		}
	}
	return user, nil
}

func encodeJSONColumns(user *models.User) (kycJSON, addressJSON string, err error) {
	kycBytes, err := json.Marshal(user.KYC)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode kyc column: %w", err)
	}
	kycJSON = string(kycBytes)

	if user.Address != nil {
		addressBytes, err := json.Marshal(user.Address)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode address column: %w", err)
		}
		addressJSON = string(addressBytes)
	}
	return kycJSON, addressJSON, nil
}
