package repository

import (
	"context"
	"errors"

	"kyc-service/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrVersionConflict = errors.New("concurrent update conflict")
)

// UserRepository is the record store the KYC core depends on. Update is the
// atomicity contract for read-modify-write: a submission and a concurrent
// reconciliation touching the same user must not interleave a partial write,
// so both flows mutate through Update rather than a bare read+save.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByApplicantID(ctx context.Context, applicantID string) (*models.User, error)

	// Update applies mutate to the current record under a compare-and-swap
	// on the record version, retrying on conflict. The mutated record is
	// returned. Last-writer-wins at the field level is acceptable; partial
	// interleaving is not.
	Update(ctx context.Context, userID string, mutate func(*models.User) error) (*models.User, error)

	HealthCheck(ctx context.Context) error
}
