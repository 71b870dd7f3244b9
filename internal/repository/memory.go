package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"kyc-service/internal/models"
)

// MemoryUserRepository is the in-process store used by tests and by
// development runs without a Scylla cluster. The single mutex satisfies the
// Update atomicity contract trivially.
type MemoryUserRepository struct {
	mu          sync.RWMutex
	byID        map[string]*models.User
	byEmail     map[string]string
	byApplicant map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:        make(map[string]*models.User),
		byEmail:     make(map[string]string),
		byApplicant: make(map[string]string),
	}
}

func (r *MemoryUserRepository) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrUserExists
	}
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()
	user.Version = 1

	r.byID[user.UserID] = user.Clone()
	r.byEmail[email] = user.UserID
	if user.SumsubApplicantID != "" {
		r.byApplicant[user.SumsubApplicantID] = user.UserID
	}
	return nil
}

func (r *MemoryUserRepository) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *MemoryUserRepository) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryUserRepository) GetUserByApplicantID(_ context.Context, applicantID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byApplicant[applicantID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryUserRepository) Update(_ context.Context, userID string, mutate func(*models.User) error) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	now := time.Now().UTC()
	next.UpdatedAt = &now

	r.byID[userID] = next
	if next.SumsubApplicantID != "" {
		r.byApplicant[next.SumsubApplicantID] = userID
	}
	return next.Clone(), nil
}

func (r *MemoryUserRepository) HealthCheck(context.Context) error {
	return nil
}
