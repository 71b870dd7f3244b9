package service

import "errors"

// Sentinel errors returned by the service layer. Handlers map these onto
// HTTP status codes.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account not verified")
	ErrInvalidOTP         = errors.New("invalid or expired code")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrKYCIncomplete      = errors.New("identity verification incomplete")
	ErrProvider           = errors.New("verification provider error")
)
