package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"kyc-service/internal/service"
	"kyc-service/internal/sumsub"
	"kyc-service/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidOTP):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotVerified):
		return http.StatusForbidden
	case errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrKYCIncomplete):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, sumsub.ErrMissingCredentials):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
