package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"kyc-service/internal/service"
	"kyc-service/internal/util"
)

// AuthHandler handles the signup funnel and session endpoints.
type AuthHandler struct {
	authService *service.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes registers public auth routes; protected routes are mounted
// by the router behind AuthMiddleware.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/signup/step1", h.SignupStep1)
	router.Post("/send-otp", h.SendOTP)
	router.Post("/resend-otp", h.SendOTP)
	router.Post("/verify-otp", h.VerifyOTP)
	router.Post("/login", h.Login)
	router.Post("/forgot-password", h.ForgotPassword)
	router.Post("/reset-password", h.ResetPassword)
}

func (h *AuthHandler) SignupStep1(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.authService.SignupStep1(ctx, req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to create account")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(user, "Account created"))
	h.logger.Info("User registered via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.authService.SendOTP(r.Context(), req.Email, req.Channel); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to send verification code")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification code sent"))
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.authService.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Verification failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Account verified"))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Login failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"token": token,
		"user":  user,
	}, "Logged in"))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to send reset code")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Reset code sent"))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to reset password")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated"))
}

// SignupStep3 records the card choice; requires authentication.
func (h *AuthHandler) SignupStep3(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req service.CardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.authService.SignupStep3(r.Context(), userID, req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to save card choice")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(user, "Card choice saved"))
}
