package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"kyc-service/internal/service"
	"kyc-service/internal/sumsub"
	"kyc-service/internal/util"
)

// SumsubHandler handles the provider webhook and the direct provider
// endpoints.
type SumsubHandler struct {
	reconciler *service.WebhookReconciler
	docService *service.DocumentSubmissionService
	logger     *zap.Logger
}

func NewSumsubHandler(reconciler *service.WebhookReconciler, docService *service.DocumentSubmissionService, logger *zap.Logger) *SumsubHandler {
	return &SumsubHandler{
		reconciler: reconciler,
		docService: docService,
		logger:     logger,
	}
}

// Webhook ingests provider review callbacks. It acknowledges every delivery
// with 200 regardless of internal outcome; a non-ack would trigger the
// provider's redelivery storm on what may be a purely local bug.
func (h *SumsubHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var event sumsub.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.logger.Warn("Undecodable webhook payload", util.ErrorField(err))
		respondWithJSON(w, http.StatusOK, successResponse(nil, "OK"))
		return
	}

	h.reconciler.Process(r.Context(), &event)
	respondWithJSON(w, http.StatusOK, successResponse(nil, "OK"))
}

// CreateApplicant provisions the caller's verification-provider applicant,
// returning the existing id when one is already set.
func (h *SumsubHandler) CreateApplicant(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	applicantID, err := h.docService.EnsureApplicant(r.Context(), userID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to create applicant")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"applicantId": applicantID,
	}, "Applicant ready"))
}

// UploadDocumentData forwards a metadata-only document record to the
// provider for the caller's applicant.
func (h *SumsubHandler) UploadDocumentData(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req struct {
		IDDocType    string `json:"idDocType"`
		Country      string `json:"country"`
		IDDocSubType string `json:"idDocSubType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.docService.SubmitMetadata(r.Context(), userID, req.IDDocType, req.Country, req.IDDocSubType)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to submit document metadata")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(result, "Document metadata submitted"))
}
