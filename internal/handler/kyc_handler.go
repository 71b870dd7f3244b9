package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/service"
	"kyc-service/internal/util"
)

const maxUploadBytes = 20 << 20 // per request, both sides included

// KYCHandler handles document submission and status endpoints.
type KYCHandler struct {
	docService *service.DocumentSubmissionService
	logger     *zap.Logger
}

func NewKYCHandler(docService *service.DocumentSubmissionService, logger *zap.Logger) *KYCHandler {
	return &KYCHandler{
		docService: docService,
		logger:     logger,
	}
}

// documentJSONRequest is the base64/data-URL shape of a submission.
type documentJSONRequest struct {
	IDType        string `json:"idType"`
	Country       string `json:"country"`
	FrontImage    string `json:"frontImage"`
	BackImage     string `json:"backImage"`
	FrontFileName string `json:"frontFileName"`
	BackFileName  string `json:"backFileName"`
}

// SubmitDocuments handles signup step 2. Images arrive either as a
// multipart form (file parts "front"/"back") or as a JSON body with
// base64/data-URL strings; both shapes converge on the same service call.
func (h *KYCHandler) SubmitDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()
	userID := UserIDFromContext(ctx)

	req := service.SubmissionRequest{UserID: userID}
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = h.parseMultipart(r, &req)
	} else {
		err = h.parseJSON(r, &req)
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid document submission")
		return
	}

	result, err := h.docService.Submit(ctx, req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to submit documents")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(result, "Documents submitted"))
	h.logger.Info("Documents submitted via HTTP",
		util.String("user_id", userID),
		util.String("id_type", result.IDType),
		util.Bool("provider_attempted", result.SumsubAttempted),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Status returns the three per-document KYC slots, each nullable.
func (h *KYCHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.docService.Status(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to load KYC status")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(status, "KYC status retrieved"))
}

func (h *KYCHandler) parseMultipart(r *http.Request, req *service.SubmissionRequest) error {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return fmt.Errorf("failed to parse multipart form: %w", err)
	}
	req.IDType = r.FormValue("idType")
	req.Country = r.FormValue("country")

	front, frontHeader, err := r.FormFile("front")
	if err != nil {
		return fmt.Errorf("front image part is required: %w", err)
	}
	defer front.Close()
	req.Front, err = service.DecodeUpload(front, frontHeader)
	if err != nil {
		return err
	}

	back, backHeader, err := r.FormFile("back")
	if err == nil {
		defer back.Close()
		req.Back, err = service.DecodeUpload(back, backHeader)
		if err != nil {
			return err
		}
	} else if err != http.ErrMissingFile {
		return fmt.Errorf("failed to read back image: %w", err)
	}
	return nil
}

func (h *KYCHandler) parseJSON(r *http.Request, req *service.SubmissionRequest) error {
	var body documentJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	req.IDType = body.IDType
	req.Country = body.Country

	if body.FrontImage != "" {
		name := body.FrontFileName
		if name == "" {
			name = "front"
		}
		front, err := service.DecodeBase64(body.FrontImage, name)
		if err != nil {
			return err
		}
		req.Front = front
	}
	if body.BackImage != "" {
		name := body.BackFileName
		if name == "" {
			name = "back"
		}
		back, err := service.DecodeBase64(body.BackImage, name)
		if err != nil {
			return err
		}
		req.Back = back
	}
	return nil
}
