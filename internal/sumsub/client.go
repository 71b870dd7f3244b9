package sumsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

// Client talks to the Sumsub REST API. Every request is independently signed
// over its own method, path and body. For multipart requests the body is
// fully materialized before signing; a streamed body would produce a
// signature over bytes the server never sees.
type Client struct {
	baseURL    string
	levelName  string
	signer     *Signer
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewClient(cfg config.SumsubConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		levelName: cfg.LevelName,
		signer:    NewSigner(cfg.AppToken, cfg.SecretKey),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// LevelName returns the configured verification level.
func (c *Client) LevelName() string {
	return c.levelName
}

// CreateApplicant registers a new applicant and returns the provider id.
// The call is NOT idempotent server-side; callers must skip it when the user
// already carries an applicant id.
func (c *Client) CreateApplicant(ctx context.Context, externalUserID, levelName string, fixedInfo FixedInfo) (string, error) {
	if err := c.signer.CheckCredentials(); err != nil {
		return "", err
	}
	if levelName == "" {
		levelName = c.levelName
	}

	endpointPath := "/resources/applicants?levelName=" + url.QueryEscape(levelName)
	body, err := json.Marshal(createApplicantRequest{
		ExternalUserID: externalUserID,
		FixedInfo:      fixedInfo,
		Metadata:       []interface{}{},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal applicant request: %w", err)
	}

	req, err := c.newSignedRequest(ctx, http.MethodPost, endpointPath, body, "application/json")
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sumsub create applicant: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Sumsub applicant creation failed",
			util.Int("status", resp.StatusCode),
			util.String("external_user_id", externalUserID),
		)
		return "", fmt.Errorf("sumsub create applicant: status %d: %s", resp.StatusCode, truncate(respBody, 512))
	}

	var applicant applicantResponse
	if err := json.Unmarshal(respBody, &applicant); err != nil {
		return "", fmt.Errorf("failed to decode applicant response: %w", err)
	}
	if applicant.ID == "" {
		return "", fmt.Errorf("sumsub create applicant: response missing id")
	}

	c.logger.Info("Sumsub applicant created",
		util.String("applicant_id", applicant.ID),
		util.String("external_user_id", externalUserID),
	)
	return applicant.ID, nil
}

// SubmitDocument uploads one document image for the applicant. Provider
// failures are reported through the Result, never as an error, so a provider
// outage cannot block local KYC bookkeeping.
func (c *Client) SubmitDocument(ctx context.Context, doc DocumentUpload) Result {
	if err := c.signer.CheckCredentials(); err != nil {
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}

	metadata := DocumentMetadata{
		IDDocType: strings.ToUpper(doc.IDDocType),
		Country:   strings.ToUpper(doc.Country),
	}
	if doc.IDDocSubType != "" {
		metadata.IDDocSubType = strings.ToUpper(doc.IDDocSubType)
	}

	body, contentType, err := buildIDDocBody(metadata, doc.FileBytes, doc.FileName, doc.MimeType)
	if err != nil {
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}

	endpointPath := "/resources/applicants/" + doc.ApplicantID + "/info/idDoc"
	req, err := c.newSignedRequest(ctx, http.MethodPost, endpointPath, body, contentType)
	if err != nil {
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}
	req.Header.Set("X-Return-Doc-Warnings", "true")

	return c.doSubmit(req, doc.ApplicantID)
}

// SubmitDocumentMetadataOnly submits document metadata without file content,
// as a multipart body with only the metadata part. Same signing discipline
// and failure semantics as SubmitDocument.
func (c *Client) SubmitDocumentMetadataOnly(ctx context.Context, applicantID string, metadata DocumentMetadata) Result {
	if err := c.signer.CheckCredentials(); err != nil {
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}

	metadata.IDDocType = strings.ToUpper(metadata.IDDocType)
	metadata.Country = strings.ToUpper(metadata.Country)
	metadata.IDDocSubType = strings.ToUpper(metadata.IDDocSubType)

	body, contentType, err := buildIDDocBody(metadata, nil, "", "")
	if err != nil {
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}

	endpointPath := "/resources/applicants/" + applicantID + "/info/idDoc"
	req, err := c.newSignedRequest(ctx, http.MethodPost, endpointPath, body, contentType)
	if err != nil {
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}

	return c.doSubmit(req, applicantID)
}

// newSignedRequest signs the request with a timestamp computed at send time.
func (c *Client) newSignedRequest(ctx context.Context, method, endpointPath string, body []byte, contentType string) (*http.Request, error) {
	ts := c.now().Unix()
	signature, err := c.signer.Sign(method, endpointPath, ts, body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sumsub request: %w", err)
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-App-Token", c.signer.AppToken())
	req.Header.Set("X-App-Access-Ts", strconv.FormatInt(ts, 10))
	req.Header.Set("X-App-Access-Sig", signature)
	return req, nil
}

func (c *Client) doSubmit(req *http.Request, applicantID string) Result {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Sumsub document submission failed",
			util.String("applicant_id", applicantID),
			util.ErrorField(err),
		)
		return Result{Success: false, Code: http.StatusInternalServerError, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Sumsub document submission rejected",
			util.String("applicant_id", applicantID),
			util.Int("status", resp.StatusCode),
		)
		return Result{Success: false, Code: resp.StatusCode, Message: truncate(respBody, 512)}
	}

	var data interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		data = string(respBody)
	}
	return Result{Success: true, Data: data}
}

// buildIDDocBody materializes the multipart body for an idDoc submission.
// fileBytes may be nil for metadata-only submissions.
func buildIDDocBody(metadata DocumentMetadata, fileBytes []byte, fileName, mimeType string) ([]byte, string, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("metadata", string(metadataJSON)); err != nil {
		return nil, "", fmt.Errorf("failed to write metadata part: %w", err)
	}

	if fileBytes != nil {
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="content"; filename=%q`, fileName))
		header.Set("Content-Type", mimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create content part: %w", err)
		}
		if _, err := part.Write(fileBytes); err != nil {
			return nil, "", fmt.Errorf("failed to write content part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func truncate(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
