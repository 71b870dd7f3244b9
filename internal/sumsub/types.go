package sumsub

// EventTypeApplicantReviewed is the only webhook event type that mutates
// local state; everything else is acknowledged and dropped.
const EventTypeApplicantReviewed = "applicantReviewed"

// ReviewStatusCompleted is the review status assumed when a webhook omits
// one. Verdicts have shipped without it.
const ReviewStatusCompleted = "completed"

// FixedInfo carries optional applicant details sent at creation time.
type FixedInfo struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Country   string `json:"country,omitempty"`
}

type createApplicantRequest struct {
	ExternalUserID string        `json:"externalUserId"`
	FixedInfo      FixedInfo     `json:"fixedInfo"`
	Metadata       []interface{} `json:"metadata"`
}

type applicantResponse struct {
	ID string `json:"id"`
}

// DocumentUpload describes one document image submission.
type DocumentUpload struct {
	ApplicantID  string
	FileBytes    []byte
	FileName     string
	MimeType     string
	IDDocType    string
	Country      string
	IDDocSubType string // omitted entirely when empty (passport has no sides)
}

// DocumentMetadata is the metadata JSON part of an idDoc submission.
type DocumentMetadata struct {
	IDDocType    string `json:"idDocType"`
	Country      string `json:"country"`
	IDDocSubType string `json:"idDocSubType,omitempty"`
}

// Result is the structured outcome of a document submission. Provider
// failures (non-2xx, network) come back as Success=false rather than an
// error so callers can degrade to local bookkeeping.
type Result struct {
	Success bool        `json:"success"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ReviewResult is the verdict block of a review webhook.
type ReviewResult struct {
	ReviewAnswer      string   `json:"reviewAnswer"`
	RejectLabels      []string `json:"rejectLabels"`
	ModerationComment string   `json:"moderationComment"`
	ClientComment     string   `json:"clientComment"`
}

// WebhookEvent is the provider's review callback. The provider has shipped
// two nesting shapes for the same fields, so accessors below check the
// top-level form first and fall back to the nested review block.
type WebhookEvent struct {
	Type         string        `json:"type"`
	ApplicantID  string        `json:"applicantId"`
	ReviewStatus string        `json:"reviewStatus"`
	ReviewResult *ReviewResult `json:"reviewResult"`
	Review       *struct {
		ReviewStatus string        `json:"reviewStatus"`
		Status       string        `json:"status"`
		Result       *ReviewResult `json:"result"`
	} `json:"review"`
}

func (e *WebhookEvent) result() *ReviewResult {
	if e.ReviewResult != nil {
		return e.ReviewResult
	}
	if e.Review != nil {
		return e.Review.Result
	}
	return nil
}

func (e *WebhookEvent) Status() string {
	if e.ReviewStatus != "" {
		return e.ReviewStatus
	}
	if e.Review != nil {
		if e.Review.ReviewStatus != "" {
			return e.Review.ReviewStatus
		}
		return e.Review.Status
	}
	return ""
}

func (e *WebhookEvent) Answer() string {
	if r := e.result(); r != nil {
		return r.ReviewAnswer
	}
	return ""
}

func (e *WebhookEvent) RejectLabels() []string {
	if r := e.result(); r != nil && r.RejectLabels != nil {
		return r.RejectLabels
	}
	return []string{}
}

func (e *WebhookEvent) ModerationComment() string {
	if r := e.result(); r != nil {
		return r.ModerationComment
	}
	return ""
}

func (e *WebhookEvent) ClientComment() string {
	if r := e.result(); r != nil {
		return r.ClientComment
	}
	return ""
}
