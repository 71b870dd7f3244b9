package models

import (
	"strings"
	"time"
)

// ID document types a user can submit. Each type owns an independent KYC slot.
const (
	IDTypePassport      = "passport"
	IDTypeDriverLicense = "driver_license"
	IDTypeNationalID    = "national_id"
)

// Per-slot and overall verification statuses.
const (
	KYCStatusUnderReview = "under_review"
	KYCStatusApproved    = "approved"
	KYCStatusRejected    = "rejected"
)

// Provider review verdicts. Anything other than GREEN/RED is non-terminal.
const (
	ReviewAnswerGreen = "GREEN"
	ReviewAnswerRed   = "RED"
)

// SlotKey identifies one of the three per-document KYC slots on a user.
type SlotKey string

const (
	SlotPassport      SlotKey = "passport"
	SlotDriverLicense SlotKey = "driverLicense"
	SlotNationalID    SlotKey = "nationalId"
)

// SlotKeyForIDType maps a normalized id type to its KYC slot.
func SlotKeyForIDType(idType string) SlotKey {
	switch idType {
	case IDTypeDriverLicense:
		return SlotDriverLicense
	case IDTypeNationalID:
		return SlotNationalID
	default:
		return SlotPassport
	}
}

// KYCSlot is the per-document-type verification record. Created lazily on
// first submission, overwritten on resubmission, never deleted.
type KYCSlot struct {
	FrontURL          string     `json:"frontUrl,omitempty"`
	BackURL           string     `json:"backUrl,omitempty"`
	Status            string     `json:"status,omitempty"`
	ReviewAnswer      string     `json:"reviewAnswer,omitempty"`
	ReviewStatus      string     `json:"reviewStatus,omitempty"`
	RejectReasons     []string   `json:"rejectReasons,omitempty"`
	ModerationComment string     `json:"moderationComment,omitempty"`
	ClientComment     string     `json:"clientComment,omitempty"`
	ReviewedAt        *time.Time `json:"reviewedAt,omitempty"`
}

// KYC holds the three document slots. Nil pointer means the slot was never
// populated.
type KYC struct {
	Passport      *KYCSlot `json:"passport,omitempty"`
	DriverLicense *KYCSlot `json:"driverLicense,omitempty"`
	NationalID    *KYCSlot `json:"nationalId,omitempty"`
}

// Slot returns the slot for key, or nil.
func (k *KYC) Slot(key SlotKey) *KYCSlot {
	if k == nil {
		return nil
	}
	switch key {
	case SlotDriverLicense:
		return k.DriverLicense
	case SlotNationalID:
		return k.NationalID
	case SlotPassport:
		return k.Passport
	}
	return nil
}

// EnsureSlot returns the slot for key, creating it if absent. A new slot
// starts under review; callers overwrite the status only on a terminal
// verdict.
func (k *KYC) EnsureSlot(key SlotKey) *KYCSlot {
	if s := k.Slot(key); s != nil {
		return s
	}
	s := &KYCSlot{Status: KYCStatusUnderReview}
	switch key {
	case SlotDriverLicense:
		k.DriverLicense = s
	case SlotNationalID:
		k.NationalID = s
	default:
		k.Passport = s
	}
	return s
}

type Address struct {
	Address   string `json:"address"`
	Apartment string `json:"apartment,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}

type User struct {
	UserBucket     int    `db:"user_bucket" json:"-"`
	UserID         string `db:"user_id" json:"id"`
	Email          string `db:"email" json:"email"`
	Phone          string `db:"phone" json:"phone,omitempty"`
	PhoneEncrypted []byte `db:"phone_encrypted" json:"-"`
	PhoneKeyID     string `db:"phone_key_id" json:"-"`
	PasswordHash   string `db:"password_hash" json:"-"`
	IsVerified     bool   `db:"is_verified" json:"isVerified"`

	// External correlation key for the verification provider. Set at most
	// once per user; creation is skipped when already present.
	SumsubApplicantID string `db:"sumsub_applicant_id" json:"sumsubApplicantId,omitempty"`

	// Legacy single-document mirror of the most recently acted-on slot. The
	// authoritative per-type state lives in KYC.
	IDType     string `db:"id_type" json:"idType,omitempty"`
	IDFrontURL string `db:"id_front_url" json:"idFrontUrl,omitempty"`
	IDBackURL  string `db:"id_back_url" json:"idBackUrl,omitempty"`
	IDStatus   string `db:"id_status" json:"idStatus,omitempty"`

	KYC KYC `db:"kyc" json:"kyc"`

	CardType   string   `db:"card_type" json:"cardType,omitempty"`
	CardNumber string   `db:"card_number" json:"-"`
	CardExpiry string   `db:"card_expiry" json:"-"`
	CardCVV    string   `db:"card_cvv" json:"-"`
	Address    *Address `db:"address" json:"address,omitempty"`

	// Optimistic concurrency token for read-modify-write updates.
	Version   int64      `db:"version" json:"-"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

// Clone returns a deep copy so stores can hand out records without aliasing
// their internal state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.PhoneEncrypted != nil {
		out.PhoneEncrypted = append([]byte(nil), u.PhoneEncrypted...)
	}
	out.KYC = KYC{
		Passport:      u.KYC.Passport.clone(),
		DriverLicense: u.KYC.DriverLicense.clone(),
		NationalID:    u.KYC.NationalID.clone(),
	}
	if u.Address != nil {
		addr := *u.Address
		out.Address = &addr
	}
	return &out
}

func (s *KYCSlot) clone() *KYCSlot {
	if s == nil {
		return nil
	}
	out := *s
	if s.RejectReasons != nil {
		out.RejectReasons = append([]string(nil), s.RejectReasons...)
	}
	if s.ReviewedAt != nil {
		t := *s.ReviewedAt
		out.ReviewedAt = &t
	}
	return &out
}

// NormalizeIDType folds the free-form aliases accepted by the API onto the
// canonical id types. Returns "" for unrecognized input.
func NormalizeIDType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "passport":
		return IDTypePassport
	case "driver_license", "drivers", "driver":
		return IDTypeDriverLicense
	case "national_id", "id", "id_card":
		return IDTypeNationalID
	default:
		return ""
	}
}

// RequiresBackSide reports whether the id type is two-sided.
func RequiresBackSide(idType string) bool {
	return idType == IDTypeDriverLicense || idType == IDTypeNationalID
}

// ProviderDocType maps a normalized id type to the provider's document type
// identifier.
func ProviderDocType(idType string) string {
	switch idType {
	case IDTypeDriverLicense:
		return "DRIVERS"
	case IDTypeNationalID:
		return "ID_CARD"
	default:
		return "PASSPORT"
	}
}
