package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIDType(t *testing.T) {
	cases := map[string]string{
		"passport":       IDTypePassport,
		"PASSPORT":       IDTypePassport,
		" passport ":     IDTypePassport,
		"driver_license": IDTypeDriverLicense,
		"drivers":        IDTypeDriverLicense,
		"driver":         IDTypeDriverLicense,
		"national_id":    IDTypeNationalID,
		"id":             IDTypeNationalID,
		"id_card":        IDTypeNationalID,
		"":               "",
		"license":        "",
		"passport2":      "",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeIDType(input), "input %q", input)
	}
}

func TestRequiresBackSide(t *testing.T) {
	assert.False(t, RequiresBackSide(IDTypePassport))
	assert.True(t, RequiresBackSide(IDTypeDriverLicense))
	assert.True(t, RequiresBackSide(IDTypeNationalID))
}

func TestProviderDocType(t *testing.T) {
	assert.Equal(t, "PASSPORT", ProviderDocType(IDTypePassport))
	assert.Equal(t, "DRIVERS", ProviderDocType(IDTypeDriverLicense))
	assert.Equal(t, "ID_CARD", ProviderDocType(IDTypeNationalID))
}

func TestSlotKeyForIDType(t *testing.T) {
	assert.Equal(t, SlotPassport, SlotKeyForIDType(IDTypePassport))
	assert.Equal(t, SlotDriverLicense, SlotKeyForIDType(IDTypeDriverLicense))
	assert.Equal(t, SlotNationalID, SlotKeyForIDType(IDTypeNationalID))
}

func TestEnsureSlotCreatesOnce(t *testing.T) {
	var kyc KYC
	slot := kyc.EnsureSlot(SlotNationalID)
	assert.Equal(t, KYCStatusUnderReview, slot.Status, "fresh slot starts under review")
	slot.FrontURL = "https://example.com/front.jpg"

	again := kyc.EnsureSlot(SlotNationalID)
	assert.Same(t, slot, again)
	assert.Equal(t, "https://example.com/front.jpg", kyc.NationalID.FrontURL)
}

func TestUserCloneIsDeep(t *testing.T) {
	reviewed := time.Now()
	user := &User{
		UserID: "u1",
		KYC: KYC{
			NationalID: &KYCSlot{
				FrontURL:      "front",
				RejectReasons: []string{"FORGERY"},
				ReviewedAt:    &reviewed,
			},
		},
		Address: &Address{City: "Austin"},
	}

	clone := user.Clone()
	clone.KYC.NationalID.FrontURL = "changed"
	clone.KYC.NationalID.RejectReasons[0] = "changed"
	clone.Address.City = "changed"
	*clone.KYC.NationalID.ReviewedAt = reviewed.Add(time.Hour)

	assert.Equal(t, "front", user.KYC.NationalID.FrontURL)
	assert.Equal(t, "FORGERY", user.KYC.NationalID.RejectReasons[0])
	assert.Equal(t, "Austin", user.Address.City)
	assert.Equal(t, reviewed, *user.KYC.NationalID.ReviewedAt)
}
