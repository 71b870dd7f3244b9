package service

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBase64PlainDefaultsToJPEG(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF}
	img, err := DecodeBase64(base64.StdEncoding.EncodeToString(raw), "front.jpg")
	require.NoError(t, err)
	assert.Equal(t, raw, img.Bytes)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, "front.jpg", img.FileName)
	assert.True(t, img.MimeAllowed())
}

func TestDecodeBase64DataURL(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4E, 0x47}
	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
	img, err := DecodeBase64(encoded, "front")
	require.NoError(t, err)
	assert.Equal(t, raw, img.Bytes)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, ".png", img.Ext())
}

func TestDecodeBase64DataURLDisallowedMime(t *testing.T) {
	encoded := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("gif"))
	img, err := DecodeBase64(encoded, "x")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", img.MimeType)
	assert.False(t, img.MimeAllowed())
}

func TestDecodeBase64Invalid(t *testing.T) {
	_, err := DecodeBase64("not-base64!!!", "x")
	assert.Error(t, err)
}

func TestMimeAllowSet(t *testing.T) {
	allowed := []string{"image/jpeg", "image/jpg", "image/png"}
	for _, m := range allowed {
		assert.True(t, (&DecodedImage{MimeType: m}).MimeAllowed(), m)
	}
	for _, m := range []string{"image/gif", "application/pdf", "text/plain", ""} {
		assert.False(t, (&DecodedImage{MimeType: m}).MimeAllowed(), m)
	}
}
