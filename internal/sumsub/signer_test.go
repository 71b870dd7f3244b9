package sumsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDeterministic(t *testing.T) {
	signer := NewSigner("token", "secret")

	sig1, err := signer.Sign("POST", "/resources/applicants", 1700000000, []byte(`{"a":1}`))
	require.NoError(t, err)
	sig2, err := signer.Sign("POST", "/resources/applicants", 1700000000, []byte(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)

	// Reference computation: ts || METHOD || path || body.
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1700000000POST/resources/applicants"))
	mac.Write([]byte(`{"a":1}`))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig1)
}

func TestSignBodySensitivity(t *testing.T) {
	signer := NewSigner("token", "secret")

	body := []byte("multipart-bytes")
	sig1, err := signer.Sign("POST", "/x", 42, body)
	require.NoError(t, err)

	flipped := append([]byte(nil), body...)
	flipped[0] ^= 1
	sig2, err := signer.Sign("POST", "/x", 42, flipped)
	require.NoError(t, err)

	assert.NotEqual(t, sig1, sig2)
}

func TestSignNormalizesMethodAndPath(t *testing.T) {
	signer := NewSigner("token", "secret")

	sig1, err := signer.Sign("post", "resources/applicants", 7, nil)
	require.NoError(t, err)
	sig2, err := signer.Sign("POST", "/resources/applicants", 7, nil)
	require.NoError(t, err)

	assert.Equal(t, sig2, sig1)
}

func TestSignNilBodyDiffersFromEmptyPath(t *testing.T) {
	signer := NewSigner("token", "secret")

	withBody, err := signer.Sign("GET", "/a", 1, []byte("x"))
	require.NoError(t, err)
	withoutBody, err := signer.Sign("GET", "/a", 1, nil)
	require.NoError(t, err)

	assert.NotEqual(t, withBody, withoutBody)
}

func TestMissingCredentials(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		secret string
	}{
		{"no token", "", "secret"},
		{"no secret", "token", ""},
		{"whitespace only", "  ", "\t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			signer := NewSigner(tc.token, tc.secret)
			assert.ErrorIs(t, signer.CheckCredentials(), ErrMissingCredentials)
			_, err := signer.Sign("POST", "/x", 1, nil)
			assert.ErrorIs(t, err, ErrMissingCredentials)
		})
	}
}
