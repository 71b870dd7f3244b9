package sumsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// ErrMissingCredentials is returned when the app token or signing secret is
// absent. It fires before any network call is attempted.
var ErrMissingCredentials = errors.New("missing sumsub app token or secret key")

// Signer produces the request signature the provider requires on every
// outbound call: HMAC-SHA256 over ts || METHOD || /path, with the raw body
// bytes streamed into the mac when present. Streaming the body keeps binary
// multipart payloads signable without string conversion.
type Signer struct {
	appToken  string
	secretKey string
}

func NewSigner(appToken, secretKey string) *Signer {
	return &Signer{
		appToken:  strings.TrimSpace(appToken),
		secretKey: strings.TrimSpace(secretKey),
	}
}

// AppToken returns the token carried in the X-App-Token header.
func (s *Signer) AppToken() string {
	return s.appToken
}

// CheckCredentials verifies both credentials are present. Callers invoke it
// before building a request so a misconfigured deployment fails fast instead
// of at the provider.
func (s *Signer) CheckCredentials() error {
	if s.appToken == "" || s.secretKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Sign computes the hex signature for a request. ts is a Unix timestamp in
// seconds; body may be nil for no-body requests.
func (s *Signer) Sign(method, path string, ts int64, body []byte) (string, error) {
	if err := s.CheckCredentials(); err != nil {
		return "", err
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(path))
	if body != nil {
		mac.Write(body)
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}
