package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"kyc-service/internal/config"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Manager envelope-encrypts PII (the stored phone number) with AES-256-GCM
// under a KMS-managed data key. When KMS is disabled the payload key is a
// locally generated static key; development only.
type Manager struct {
	kmsClient *kms.Client
	cfg       *config.KMSConfig
	localKey  []byte
}

func NewManager(cfg *config.Config, kmsClient *kms.Client) *Manager {
	m := &Manager{
		kmsClient: kmsClient,
		cfg:       &cfg.KMS,
	}
	if !cfg.KMS.Enabled {
		m.localKey = make([]byte, 32)
		if _, err := rand.Read(m.localKey); err != nil {
			panic("failed to generate local encryption key: " + err.Error())
		}
	}
	return m
}

// Encrypt seals plaintext. The returned blob prepends the wrapped data key
// so decryption needs nothing beyond KMS access; keyID identifies the
// wrapping key for key-rotation bookkeeping.
func (m *Manager) Encrypt(ctx context.Context, plaintext []byte) (blob []byte, keyID string, err error) {
	dekPlain, dekWrapped, keyID, err := m.dataKey(ctx)
	if err != nil {
		return nil, "", err
	}

	block, err := aes.NewCipher(dekPlain)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	// blob layout: len(wrapped DEK) | wrapped DEK | nonce | ciphertext
	out := make([]byte, 0, 2+len(dekWrapped)+len(nonce)+len(sealed))
	out = append(out, byte(len(dekWrapped)>>8), byte(len(dekWrapped)))
	out = append(out, dekWrapped...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, keyID, nil
}

// Decrypt reverses Encrypt.
func (m *Manager) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	if len(blob) < 2 {
		return nil, ErrDecryptionFailed
	}
	dekLen := int(blob[0])<<8 | int(blob[1])
	if len(blob) < 2+dekLen {
		return nil, ErrDecryptionFailed
	}
	dekWrapped := blob[2 : 2+dekLen]
	rest := blob[2+dekLen:]

	dekPlain, err := m.unwrapKey(ctx, dekWrapped)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(dekPlain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (m *Manager) dataKey(ctx context.Context) (plain, wrapped []byte, keyID string, err error) {
	if !m.cfg.Enabled {
		return m.localKey, []byte(base64.StdEncoding.EncodeToString(m.localKey)), "local", nil
	}

	result, err := m.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(m.cfg.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to generate data key: %w", err)
	}
	return result.Plaintext, result.CiphertextBlob, m.cfg.KeyID, nil
}

func (m *Manager) unwrapKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	if !m.cfg.Enabled {
		key, err := base64.StdEncoding.DecodeString(string(wrapped))
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		return key, nil
	}

	result, err := m.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}
	return result.Plaintext, nil
}
