// Package security seals and opens secrets stored outside the function
// environment, such as the Shopify Admin access token.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const KeySize = 32

var ErrShortCiphertext = errors.New("ciphertext too short")

// TokenCipher is AES-256-GCM with the nonce prepended to the ciphertext and
// the result encoded as unpadded base64url.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher takes the key as standard base64 (TOKEN_ENC_KEY_B64).
func NewTokenCipher(keyB64 string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("token key must decode to %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{gcm: gcm}, nil
}

func (c *TokenCipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *TokenCipher) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	ns := c.gcm.NonceSize()
	if len(raw) < ns {
		return "", ErrShortCiphertext
	}
	pt, err := c.gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(pt), nil
}
