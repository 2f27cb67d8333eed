package remote

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"golang.org/x/crypto/chacha20poly1305"
)

// Envelope wraps request and response bodies as
// {"payload": base64(nonce || ciphertext)} using ChaCha20-Poly1305.
type Envelope struct {
	key []byte
}

// NewEnvelope parses a hex-encoded 32-byte key.
func NewEnvelope(hexKey string) (*Envelope, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode envelope key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("envelope key is %d bytes, want %d", len(key), chacha20poly1305.KeySize)
	}
	return &Envelope{key: key}, nil
}

// Seal encrypts plaintext into an envelope document.
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return json.Marshal(map[string]string{"payload": base64.StdEncoding.EncodeToString(sealed)})
}

// Open decrypts an envelope document. Bodies without a payload field are
// returned unchanged, since error responses are sent in the clear.
func (e *Envelope) Open(body []byte) ([]byte, error) {
	payload := gjson.GetBytes(body, "payload")
	if payload.Type != gjson.String {
		return body, nil
	}
	sealed, err := base64.StdEncoding.DecodeString(payload.Str)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	aead, err := chacha20poly1305.New(e.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("envelope shorter than nonce")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plain, nil
}
