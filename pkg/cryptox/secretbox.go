package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Sizes used by the sealed record format. The nonce is wider than the GCM
// default of 12 bytes, so the AEAD is built with NewGCMWithNonceSize.
const (
	NonceSize = 16
	TagSize   = 16
)

// recordSeparator joins the nonce, tag and ciphertext parts of a sealed record.
const recordSeparator = ":"

var (
	ErrMalformedCiphertext = errors.New("cryptox: malformed ciphertext")
	ErrDecryptionFailed    = errors.New("cryptox: decryption failed")
	ErrNoKeyMaterial       = errors.New("cryptox: no encryption secret configured")
)

// KeySource records which configured secret the SecretBox key was derived from.
type KeySource int

const (
	// KeySourceDedicated means a secret reserved for at-rest encryption was used.
	KeySourceDedicated KeySource = iota

	// KeySourceSharedFallback means the signing secret was reused because no
	// dedicated secret was configured. This couples token signing and storage
	// encryption to one secret and should not be used in production.
	KeySourceSharedFallback
)

func (s KeySource) String() string {
	switch s {
	case KeySourceDedicated:
		return "dedicated"
	case KeySourceSharedFallback:
		return "shared_fallback"
	default:
		return "unknown"
	}
}

// SecretBox seals short secrets (upstream refresh tokens) with AES-256-GCM.
//
// A sealed record has the form base64(nonce):base64(tag):base64(ciphertext)
// using standard padded base64. Other components store and compare records in
// this exact form, so it must not change.
type SecretBox struct {
	aead   cipher.AEAD
	source KeySource
}

// NewSecretBox derives a 256-bit key from secret with SHA-256.
func NewSecretBox(secret []byte) (*SecretBox, error) {
	if len(secret) == 0 {
		return nil, ErrNoKeyMaterial
	}

	key := sha256.Sum256(secret)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecretBox{aead: aead, source: KeySourceDedicated}, nil
}

// ResolveSecretBox picks the dedicated secret when present and otherwise falls
// back to the shared secret, logging a warning every time the fallback is taken.
func ResolveSecretBox(dedicated, shared string, logger *slog.Logger) (*SecretBox, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dedicated != "" {
		return NewSecretBox([]byte(dedicated))
	}

	if shared == "" {
		return nil, ErrNoKeyMaterial
	}

	logger.Warn("encryption secret not configured, deriving at-rest key from the signing secret",
		"key_source", KeySourceSharedFallback.String(),
	)

	box, err := NewSecretBox([]byte(shared))
	if err != nil {
		return nil, err
	}
	box.source = KeySourceSharedFallback
	return box, nil
}

// Source reports where the key came from.
func (b *SecretBox) Source() KeySource { return b.source }

// Encrypt seals plaintext into a three part record. Empty input is returned
// unchanged so absent secrets stay absent.
func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the tag to the ciphertext; split it off for the record.
	sealed := b.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, recordSeparator), nil
}

// Decrypt opens a record produced by Encrypt. Empty input is returned unchanged.
func (b *SecretBox) Decrypt(record string) (string, error) {
	if record == "" {
		return "", nil
	}

	nonce, tag, ciphertext, err := splitRecord(record)
	if err != nil {
		return "", err
	}

	plaintext, err := b.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// IsSealed reports whether record looks like a SecretBox record. It does not
// authenticate it; use it to tell legacy plaintext rows apart.
func IsSealed(record string) bool {
	_, _, _, err := splitRecord(record)
	return err == nil
}

func splitRecord(record string) (nonce, tag, ciphertext []byte, err error) {
	parts := strings.Split(record, recordSeparator)
	if len(parts) != 3 {
		return nil, nil, nil, ErrMalformedCiphertext
	}

	decoded := make([][]byte, len(parts))
	for i, part := range parts {
		decoded[i], err = base64.StdEncoding.DecodeString(part)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: part %d: %w", ErrMalformedCiphertext, i, err)
		}
	}

	if len(decoded[0]) != NonceSize || len(decoded[1]) != TagSize {
		return nil, nil, nil, ErrMalformedCiphertext
	}

	return decoded[0], decoded[1], decoded[2], nil
}
