package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"strings"
)

var (
	ErrInvalidKey     = errors.New("vault: invalid encryption key")
	ErrInvalidPayload = errors.New("vault: invalid encrypted payload")
	ErrDecryption     = errors.New("vault: decryption failed")
)

// sealVersion prefixes every sealed value so the layout can change later.
const sealVersion byte = 1

// Provider seals small secrets at rest. The binding is authenticated but not
// stored: a push auth secret sealed for one endpoint does not open for another.
type Provider interface {
	Encrypt(plaintext, binding []byte) ([]byte, error)
	Decrypt(sealed, binding []byte) ([]byte, error)
}

// AESVault implements Provider using AES-256-GCM. Layout: version | nonce | ciphertext.
type AESVault struct {
	aead cipher.AEAD
}

// NewAESVault derives a 256-bit key from any non-empty string.
func NewAESVault(keyStr string) (*AESVault, error) {
	if strings.TrimSpace(keyStr) == "" {
		return nil, ErrInvalidKey
	}
	sum := sha256.Sum256([]byte(keyStr))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESVault{aead: aead}, nil
}

func (v *AESVault) Encrypt(plaintext, binding []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+v.aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	return v.aead.Seal(out, out[1:], plaintext, binding), nil
}

func (v *AESVault) Decrypt(sealed, binding []byte) ([]byte, error) {
	nonceSize := v.aead.NonceSize()
	if len(sealed) < 1+nonceSize+v.aead.Overhead() || sealed[0] != sealVersion {
		return nil, ErrInvalidPayload
	}
	nonce, ciphertext := sealed[1:1+nonceSize], sealed[1+nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, binding)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
