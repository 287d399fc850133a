package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"allyboard/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

// encryptor seals stored values with AES-GCM. A nil gcm means values are
// stored as plaintext.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor(secret string) (*encryptor, error) {
	if secret == "" {
		return &encryptor{}, nil
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func (e *encryptor) enabled() bool {
	return e.gcm != nil
}

// seal returns nonce || ciphertext.
func (e *encryptor) seal(plaintext []byte) ([]byte, error) {
	if !e.enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *encryptor) open(data []byte) ([]byte, error) {
	if !e.enabled() {
		return data, nil
	}

	size := e.gcm.NonceSize()
	if len(data) < size {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrCorrupt)
	}

	plaintext, err := e.gcm.Open(nil, data[:size], data[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}

func deriveKey(secret string) ([]byte, error) {
	if len(secret) < constants.MinEncryptionSecret {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinEncryptionSecret)
	}

	salt := []byte(constants.EncryptionSalt)
	return pbkdf2.Key([]byte(secret), salt, constants.EncryptionIterations, constants.EncryptionKeySize, sha256.New), nil
}
