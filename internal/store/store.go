// Package store persists the dispatcher's JSON documents (mentions, queue,
// send log) in a key-value backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"allyboard/internal/models"
)

// ErrCorrupt marks a stored value that cannot be decoded. Callers fall back
// to an empty document.
var ErrCorrupt = errors.New("corrupt document")

// Store is a flat key to blob store.
type Store interface {
	// Get returns nil, nil when key is missing.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open returns the backend named by cfg.Driver. The SQLite backend encrypts
// values when ALLYBOARD_ENCRYPTION_SECRET is set.
func Open(cfg models.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		var opts []SQLiteOption
		if secret := os.Getenv("ALLYBOARD_ENCRYPTION_SECRET"); secret != "" {
			opts = append(opts, WithEncryptionSecret(secret))
		}
		return NewSQLiteStore(cfg.Path, opts...)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

type header struct {
	Version int `json:"version"`
}

// LoadDocument decodes the versioned JSON document at key into dst.
// It returns false, nil when the key is missing, and false with an error
// wrapping ErrCorrupt when the blob does not parse or carries another version.
func LoadDocument(ctx context.Context, st Store, key string, version int, dst interface{}) (bool, error) {
	raw, err := st.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}

	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if h.Version != version {
		return false, fmt.Errorf("%w: %s: version %d, want %d", ErrCorrupt, key, h.Version, version)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SaveDocument encodes doc as JSON and writes it under key.
func SaveDocument(ctx context.Context, st Store, key string, doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return st.Set(ctx, key, raw)
}
