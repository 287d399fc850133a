package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"allyboard/internal/constants"
	"allyboard/internal/migrations"
	"allyboard/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps documents in the kv_store table of a SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	encryptor *encryptor
}

type sqliteOptions struct {
	secret string
}

// SQLiteOption configures NewSQLiteStore.
type SQLiteOption func(*sqliteOptions)

// WithEncryptionSecret enables AES-GCM encryption of stored values.
func WithEncryptionSecret(secret string) SQLiteOption {
	return func(o *sqliteOptions) { o.secret = secret }
}

func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	var o sqliteOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	enc, err := newEncryptor(o.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, constants.DefaultSQLiteBusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, encryptor: enc}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := retryable(ctx, "get "+key, func() error {
		err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			value = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if value == nil {
		return nil, nil
	}

	plaintext, err := s.encryptor.open(value)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return plaintext, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.encryptor.seal(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", key, err)
	}

	query := `
		INSERT INTO kv_store (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	err = retryable(ctx, "set "+key, func() error {
		_, err := s.db.ExecContext(ctx, query, key, sealed)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
