// Package auth persists hashes of validated embedding-service API keys.
// Raw keys are never stored; the hash only records that a key has been
// accepted before.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"
)

type Repository interface {
	RecordKey(ctx context.Context, apiKey string) error
	IsKnownKey(ctx context.Context, apiKey string) (bool, error)
	TouchKey(ctx context.Context, apiKey string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// HashKey returns the hex-encoded SHA-256 digest of an API key.
func HashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// EnsureInstanceID returns this deployment's stable identifier, generating
// and persisting one on first startup.
func EnsureInstanceID(ctx context.Context, repo Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, "instance_id")
	if err == nil && existing != "" {
		return existing, nil
	}

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", err
	}
	id := hex.EncodeToString(idBytes)

	if err := repo.SetConfig(ctx, "instance_id", id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLiteRepository) RecordKey(ctx context.Context, apiKey string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO api_keys (key_hash, created_at)
		VALUES (?, ?)
	`, HashKey(apiKey), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) IsKnownKey(ctx context.Context, apiKey string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM api_keys WHERE key_hash = ?`, HashKey(apiKey),
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLiteRepository) TouchKey(ctx context.Context, apiKey string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?
	`, time.Now().UTC().Format(time.RFC3339), HashKey(apiKey))
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM config WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
