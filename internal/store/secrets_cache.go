package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrSecretNotFound = errors.New("store: secret not found")

// PutSecret stores an already-encrypted secret value under key, with an
// optional expiry. The Secret Cache (internal/secrets) owns encryption;
// this layer only persists opaque bytes.
func (s *Store) PutSecret(ctx context.Context, key string, valueEncrypted []byte, expiresAt *int64, createdAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets_cache (key, value_encrypted, expires_at, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value_encrypted=excluded.value_encrypted, expires_at=excluded.expires_at, created_at=excluded.created_at`,
		key, valueEncrypted, expiresAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("store: put secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(ctx context.Context, key string) ([]byte, *int64, error) {
	var value []byte
	var expiresAt *int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value_encrypted, expires_at FROM secrets_cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("store: get secret: %w", err)
	}
	return value, expiresAt, nil
}

func (s *Store) DeleteSecret(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secrets_cache WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("store: delete secret: %w", err)
	}
	return nil
}

// DeleteExpiredSecrets purges entries whose expiry has passed.
func (s *Store) DeleteExpiredSecrets(ctx context.Context, now int64) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("store: delete expired secrets: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
