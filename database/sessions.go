package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rentalintake/models"

	"github.com/jmoiron/sqlx"
)

// SessionRows stores opaque, encoded session payloads keyed by session id.
type SessionRows struct {
	db *sqlx.DB
}

func NewSessionRows(db *sqlx.DB) *SessionRows {
	return &SessionRows{db: db}
}

// Load returns the payload for id if it exists and has not expired.
func (s *SessionRows) Load(ctx context.Context, id string, now time.Time) ([]byte, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, "SELECT data FROM sessions WHERE id = ? AND expires_at > ?", id, now.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("session not found")
	}
	if err != nil {
		return nil, models.Persistence("load session", err)
	}
	return data, nil
}

// Upsert writes the payload for id.
func (s *SessionRows) Upsert(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		id, data, expiresAt.UTC())
	if err != nil {
		return models.Persistence("save session", err)
	}
	return nil
}

// Delete removes id. Deleting a missing session is not an error.
func (s *SessionRows) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return models.Persistence("delete session", err)
	}
	return nil
}

// DeleteExpired purges sessions that expired before now.
func (s *SessionRows) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, models.Persistence("purge sessions", err)
	}
	return res.RowsAffected()
}
