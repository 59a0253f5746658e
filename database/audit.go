package database

import (
	"context"
	"time"

	"rentalintake/models"

	"github.com/jmoiron/sqlx"
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return page, size
}

// LoginAttemptStore is the append-only login audit log.
type LoginAttemptStore struct {
	db *sqlx.DB
}

func NewLoginAttemptStore(db *sqlx.DB) *LoginAttemptStore {
	return &LoginAttemptStore{db: db}
}

// Record appends one login attempt.
func (s *LoginAttemptStore) Record(ctx context.Context, username string, success bool, sourceIP string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO login_attempts (username, success, source_ip, created_at) VALUES (?, ?, ?, ?)",
		username, success, sourceIP, time.Now().UTC())
	if err != nil {
		return models.Persistence("record login attempt", err)
	}
	return nil
}

// ListFailed returns one page of failed attempts, newest first.
func (s *LoginAttemptStore) ListFailed(ctx context.Context, page, size int) (models.Page[models.LoginAttempt], error) {
	page, size = normalizePage(page, size)
	out := models.Page[models.LoginAttempt]{Items: []models.LoginAttempt{}, Page: page, PageSize: size}

	if err := s.db.GetContext(ctx, &out.Total, "SELECT COUNT(*) FROM login_attempts WHERE success = 0"); err != nil {
		return out, models.Persistence("count failed logins", err)
	}
	err := s.db.SelectContext(ctx, &out.Items, `
		SELECT id, username, success, source_ip, created_at FROM login_attempts
		WHERE success = 0 ORDER BY id DESC LIMIT ? OFFSET ?`,
		size, (page-1)*size)
	if err != nil {
		return out, models.Persistence("list failed logins", err)
	}
	return out, nil
}

// DeleteFailed removes every failed attempt and leaves successful ones in place.
func (s *LoginAttemptStore) DeleteFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM login_attempts WHERE success = 0")
	if err != nil {
		return 0, models.Persistence("delete failed logins", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.Persistence("delete failed logins", err)
	}
	return n, nil
}

// CountAll returns the number of recorded attempts, successful or not.
func (s *LoginAttemptStore) CountAll(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM login_attempts"); err != nil {
		return 0, models.Persistence("count login attempts", err)
	}
	return n, nil
}

// EmailLogStore is the append-only notification delivery log.
type EmailLogStore struct {
	db *sqlx.DB
}

func NewEmailLogStore(db *sqlx.DB) *EmailLogStore {
	return &EmailLogStore{db: db}
}

// Append writes one delivery attempt.
func (s *EmailLogStore) Append(ctx context.Context, entry models.EmailLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO email_logs (id, recipient, subject, body, success, error, created_at)
		VALUES (:id, :recipient, :subject, :body, :success, :error, :created_at)`, entry)
	if err != nil {
		return models.Persistence("append email log", err)
	}
	return nil
}

// List returns one page of the email log, newest first.
func (s *EmailLogStore) List(ctx context.Context, page, size int) (models.Page[models.EmailLog], error) {
	page, size = normalizePage(page, size)
	out := models.Page[models.EmailLog]{Items: []models.EmailLog{}, Page: page, PageSize: size}

	if err := s.db.GetContext(ctx, &out.Total, "SELECT COUNT(*) FROM email_logs"); err != nil {
		return out, models.Persistence("count email logs", err)
	}
	err := s.db.SelectContext(ctx, &out.Items, `
		SELECT id, recipient, subject, body, success, error, created_at FROM email_logs
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		size, (page-1)*size)
	if err != nil {
		return out, models.Persistence("list email logs", err)
	}
	return out, nil
}

// CountFor returns how many attempts were logged for recipient.
func (s *EmailLogStore) CountFor(ctx context.Context, recipient string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM email_logs WHERE recipient = ?", recipient); err != nil {
		return 0, models.Persistence("count email logs", err)
	}
	return n, nil
}
