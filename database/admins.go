package database

import (
	"context"
	"database/sql"
	"errors"

	"rentalintake/models"

	"github.com/jmoiron/sqlx"
)

// AdminStore persists admin credentials. It never sees plaintext passwords.
type AdminStore struct {
	db *sqlx.DB
}

func NewAdminStore(db *sqlx.DB) *AdminStore {
	return &AdminStore{db: db}
}

// Get returns the admin named username or a not-found error.
func (s *AdminStore) Get(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	err := s.db.GetContext(ctx, &admin, "SELECT username, password_hash FROM admins WHERE username = ?", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("admin not found")
	}
	if err != nil {
		return nil, models.Persistence("get admin", err)
	}
	return &admin, nil
}

// InsertIfEmpty inserts admin only when the table has no rows. It reports whether
// a row was written.
func (s *AdminStore) InsertIfEmpty(ctx context.Context, admin models.Admin) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (username, password_hash)
		SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM admins)`,
		admin.Username, admin.PasswordHash)
	if err != nil {
		return false, models.Persistence("seed admin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, models.Persistence("seed admin", err)
	}
	return n == 1, nil
}

// UpdateHash replaces the stored hash for username, but only if it still equals
// oldHash. A concurrent change therefore makes this a not-found.
func (s *AdminStore) UpdateHash(ctx context.Context, username, oldHash, newHash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE admins SET password_hash = ? WHERE username = ? AND password_hash = ?",
		newHash, username, oldHash)
	if err != nil {
		return models.Persistence("update admin password", err)
	}
	return requireRow(res, "admin not found")
}

// Count returns the number of admin rows.
func (s *AdminStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM admins"); err != nil {
		return 0, models.Persistence("count admins", err)
	}
	return n, nil
}
