package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"rentalintake/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SortOrder orders application listings by creation time.
type SortOrder string

const (
	SortNewest SortOrder = "desc"
	SortOldest SortOrder = "asc"
)

// ParseSort maps a sortBy query value onto a SortOrder. Unknown values mean newest first.
func ParseSort(s string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "oldest", "createdat_asc", "created_at_asc", "date_asc":
		return SortOldest
	default:
		return SortNewest
	}
}

// ListFilter narrows an application listing.
type ListFilter struct {
	Status string
	Sort   SortOrder
}

// ApplicationStore persists application records.
type ApplicationStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewApplicationStore(db *sqlx.DB) *ApplicationStore {
	return &ApplicationStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of the store that stamps rows using now.
func (s *ApplicationStore) WithClock(now func() time.Time) *ApplicationStore {
	return &ApplicationStore{db: s.db, now: now}
}

// Create inserts a pending application and returns its generated id.
func (s *ApplicationStore) Create(ctx context.Context, app models.NewApplication, sourceIP string) (string, error) {
	id := uuid.NewString()
	docs := app.Documents
	if docs == nil {
		docs = models.Documents{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, firstname, lastname, email, documents, status, submitter_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, app.FirstName, app.LastName, app.Email, docs, models.StatusPending, sourceIP, s.now())
	if err != nil {
		return "", models.Persistence("insert application", err)
	}
	return id, nil
}

const applicationColumns = `id, firstname, lastname, email, documents, status, submitter_ip, created_at`

// List returns applications, optionally filtered by status. Unknown status values
// are ignored.
func (s *ApplicationStore) List(ctx context.Context, filter ListFilter) ([]models.Application, error) {
	query := "SELECT " + applicationColumns + " FROM applications"
	var args []interface{}
	if status, ok := models.ParseStatus(filter.Status); ok {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	if filter.Sort == SortOldest {
		query += " ORDER BY created_at ASC, rowid ASC"
	} else {
		query += " ORDER BY created_at DESC, rowid DESC"
	}

	apps := []models.Application{}
	if err := s.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, models.Persistence("list applications", err)
	}
	return apps, nil
}

// Get returns the application with id or a not-found error.
func (s *ApplicationStore) Get(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	err := s.db.GetContext(ctx, &app, "SELECT "+applicationColumns+" FROM applications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("application not found")
	}
	if err != nil {
		return nil, models.Persistence("get application", err)
	}
	return &app, nil
}

// SetStatus overwrites the status of an application.
func (s *ApplicationStore) SetStatus(ctx context.Context, id string, status models.Status) error {
	res, err := s.db.ExecContext(ctx, "UPDATE applications SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return models.Persistence("update application status", err)
	}
	return requireRow(res, "application not found")
}

// Delete hard-deletes an application.
func (s *ApplicationStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM applications WHERE id = ?", id)
	if err != nil {
		return models.Persistence("delete application", err)
	}
	return requireRow(res, "application not found")
}

// Count returns the total number of applications.
func (s *ApplicationStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM applications"); err != nil {
		return 0, models.Persistence("count applications", err)
	}
	return n, nil
}

func requireRow(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return models.Persistence("rows affected", err)
	}
	if n == 0 {
		return models.NotFound(msg)
	}
	return nil
}
