package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ParseStatus returns the Status named by s, or false if s is not a known status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusRejected:
		return Status(s), true
	}
	return "", false
}

// IsTarget reports whether an administrator may move an application into s.
// Pending is only ever the initial state.
func (s Status) IsTarget() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Document is one uploaded file attached to an application.
type Document struct {
	StoredPath   string `json:"stored_path"`
	OriginalName string `json:"original_name"`
}

// Documents is stored as a JSON array column; order is upload order.
type Documents []Document

func (d Documents) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Documents) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = Documents{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("documents: unsupported column type %T", src)
	}
	if len(raw) == 0 {
		*d = Documents{}
		return nil
	}
	return json.Unmarshal(raw, d)
}

// Application represents a submitted rental application.
type Application struct {
	ID          string    `db:"id" json:"id"`
	FirstName   string    `db:"firstname" json:"firstname"`
	LastName    string    `db:"lastname" json:"lastname"`
	Email       string    `db:"email" json:"email"`
	Documents   Documents `db:"documents" json:"documents"`
	Status      Status    `db:"status" json:"status"`
	SubmitterIP string    `db:"submitter_ip" json:"submitter_ip,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewApplication carries the applicant-provided fields of a submission.
type NewApplication struct {
	FirstName string    `validate:"required,max=100"`
	LastName  string    `validate:"required,max=100"`
	Email     string    `validate:"required,email,max=254"`
	Documents Documents `validate:"max=10"`
}

// Admin is the privileged operator identity.
type Admin struct {
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
}

// LoginAttempt is an append-only audit record of an admin login.
type LoginAttempt struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Success   bool      `db:"success" json:"success"`
	SourceIP  string    `db:"source_ip" json:"source_ip"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmailLog records one notification delivery attempt.
type EmailLog struct {
	ID        string    `db:"id" json:"id"`
	Recipient string    `db:"recipient" json:"recipient"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	Success   bool      `db:"success" json:"success"`
	Error     string    `db:"error" json:"error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmailTemplates is the set of named notification templates.
type EmailTemplates struct {
	ThankYou string `json:"thankYou" validate:"required"`
	Accepted string `json:"accepted" validate:"required"`
	Rejected string `json:"rejected" validate:"required"`
}

// DefaultEmailTemplates returns the built-in templates used when no file exists.
func DefaultEmailTemplates() EmailTemplates {
	return EmailTemplates{
		ThankYou: "Dear {{firstname}},\n\nThank you for your application. Your reference ID is {{id}}.",
		Accepted: "Dear {{firstname}},\n\nCongratulations! Your application (ID: {{id}}) has been accepted and will be forwarded to the agency.",
		Rejected: "Dear {{firstname}},\n\nWe regret to inform you that your application (ID: {{id}}) has been rejected.",
	}
}

// ForStatus returns the template sent when an application enters s.
func (t EmailTemplates) ForStatus(s Status) string {
	switch s {
	case StatusAccepted:
		return t.Accepted
	case StatusRejected:
		return t.Rejected
	default:
		return t.ThankYou
	}
}

// Page is one page of an audit listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}
