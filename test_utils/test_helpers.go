package testutils

import (
	"bytes"
	"context"
	"mime/multipart"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"rentalintake/auth"
	"rentalintake/config"
	"rentalintake/database"
	"rentalintake/lifecycle"
	"rentalintake/models"
	"rentalintake/notify"
	"rentalintake/storage"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

// Default credentials seeded into every test environment.
const (
	AdminUsername = "admin"
	AdminPassword = "adminpass"
)

// Env wires every component against an in-memory database, a temporary
// directory and a recording mail transport.
type Env struct {
	Config        *config.Config
	DB            *sqlx.DB
	Applications  *database.ApplicationStore
	Admins        *database.AdminStore
	LoginAttempts *database.LoginAttemptStore
	EmailLogs     *database.EmailLogStore
	Credentials   *auth.CredentialStore
	Sessions      *auth.Manager
	Templates     *notify.TemplateStore
	Transport     *notify.MemoryTransport
	Dispatcher    *notify.Dispatcher
	Uploads       *storage.Uploads
	Engine        *lifecycle.Engine
}

// NewEnv builds an Env and seeds the default admin. Everything is torn down
// when the test ends.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Admin.BcryptCost = bcrypt.MinCost
	cfg.Uploads.Dir = filepath.Join(dir, "uploads")
	cfg.Templates.File = filepath.Join(dir, "emailTemplates.json")

	db, err := database.Open(database.Driver, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	log := NewLogger(t)
	env := &Env{
		Config:        cfg,
		DB:            db,
		Applications:  database.NewApplicationStore(db),
		Admins:        database.NewAdminStore(db),
		LoginAttempts: database.NewLoginAttemptStore(db),
		EmailLogs:     database.NewEmailLogStore(db),
		Templates:     notify.NewTemplateStore(cfg.Templates.File),
		Transport:     notify.NewMemoryTransport(),
	}
	env.Credentials = auth.NewCredentialStore(env.Admins, cfg.Admin.BcryptCost)
	env.Sessions = auth.NewManager(database.NewSessionRows(db), cfg.Session.SecretKey, auth.OptionsFromConfig(cfg.Session))

	if _, err := env.Credentials.SeedDefaultAdmin(context.Background(), AdminUsername, AdminPassword); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}
	if err := env.Templates.Load(); err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}

	env.Uploads, err = storage.NewUploads(cfg.Uploads.Dir)
	if err != nil {
		t.Fatalf("Failed to create uploads dir: %v", err)
	}
	env.Dispatcher = notify.NewDispatcher(env.Transport, env.EmailLogs, notify.Options{
		QueueSize:   cfg.Mail.QueueSize,
		Workers:     1,
		SendTimeout: time.Second,
	}, log)
	env.Engine = lifecycle.New(env.Applications, env.Templates, env.Dispatcher, env.Uploads, log)

	t.Cleanup(func() {
		env.Dispatcher.Close()
		db.Close()
	})
	return env
}

// NewLogger returns a structured logger that writes to t.
func NewLogger(t testing.TB) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// Drain waits for queued notifications. Later notifications are delivered
// inline, so Drain may be called more than once.
func (e *Env) Drain() {
	e.Dispatcher.Close()
}

// CreateTestApplication stores a pending application directly, without notifications.
func (e *Env) CreateTestApplication(t testing.TB, firstName, email string, docs ...models.Document) string {
	t.Helper()
	id, err := e.Applications.Create(context.Background(), models.NewApplication{
		FirstName: firstName,
		LastName:  "Tester",
		Email:     email,
		Documents: docs,
	}, "127.0.0.1")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	return id
}

// GetApplication loads an application or fails the test.
func (e *Env) GetApplication(t testing.TB, id string) *models.Application {
	t.Helper()
	app, err := e.Applications.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get application %s: %v", id, err)
	}
	return app
}

// CountApplicationsByStatus counts applications in one status.
func (e *Env) CountApplicationsByStatus(status models.Status) (int, error) {
	var n int
	err := e.DB.Get(&n, "SELECT COUNT(*) FROM applications WHERE status = ?", status)
	return n, err
}

// CountLoginAttempts counts login attempts with the given outcome.
func (e *Env) CountLoginAttempts(success bool) (int, error) {
	var n int
	err := e.DB.Get(&n, "SELECT COUNT(*) FROM login_attempts WHERE success = ?", success)
	return n, err
}

// AdminHash returns the stored password hash of the default admin.
func (e *Env) AdminHash(t testing.TB) string {
	t.Helper()
	admin, err := e.Admins.Get(context.Background(), AdminUsername)
	if err != nil {
		t.Fatalf("Failed to load admin: %v", err)
	}
	return admin.PasswordHash
}

// VerifyPasswordHash verifies if a plain password matches the hashed password
func VerifyPasswordHash(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// PublicFS is a minimal page set for router tests.
func PublicFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":           {Data: []byte("<html><body>apply</body></html>")},
		"main.js":              {Data: []byte("console.log('ok')")},
		"admin/login.html":     {Data: []byte("<html><body>login</body></html>")},
		"admin/dashboard.html": {Data: []byte("<html><body>dashboard</body></html>")},
	}
}

// MultipartForm encodes fields and files (name -> content) under the
// "documents" field. It returns the body and its content type.
func MultipartForm(t testing.TB, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	for name, content := range files {
		part, err := w.CreateFormFile("documents", name)
		if err != nil {
			t.Fatalf("Failed to create file part: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}
