package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"rentalintake/config"
	"rentalintake/database"
	"rentalintake/logger"

	"github.com/gorilla/sessions"
)

const (
	adminKey    = "admin"
	lastSeenKey = "last_seen"
)

// Options configures admin sessions.
type Options struct {
	Name        string
	Path        string
	Domain      string
	MaxAge      int
	IdleTimeout time.Duration
	Secure      bool
	HTTPOnly    bool
	SameSite    http.SameSite
	Rolling     bool
}

// OptionsFromConfig maps the session section of the config onto Options.
func OptionsFromConfig(c config.SessionConfig) Options {
	return Options{
		Name:        c.Name,
		Path:        c.Path,
		Domain:      c.Domain,
		MaxAge:      c.MaxAge,
		IdleTimeout: time.Duration(c.IdleTimeout) * time.Second,
		Secure:      c.Secure,
		HTTPOnly:    c.HTTPOnly,
		SameSite:    ParseSameSite(c.SameSite),
		Rolling:     c.Rolling,
	}
}

// ParseSameSite maps lax, strict and none onto http.SameSite. Anything else is lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Manager issues, validates and destroys admin sessions.
type Manager struct {
	store *SQLiteStore
	rows  *database.SessionRows
	opts  Options
	now   func() time.Time
}

func NewManager(rows *database.SessionRows, secret string, opts Options) *Manager {
	if opts.Name == "" {
		opts.Name = "rental-admin"
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 86400
	}

	store := NewSQLiteStore(rows, []byte(secret))
	store.Options = &sessions.Options{
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: opts.HTTPOnly,
		SameSite: opts.SameSite,
	}
	store.MaxAge(opts.MaxAge)
	store.Rolling = opts.Rolling

	return &Manager{store: store, rows: rows, opts: opts, now: time.Now}
}

// SetClock replaces the time source. Tests use it to move past timeouts.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.store.now = now
}

// Store exposes the underlying sessions.Store.
func (m *Manager) Store() sessions.Store {
	return m.store
}

// Login starts a session for username under a new session id.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, username string) error {
	session, _ := m.store.Get(r, m.opts.Name)
	if session.ID != "" {
		if err := m.rows.Delete(r.Context(), session.ID); err != nil {
			return err
		}
		session.ID = ""
	}
	session.Values = map[interface{}]interface{}{
		adminKey:    username,
		lastSeenKey: m.now().Unix(),
	}
	session.Options.MaxAge = m.store.Options.MaxAge
	return session.Save(r, w)
}

// Validate returns the admin identity bound to the request, if any.
// Sessions idle for longer than the idle timeout are destroyed.
func (m *Manager) Validate(w http.ResponseWriter, r *http.Request) (string, bool) {
	session, err := m.store.Get(r, m.opts.Name)
	if err != nil || session.IsNew {
		return "", false
	}
	username, ok := session.Values[adminKey].(string)
	if !ok || username == "" {
		return "", false
	}

	now := m.now()
	if m.opts.IdleTimeout > 0 {
		lastSeen, _ := session.Values[lastSeenKey].(int64)
		if now.Sub(time.Unix(lastSeen, 0)) > m.opts.IdleTimeout {
			logger.Info("Session for %s expired after idle timeout", username)
			if err := m.rows.Delete(r.Context(), session.ID); err != nil {
				logger.Warn("Failed to delete idle session: %v", err)
			}
			return "", false
		}
	}

	session.Values[lastSeenKey] = now.Unix()
	if err := session.Save(r, w); err != nil {
		logger.Warn("Failed to refresh session for %s: %v", username, err)
	}
	return username, true
}

// LoggedIn reports whether the request carries a valid session without
// refreshing it.
func (m *Manager) LoggedIn(r *http.Request) bool {
	session, err := m.store.Get(r, m.opts.Name)
	if err != nil || session.IsNew {
		return false
	}
	username, ok := session.Values[adminKey].(string)
	if !ok || username == "" {
		return false
	}
	if m.opts.IdleTimeout > 0 {
		lastSeen, _ := session.Values[lastSeenKey].(int64)
		return m.now().Sub(time.Unix(lastSeen, 0)) <= m.opts.IdleTimeout
	}
	return true
}

// Destroy deletes the session row and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	session, _ := m.store.Get(r, m.opts.Name)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Cleanup purges expired session rows.
func (m *Manager) Cleanup(ctx context.Context) (int64, error) {
	return m.rows.DeleteExpired(ctx, m.now())
}

// StartCleanup purges expired sessions every interval until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.Cleanup(ctx)
				if err != nil {
					logger.Error("Session cleanup failed: %v", err)
					continue
				}
				if n > 0 {
					logger.Debug("Purged %d expired sessions", n)
				}
			}
		}
	}()
}
