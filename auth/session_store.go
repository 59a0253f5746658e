package auth

import (
	"encoding/base32"
	"errors"
	"net/http"
	"strings"
	"time"

	"rentalintake/database"
	"rentalintake/models"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// SQLiteStore is a sessions.Store that keeps session values in the database.
// The client cookie only carries the signed session id.
type SQLiteStore struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options
	// Rolling extends the expiry on every save. Otherwise the expiry is fixed
	// when the session is first issued.
	Rolling bool

	rows  *database.SessionRows
	now   func() time.Time
	codec securecookie.GobEncoder
}

const issuedAtKey = "_issued_at"

// NewSQLiteStore returns a store persisting rows through rows. keyPairs are
// passed to securecookie as in sessions.NewCookieStore.
func NewSQLiteStore(rows *database.SessionRows, keyPairs ...[]byte) *SQLiteStore {
	s := &SQLiteStore{
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		Rolling: true,
		rows:    rows,
		now:     time.Now,
	}
	s.MaxAge(s.Options.MaxAge)
	return s
}

// MaxAge sets the maximum age for the store and the signed id cookie.
func (s *SQLiteStore) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, c := range s.Codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

// Get returns a cached session for the request or loads it.
func (s *SQLiteStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the session named by the request cookie, or a fresh one when
// the cookie is missing, invalid or points at an expired row.
func (s *SQLiteStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		session.ID = ""
		return session, err
	}

	data, err := s.rows.Load(r.Context(), session.ID, s.now())
	if errors.Is(err, models.ErrNotFound) {
		session.ID = ""
		return session, nil
	}
	if err != nil {
		return session, err
	}
	if err := s.codec.Deserialize(data, &session.Values); err != nil {
		session.ID = ""
		return session, err
	}
	session.IsNew = false
	return session, nil
}

// Save writes the session row and sets the id cookie. A negative MaxAge
// deletes the row and expires the cookie.
func (s *SQLiteStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge <= 0 {
		if session.ID != "" {
			if err := s.rows.Delete(r.Context(), session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	now := s.now()
	issued, ok := session.Values[issuedAtKey].(int64)
	if !ok || session.ID == "" {
		issued = now.Unix()
		session.Values[issuedAtKey] = issued
	}
	fresh := session.ID == ""
	if fresh {
		session.ID = newSessionID()
	}

	lifetime := time.Duration(session.Options.MaxAge) * time.Second
	expiresAt := time.Unix(issued, 0).Add(lifetime)
	if s.Rolling {
		expiresAt = now.Add(lifetime)
	}

	data, err := s.codec.Serialize(session.Values)
	if err != nil {
		return err
	}
	if err := s.rows.Upsert(r.Context(), session.ID, data, expiresAt); err != nil {
		return err
	}

	if !fresh && !s.Rolling {
		return nil
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	opts := *session.Options
	opts.MaxAge = int(expiresAt.Sub(now).Seconds())
	if opts.MaxAge < 1 {
		opts.MaxAge = 1
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, &opts))
	return nil
}

func newSessionID() string {
	return strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
}
