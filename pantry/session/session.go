// session/session.go
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

// Session is a visitor's server-side session. It carries only an identity
// and a lifetime; per-visitor state such as send stamps lives in separate
// stores keyed by ID.
type Session struct {
	id        string
	isNew     bool
	createdAt time.Time
	expiresAt time.Time
	saved     atomic.Bool
}

func (s *Session) ID() string { return s.id }

// IsNew reports whether the session was issued on this request.
func (s *Session) IsNew() bool { return s.isNew }

// Modified reports whether the session still has to be saved. Only a new
// session needs saving; a loaded one is unchanged by the request.
func (s *Session) Modified() bool { return s.isNew && !s.saved.Load() }

// Store persists session records.
type Store interface {
	// Load returns ErrNotFound if the session doesn't exist and ErrExpired
	// if it has lapsed.
	Load(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Record is the stored form of a session.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MarshalBinary lets go-redis store a Record directly.
func (r *Record) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

func (r *Record) UnmarshalBinary(b []byte) error {
	return json.Unmarshal(b, r)
}

var (
	ErrNotFound = errors.New("session: not found")
	ErrExpired  = errors.New("session: expired")
)

// generateID creates a cryptographically secure session ID.
func generateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Config configures the session manager.
type Config struct {
	// CookieName defaults to "contact_session".
	CookieName string

	// MaxAge is the session lifetime. Defaults to 24 hours.
	MaxAge time.Duration

	// Path defaults to "/".
	Path   string
	Domain string

	// Secure should be true whenever the site is served over HTTPS.
	Secure bool

	// SameSite defaults to http.SameSiteLaxMode. Use SameSiteNoneMode (with
	// Secure) when the form is posted cross-site from another origin.
	SameSite http.SameSite

	// IDGenerator defaults to 32 random bytes, base64url encoded.
	IDGenerator func() (string, error)

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultCookieName is the cookie used when Config.CookieName is empty.
const DefaultCookieName = "contact_session"

// Manager handles session creation, retrieval, and persistence.
type Manager struct {
	store  Store
	config Config
}

// NewManager creates a session manager with the given store and config.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = generateID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: store, config: cfg}
}

// Get retrieves the session named by the request cookie, creating a new
// one when the cookie is absent, unknown, or expired. Store errors other
// than not-found/expired are returned alongside a fresh session.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	var loadErr error
	if cookie, err := r.Cookie(m.config.CookieName); err == nil && cookie.Value != "" {
		rec, err := m.store.Load(r.Context(), cookie.Value)
		switch {
		case err == nil && m.config.Now().Before(rec.ExpiresAt):
			return &Session{
				id:        rec.ID,
				createdAt: rec.CreatedAt,
				expiresAt: rec.ExpiresAt,
			}, nil
		case err == nil, errors.Is(err, ErrExpired):
			_ = m.store.Delete(r.Context(), cookie.Value)
		case errors.Is(err, ErrNotFound):
		default:
			loadErr = err
		}
	}

	s, err := m.New()
	if err != nil {
		return nil, err
	}
	return s, loadErr
}

// New creates a new, unsaved session.
func (m *Manager) New() (*Session, error) {
	id, err := m.config.IDGenerator()
	if err != nil {
		return nil, err
	}
	now := m.config.Now()
	return &Session{
		id:        id,
		isNew:     true,
		createdAt: now,
		expiresAt: now.Add(m.config.MaxAge),
	}, nil
}

// Save persists the session and sets the cookie.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	rec := &Record{ID: s.id, CreatedAt: s.createdAt, ExpiresAt: s.expiresAt}
	if err := m.store.Save(r.Context(), rec); err != nil {
		return err
	}
	s.saved.Store(true)

	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    s.id,
		Path:     m.config.Path,
		Domain:   m.config.Domain,
		MaxAge:   int(m.config.MaxAge.Seconds()),
		Secure:   m.config.Secure,
		HttpOnly: true,
		SameSite: m.config.SameSite,
	})
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
