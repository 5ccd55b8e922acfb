// Package session holds the authenticated session shared by every API call.
//
// A Session is created once per process, restored from its Store on
// startup, and handed to the API client explicitly. It is destroyed on
// logout or when the backend rejects the token.
package session

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/personal-pl/plctl/internal/logging"
	"github.com/personal-pl/plctl/internal/model"
)

// CookieName is the cookie that mirrors the bearer token.
const CookieName = "pl_auth_token"

// CookieMaxAge matches the backend's token lifetime.
const CookieMaxAge = 7 * 24 * time.Hour

// Session is safe for concurrent use.
type Session struct {
	mu    sync.Mutex
	store Store
	state State

	jar     http.CookieJar
	baseURL *url.URL

	now          func() time.Time
	log          *slog.Logger
	onInvalidate func()
}

// Option configures a Session.
type Option func(*Session)

// WithCookieJar mirrors the token into jar for baseURL.
func WithCookieJar(jar http.CookieJar, baseURL *url.URL) Option {
	return func(s *Session) {
		s.jar = jar
		s.baseURL = baseURL
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = logging.For(l, logging.ComponentSession) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// OnInvalidate registers a callback run once each time a live session is
// invalidated by the backend.
func OnInvalidate(fn func()) Option {
	return func(s *Session) { s.onInvalidate = fn }
}

// New creates an empty session backed by store. Call Restore to load
// persisted state.
func New(store Store, opts ...Option) *Session {
	s := &Session{
		store: store,
		now:   time.Now,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads persisted state. Tokens whose JWT expiry has passed are
// discarded. Reports whether a usable token was restored.
func (s *Session) Restore() (bool, error) {
	st, err := s.store.Load()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Token == "" {
		s.state = State{}
		return false, nil
	}
	if exp, ok := TokenExpiry(st.Token); ok && !s.now().Before(exp) {
		s.log.Info("stored token expired", "expired_at", exp)
		s.state = State{}
		s.mirror("")
		return false, s.store.Clear()
	}

	s.state = st
	s.mirror(st.Token)
	return true, nil
}

// Login installs a freshly issued token and persists it. Any cached profile
// from a previous login is dropped.
func (s *Session) Login(token string) error {
	if token == "" {
		return fmt.Errorf("empty access token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{Token: token, SavedAt: s.now()}
	if err := s.store.Save(s.state); err != nil {
		return err
	}
	s.mirror(token)
	return nil
}

// SetUser caches the profile alongside the token.
func (s *Session) SetUser(u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Token == "" {
		return fmt.Errorf("no active session")
	}
	s.state.User = &u
	s.state.SavedAt = s.now()
	return s.store.Save(s.state)
}

// Logout destroys the session locally.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clear()
}

// Invalidate destroys the session after the backend rejected the token.
// It reports true only for the call that actually cleared a live session,
// so concurrent 401s produce a single redirect.
func (s *Session) Invalidate() bool {
	s.mu.Lock()
	if s.state.Token == "" {
		s.mu.Unlock()
		return false
	}
	if err := s.clear(); err != nil {
		s.log.Warn("clearing session", logging.FieldError, err)
	}
	fn := s.onInvalidate
	s.mu.Unlock()

	s.log.Debug("session invalidated by backend")
	if fn != nil {
		fn()
	}
	return true
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// User returns the cached profile.
func (s *Session) User() (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User == nil {
		return model.User{}, false
	}
	return *s.state.User, true
}

// Cookie returns the mirror cookie for the current token, or nil.
func (s *Session) Cookie() *http.Cookie {
	token := s.Token()
	if token == "" {
		return nil
	}
	return tokenCookie(token)
}

// TokenExpiry reads the exp claim without verifying the signature.
// Opaque tokens report false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	case int64:
		return time.Unix(exp, 0), true
	default:
		return time.Time{}, false
	}
}

func (s *Session) clear() error {
	s.state = State{}
	s.mirror("")
	return s.store.Clear()
}

// mirror keeps the cookie jar in step with the token; "" expires it.
func (s *Session) mirror(token string) {
	if s.jar == nil || s.baseURL == nil {
		return
	}
	if token == "" {
		s.jar.SetCookies(s.baseURL, []*http.Cookie{{Name: CookieName, Value: "", Path: "/", MaxAge: -1}})
		return
	}
	s.jar.SetCookies(s.baseURL, []*http.Cookie{tokenCookie(token)})
}

func tokenCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
