// Package apitest provides an in-memory fake of the P&L backend for tests.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

const signingKey = "apitest-secret"

// Recorded is one request seen by the server.
type Recorded struct {
	Method        string
	Path          string
	RequestID     string
	Authorization string
	UserAgent     string
	Cookie        string
}

// Failure is a canned error response.
type Failure struct {
	Status int
	Body   any // JSON-encoded unless it is a string
}

type account struct {
	user     model.User
	password string
}

// Server is a fake backend. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	now      func() time.Time
	tokenTTL time.Duration
	users    map[string]*account // by username
	tokens   map[string]string   // token -> username
	requests []Recorded

	batches        []model.ImportBatch
	hashes         map[string]bool // bank|period|sha256
	duplicateAs409 bool
	uploadFailures map[model.Bank]Failure
	commitFailure  *Failure
	commits        []model.CommitRequest

	summaries map[period.Period]model.PLSummaryResponse
	delays    map[period.Period]time.Duration
	txs       []model.Transaction
	journal   map[string]model.JournalEntry
}

// New starts a fake backend and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		now:            time.Now,
		tokenTTL:       time.Hour,
		users:          map[string]*account{},
		tokens:         map[string]string{},
		hashes:         map[string]bool{},
		uploadFailures: map[model.Bank]Failure{},
		summaries:      map[period.Period]model.PLSummaryResponse{},
		delays:         map[period.Period]time.Duration{},
		journal:        map[string]model.JournalEntry{},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.record)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	authed.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	authed.HandleFunc("/import/commit", s.handleCommit).Methods(http.MethodPost)
	authed.HandleFunc("/pl/summary", s.handleSummary).Methods(http.MethodPost)
	authed.HandleFunc("/tx", s.handleTransactions).Methods(http.MethodPost)
	authed.HandleFunc("/journal", s.handleJournalList).Methods(http.MethodGet)
	authed.HandleFunc("/journal", s.handleJournalCreate).Methods(http.MethodPost)
	authed.HandleFunc("/journal/{id}", s.handleJournalGet).Methods(http.MethodGet)
	authed.HandleFunc("/journal/{id}", s.handleJournalUpdate).Methods(http.MethodPatch)
	authed.HandleFunc("/journal/{id}", s.handleJournalDelete).Methods(http.MethodDelete)
	authed.HandleFunc("/journal/{id}/export", s.handleJournalExport).Methods(http.MethodGet)
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cookie string
		if c, err := r.Cookie("pl_auth_token"); err == nil {
			cookie = c.Value
		}
		s.mu.Lock()
		s.requests = append(s.requests, Recorded{
			Method:        r.Method,
			Path:          r.URL.Path,
			RequestID:     r.Header.Get("X-Request-ID"),
			Authorization: r.Header.Get("Authorization"),
			UserAgent:     r.Header.Get("User-Agent"),
			Cookie:        cookie,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type ctxUser struct{}

func userFrom(r *http.Request) string {
	name, _ := r.Context().Value(ctxUser{}).(string)
	return name
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		name, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok || !s.tokenLive(token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUser{}, name)))
	})
}

func (s *Server) tokenLive(token string) bool {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return []byte(signingKey), nil
	})
	return err == nil && parsed.Valid
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, email, password string) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password)
}

func (s *Server) addUserLocked(username, email, password string) model.User {
	u := model.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		IsActive:  true,
		CreatedAt: model.Timestamp{Time: s.now().UTC().Truncate(time.Second)},
	}
	s.users[username] = &account{user: u, password: password}
	return u
}

// IssueToken returns a valid bearer token for username, as login would.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username, s.tokenTTL)
}

// IssueExpiredToken returns a signed token whose exp is in the past.
func (s *Server) IssueExpiredToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username, -time.Hour)
}

func (s *Server) issueLocked(username string, ttl time.Duration) string {
	now := s.now()
	claims := jwt.StandardClaims{
		Subject:   username,
		Id:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	if err != nil {
		panic(err)
	}
	s.tokens[token] = username
	return token
}

// RevokeAll makes every issued token fail with 401.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

// DuplicateAs409 switches duplicate uploads from a 2xx body with
// duplicate_detected=true to a 409 conflict.
func (s *Server) DuplicateAs409(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duplicateAs409 = on
}

// FailUpload makes uploads for bank answer with f until cleared with a
// zero Failure.
func (s *Server) FailUpload(bank model.Bank, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Status == 0 {
		delete(s.uploadFailures, bank)
		return
	}
	s.uploadFailures[bank] = f
}

// FailCommit makes the next commits answer with f; nil clears it.
func (s *Server) FailCommit(f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitFailure = f
}

// SetSummary seeds the summary for a month. The filters echo is always
// rebuilt from the request.
func (s *Server) SetSummary(p period.Period, resp model.PLSummaryResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[p] = resp
}

// SetDelay slows down summary responses for a month.
func (s *Server) SetDelay(p period.Period, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[p] = d
}

// AddTransactions seeds derived transactions.
func (s *Server) AddTransactions(txs ...model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, txs...)
	sort.SliceStable(s.txs, func(i, j int) bool {
		return s.txs[i].Timestamp.After(s.txs[j].Timestamp.Time)
	})
}

// Requests returns every request seen so far.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.requests...)
}

// Count returns how many requests hit method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Batches returns every accepted upload, duplicates included.
func (s *Server) Batches() []model.ImportBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ImportBatch(nil), s.batches...)
}

// Commits returns every successful commit request.
func (s *Server) Commits() []model.CommitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CommitRequest(nil), s.commits...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "app": "personal-pl"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if !decode(w, r, &creds) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.users[creds.Username]
	if !ok || acct.password != creds.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	writeJSON(w, http.StatusOK, model.Token{AccessToken: s.issueLocked(creds.Username, s.tokenTTL), TokenType: "bearer"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if !decode(w, r, &reg) {
		return
	}
	if len(reg.Password) < 8 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "password"}, "msg": "String should have at least 8 characters"}},
		})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[reg.Username]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Username already registered"})
		return
	}
	writeJSON(w, http.StatusCreated, s.addUserLocked(reg.Username, reg.Email, reg.Password))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acct := s.users[userFrom(r)]
	s.mu.Unlock()
	if acct == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, acct.user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, f Failure) {
	if text, ok := f.Body.(string); ok {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(f.Status)
		_, _ = w.Write([]byte(text))
		return
	}
	writeJSON(w, f.Status, f.Body)
}
