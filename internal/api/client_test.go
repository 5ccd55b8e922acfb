package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personal-pl/plctl/internal/apitest"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
	"github.com/personal-pl/plctl/internal/session"
)

type fixture struct {
	srv     *apitest.Server
	client  *Client
	sess    *session.Session
	invalid int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.New(t)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	f := &fixture{srv: srv}
	var mu sync.Mutex
	f.sess = session.New(session.NewMemoryStore(),
		session.WithCookieJar(jar, base),
		session.OnInvalidate(func() {
			mu.Lock()
			f.invalid++
			mu.Unlock()
		}),
	)
	f.client, err = New(srv.URL, f.sess, WithHTTPClient(&http.Client{Jar: jar}))
	require.NoError(t, err)
	return f
}

// loggedIn seeds a user and logs in through the API.
func (f *fixture) loggedIn(t *testing.T) model.User {
	t.Helper()
	f.srv.AddUser("alice", "alice@example.com", "correct-horse")
	u, err := f.client.Login(context.Background(), model.Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	return u
}

func TestNew_Validation(t *testing.T) {
	sess := session.New(session.NewMemoryStore())

	_, err := New("http://localhost:8000", nil)
	require.Error(t, err)

	_, err = New("ftp://example.com", sess)
	require.Error(t, err)

	c, err := New("http://localhost:8000/", sess)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.BaseURL().String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	hs, err := f.client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", hs.Status)
}

func TestLogin_StoresTokenAndProfile(t *testing.T) {
	f := newFixture(t)
	u := f.loggedIn(t)

	assert.Equal(t, "alice", u.Username)
	assert.True(t, f.sess.Authenticated())
	cached, ok := f.sess.User()
	require.True(t, ok)
	assert.Equal(t, u.ID, cached.ID)
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	f.srv.AddUser("alice", "alice@example.com", "correct-horse")

	_, err := f.client.Login(context.Background(), model.Credentials{Username: "alice", Password: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect username or password")
	assert.False(t, f.sess.Authenticated())
	assert.Zero(t, f.invalid, "failed login is not a session loss")
}

func TestLogin_RequiresFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Login(context.Background(), model.Credentials{Username: " "})
	require.Error(t, err)
	assert.Zero(t, f.srv.Count(http.MethodPost, "/api/auth/login"))
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.client.Register(ctx, model.Registration{Username: "bob", Email: "bob@example.com", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)
	assert.False(t, f.sess.Authenticated(), "register does not log in")

	_, err = f.client.Register(ctx, model.Registration{Username: "bob", Email: "bob@example.com", Password: "long-enough"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Username already registered")

	_, err = f.client.Register(ctx, model.Registration{Username: "carol", Email: "carol@example.com", Password: "short"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "password: String should have at least 8 characters")
}

func TestRegister_RejectsBadEmailLocally(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.Register(context.Background(), model.Registration{Username: "bob", Email: "not-an-email", Password: "long-enough"})
	require.Error(t, err)
	assert.Zero(t, f.srv.Count(http.MethodPost, "/api/auth/register"))
}

func TestRequestHeaders(t *testing.T) {
	f := newFixture(t)
	f.loggedIn(t)

	_, err := f.client.Me(context.Background())
	require.NoError(t, err)

	var me []apitest.Recorded
	for _, r := range f.srv.Requests() {
		if r.Path == "/api/auth/me" {
			me = append(me, r)
		}
	}
	require.Len(t, me, 2)
	for _, r := range me {
		assert.Equal(t, "Bearer "+f.sess.Token(), r.Authorization)
		assert.True(t, strings.HasPrefix(r.UserAgent, "plctl/"))
		assert.Len(t, r.RequestID, 36)
		assert.Equal(t, f.sess.Token(), r.Cookie, "token mirrored as cookie")
	}
	assert.NotEqual(t, me[0].RequestID, me[1].RequestID)
}

func TestNoSession_NoRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.PLSummary(context.Background(), model.SummaryRequest{Month: period.MustParse("2025-07")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.True(t, IsAuth(err))
	assert.Zero(t, f.srv.Count(http.MethodPost, "/api/pl/summary"))
}

func TestUnauthorized_InvalidatesOnceWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.loggedIn(t)
	f.srv.RevokeAll()

	_, err := f.client.PLSummary(context.Background(), model.SummaryRequest{Month: period.MustParse("2025-07")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsAuth(err))

	assert.False(t, f.sess.Authenticated())
	_, ok := f.sess.User()
	assert.False(t, ok)
	assert.Equal(t, 1, f.invalid)
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "/api/pl/summary"), "no retry")
}

func TestUnauthorized_ConcurrentCallsInvalidateOnce(t *testing.T) {
	f := newFixture(t)
	f.loggedIn(t)
	f.srv.RevokeAll()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.client.Transactions(context.Background(), model.TransactionQuery{})
		}()
	}
	wg.Wait()

	assert.False(t, f.sess.Authenticated())
	assert.Equal(t, 1, f.invalid)
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	f := newFixture(t)
	f.loggedIn(t)
	f.srv.Close()

	require.NoError(t, f.client.Logout(context.Background()))
	assert.False(t, f.sess.Authenticated())
	assert.Zero(t, f.invalid)
}

func TestTransportError(t *testing.T) {
	f := newFixture(t)
	f.srv.Close()

	_, err := f.client.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.False(t, IsAuth(err))
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.client.Health(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "request canceled")
}
