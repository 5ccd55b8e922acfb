package session

import (
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personal-pl/plctl/internal/model"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ana", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Token)

	user := model.User{ID: "u1", Username: "ana"}
	require.NoError(t, store.Save(State{Token: "abc", User: &user}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Token)
	require.NotNil(t, got.User)
	assert.Equal(t, "ana", got.User.Username)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestLoginRestoreLogout(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	s := New(store)

	require.NoError(t, s.Login("opaque-token"))
	require.NoError(t, s.SetUser(model.User{Username: "ana"}))
	assert.True(t, s.Authenticated())

	restored := New(store)
	ok, err := restored.Restore()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "opaque-token", restored.Token())
	u, ok := restored.User()
	require.True(t, ok)
	assert.Equal(t, "ana", u.Username)

	require.NoError(t, restored.Logout())
	assert.False(t, restored.Authenticated())
	_, ok = restored.User()
	assert.False(t, ok)

	again := New(store)
	ok, err = again.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogin_EmptyToken(t *testing.T) {
	assert.Error(t, New(NewMemoryStore()).Login(""))
}

func TestSetUser_NoSession(t *testing.T) {
	assert.Error(t, New(NewMemoryStore()).SetUser(model.User{}))
}

func TestLogin_DropsPreviousProfile(t *testing.T) {
	s := New(NewMemoryStore())
	require.NoError(t, s.Login("one"))
	require.NoError(t, s.SetUser(model.User{Username: "ana"}))
	require.NoError(t, s.Login("two"))
	_, ok := s.User()
	assert.False(t, ok)
}

func TestRestore_ExpiredToken(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	require.NoError(t, store.Save(State{Token: signedToken(t, now.Add(-time.Minute))}))

	s := New(store, WithClock(func() time.Time { return now }))
	ok, err := s.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Authenticated())

	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Token, "expired token should be removed from the store")
}

func TestRestore_LiveToken(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	token := signedToken(t, now.Add(time.Hour))
	require.NoError(t, store.Save(State{Token: token}))

	s := New(store, WithClock(func() time.Time { return now }))
	ok, err := s.Restore()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, s.Token())
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := TokenExpiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = TokenExpiry("not-a-jwt")
	assert.False(t, ok)
}

func TestInvalidate_ExactlyOnce(t *testing.T) {
	var calls int
	var mu sync.Mutex
	s := New(NewMemoryStore(), OnInvalidate(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	require.NoError(t, s.Login("tok"))
	require.NoError(t, s.SetUser(model.User{Username: "ana"}))

	var wg sync.WaitGroup
	var cleared int
	var cmu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Invalidate() {
				cmu.Lock()
				cleared++
				cmu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cleared)
	assert.Equal(t, 1, calls)
	assert.False(t, s.Authenticated())
	_, ok := s.User()
	assert.False(t, ok)
}

func TestCookieMirror(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse("http://localhost:8000")
	require.NoError(t, err)

	s := New(NewMemoryStore(), WithCookieJar(jar, base))
	require.NoError(t, s.Login("tok-123"))

	cookies := jar.Cookies(base)
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, "tok-123", cookies[0].Value)

	c := s.Cookie()
	require.NotNil(t, c)
	assert.Equal(t, int(CookieMaxAge.Seconds()), c.MaxAge)

	require.NoError(t, s.Logout())
	assert.Empty(t, jar.Cookies(base))
	assert.Nil(t, s.Cookie())
}
