package oauthsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type tokenServer struct {
	*httptest.Server
	calls        atomic.Int32
	lastForm     url.Values
	refreshToken string
	status       int
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		require.NoError(t, r.ParseForm())
		ts.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := `{"access_token":"new-access","token_type":"Bearer","expires_in":3600`
		if ts.refreshToken != "" {
			body += `,"refresh_token":"` + ts.refreshToken + `"`
		}
		_, _ = w.Write([]byte(body + "}"))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newManager(t *testing.T, ts *tokenServer) (*Manager, *KeyringStore) {
	keyring.MockInit()
	store := NewKeyringStore("returnbox-test")
	m := NewManager(Config{ClientID: "client-1", TokenURL: ts.URL, RedirectURL: "com.example:/oauth"}, store)
	return m, store
}

func TestManager_Token_NoSessionIsAuthError(t *testing.T) {
	m, _ := newManager(t, newTokenServer(t))
	require.NoError(t, m.Load())
	require.False(t, m.HasSession())

	_, err := m.Token(context.Background())
	require.True(t, errors.Is(err, syncerr.ErrAuth))
}

func TestManager_Token_ValidTokenNoRefresh(t *testing.T) {
	ts := newTokenServer(t)
	m, store := newManager(t, ts)
	require.NoError(t, store.Save(&Session{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}))
	require.NoError(t, m.Load())

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", tok)
	require.EqualValues(t, 0, ts.calls.Load())
}

func TestManager_Token_ExpiredRefreshesAndKeepsOldRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	m, store := newManager(t, ts)
	require.NoError(t, store.Save(&Session{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute), Email: "me@example.com"}))
	require.NoError(t, m.Load())

	tok, err := m.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new-access", tok)
	require.EqualValues(t, 1, ts.calls.Load())
	require.Equal(t, "refresh_token", ts.lastForm.Get("grant_type"))
	require.Equal(t, "r", ts.lastForm.Get("refresh_token"))
	require.Equal(t, "client-1", ts.lastForm.Get("client_id"))
	require.Empty(t, ts.lastForm.Get("client_secret"))

	persisted, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "new-access", persisted.AccessToken)
	require.Equal(t, "r", persisted.RefreshToken)
	require.Equal(t, "me@example.com", persisted.Email)
	require.True(t, persisted.Expiry.After(time.Now()))
}

func TestManager_ForceRefresh_StoresRotatedRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	ts.refreshToken = "r2"
	m, store := newManager(t, ts)
	require.NoError(t, store.Save(&Session{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}))
	require.NoError(t, m.Load())

	_, err := m.ForceRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "r2", m.Session().RefreshToken)

	persisted, _ := store.Load()
	require.Equal(t, "r2", persisted.RefreshToken)
}

func TestManager_Refresh_RejectedIsAuthError(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	m, store := newManager(t, ts)
	require.NoError(t, store.Save(&Session{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, m.Load())

	_, err := m.Token(context.Background())
	require.True(t, errors.Is(err, syncerr.ErrAuth))
	require.Equal(t, "a", m.Session().AccessToken)
}

func TestManager_Refresh_ServerErrorIsNetwork(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadGateway
	m, store := newManager(t, ts)
	require.NoError(t, store.Save(&Session{RefreshToken: "r"}))
	require.NoError(t, m.Load())

	_, err := m.Token(context.Background())
	require.True(t, errors.Is(err, syncerr.ErrNetwork))
}

func TestManager_ExchangeAndLogout(t *testing.T) {
	ts := newTokenServer(t)
	ts.refreshToken = "r1"
	m, store := newManager(t, ts)
	require.NoError(t, m.Load())

	verifier := "verifier-0123456789-0123456789-0123456789"
	s, err := m.Exchange(context.Background(), "code-1", verifier)
	require.NoError(t, err)
	require.Equal(t, "new-access", s.AccessToken)
	require.Equal(t, "authorization_code", ts.lastForm.Get("grant_type"))
	require.Equal(t, verifier, ts.lastForm.Get("code_verifier"))
	require.True(t, m.HasSession())

	require.NoError(t, m.SetEmail("me@example.com"))
	persisted, _ := store.Load()
	require.Equal(t, "me@example.com", persisted.Email)

	require.NoError(t, m.Logout())
	require.False(t, m.HasSession())
	persisted, err = store.Load()
	require.NoError(t, err)
	require.Nil(t, persisted)
}

func TestManager_AuthCodeURL(t *testing.T) {
	m, _ := newManager(t, newTokenServer(t))
	u, err := url.Parse(m.AuthCodeURL("state-1", "verifier-0123456789-0123456789-0123456789"))
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "accounts.google.com", u.Host)
	require.Equal(t, "offline", q.Get("access_type"))
	require.Equal(t, "consent", q.Get("prompt"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, ScopeReadonly, q.Get("scope"))
	require.Equal(t, "client-1", q.Get("client_id"))
}
