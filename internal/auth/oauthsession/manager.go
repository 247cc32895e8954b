package oauthsession

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/BearBump/ReturnBox/internal/syncerr"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	ScopeReadonly   = "https://www.googleapis.com/auth/gmail.readonly"

	expiryLeeway = 30 * time.Second
)

type Config struct {
	ClientID    string
	RedirectURL string
	AuthURL     string
	TokenURL    string
	Scopes      []string
}

// Manager owns the OAuth session: it loads it from the store, refreshes it
// with the refresh-token grant (client id only, no secret) and persists every change.
type Manager struct {
	oc    *oauth2.Config
	store Store
	httpc *http.Client

	mu      sync.Mutex
	session *Session

	now func() time.Time
}

func NewManager(cfg Config, store Store) *Manager {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{ScopeReadonly}
	}
	return &Manager{
		oc: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store: store,
		httpc: &http.Client{Timeout: 15 * time.Second},
		now:   time.Now,
	}
}

// Load reads the persisted session, if any.
func (m *Manager) Load() error {
	s, err := m.store.Load()
	if err != nil {
		return errors.Wrap(err, "load session")
	}
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return nil
}

func (m *Manager) HasSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.usable()
}

// Session returns a copy of the current session (nil when logged out).
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// AuthCodeURL builds the consent URL for offline access with a PKCE S256 challenge.
func (m *Manager) AuthCodeURL(state, verifier string) string {
	return m.oc.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange trades an authorization code for tokens and persists them.
func (m *Manager) Exchange(ctx context.Context, code, verifier string) (*Session, error) {
	opts := []oauth2.AuthCodeOption{}
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := m.oc.Exchange(m.withClient(ctx), code, opts...)
	if err != nil {
		return nil, classify(err, "exchange code")
	}
	s := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if err := m.replace(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Token returns a usable access token, refreshing it first when it is expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.session.usable() {
		return "", errors.Wrap(syncerr.ErrAuth, "no session")
	}
	if m.session.AccessToken != "" && m.now().Add(expiryLeeway).Before(m.session.Expiry) {
		return m.session.AccessToken, nil
	}
	return m.refreshLocked(ctx)
}

// ForceRefresh refreshes regardless of expiry; used after the API rejected the token.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.session.usable() {
		return "", errors.Wrap(syncerr.ErrAuth, "no session")
	}
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	if m.session.RefreshToken == "" {
		return "", errors.Wrap(syncerr.ErrAuth, "no refresh token")
	}
	// пустой access token заставляет TokenSource сходить за новым
	src := m.oc.TokenSource(m.withClient(ctx), &oauth2.Token{RefreshToken: m.session.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", classify(err, "refresh token")
	}

	next := *m.session
	next.AccessToken = tok.AccessToken
	next.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if err := m.store.Save(&next); err != nil {
		return "", errors.Wrap(err, "persist session")
	}
	m.session = &next
	return next.AccessToken, nil
}

// SetEmail records the account address alongside the tokens.
func (m *Manager) SetEmail(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return errors.Wrap(syncerr.ErrAuth, "no session")
	}
	next := *m.session
	next.Email = email
	if err := m.store.Save(&next); err != nil {
		return errors.Wrap(err, "persist session")
	}
	m.session = &next
	return nil
}

func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(); err != nil {
		return errors.Wrap(err, "clear session")
	}
	m.session = nil
	return nil
}

func (m *Manager) replace(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(s); err != nil {
		return errors.Wrap(err, "persist session")
	}
	m.session = s
	return nil
}

func (m *Manager) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpc)
}

func classify(err error, op string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return errors.Wrapf(syncerr.ErrNetwork, "%s: %v", op, err)
		}
		return errors.Wrapf(syncerr.ErrAuth, "%s: %v", op, err)
	}
	return errors.Wrapf(syncerr.ErrNetwork, "%s: %v", op, err)
}
