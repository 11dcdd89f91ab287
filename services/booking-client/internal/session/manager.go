// Package session tracks who is logged in and keeps the access token fresh.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/canchas/libs/auth"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/backend"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/model"
)

var ErrNotLoggedIn = errors.New("session: not logged in")

// Authenticator is the subset of backend.Client that issues tokens. It must
// not go through the bearer transport or a refresh could recurse.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (backend.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (backend.TokenPair, error)
}

// Manager implements httpx.TokenSource on top of a Store.
type Manager struct {
	store  Store
	authn  Authenticator
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current Session
	loaded  bool
}

func NewManager(store Store, authn Authenticator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, authn: authn, logger: logger, now: time.Now}
}

func (m *Manager) load(ctx context.Context) (Session, error) {
	if m.loaded {
		return m.current, nil
	}
	s, err := m.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		m.loaded = true
		m.current = Session{}
		return m.current, nil
	}
	if err != nil {
		return Session{}, err
	}
	m.loaded = true
	m.current = s
	return s, nil
}

// Current returns the stored session, or ErrNotLoggedIn.
func (m *Manager) Current(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.load(ctx)
	if err != nil {
		return Session{}, err
	}
	if s.AccessToken == "" {
		return Session{}, ErrNotLoggedIn
	}
	return s, nil
}

// UserID is the logged-in user, taken from the token subject when the
// stored user record lacks it. Empty when logged out.
func (m *Manager) UserID(ctx context.Context) string {
	s, err := m.Current(ctx)
	if err != nil {
		return ""
	}
	if s.User.ID != "" {
		return s.User.ID
	}
	claims, err := auth.ParseUnverified(s.AccessToken)
	if err != nil {
		return ""
	}
	return claims.UserID()
}

// Authenticated reports whether a usable session exists. An expired access
// token still counts when a refresh token is available.
func (m *Manager) Authenticated(ctx context.Context) bool {
	s, err := m.Current(ctx)
	if err != nil {
		return false
	}
	claims, err := auth.ParseUnverified(s.AccessToken)
	if err != nil {
		return false
	}
	return !claims.Expired(m.now()) || s.RefreshToken != ""
}

func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// Refresh swaps the refresh token for a new pair. When stale is no longer
// the current token another caller already refreshed and the current token
// is returned as is.
func (m *Manager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if s.AccessToken != "" && s.AccessToken != stale {
		return s.AccessToken, nil
	}
	if s.RefreshToken == "" {
		return "", ErrNotLoggedIn
	}
	pair, err := m.authn.Refresh(ctx, s.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed", "user_id", s.User.ID, "err", err)
		return "", err
	}
	s.AccessToken = pair.Token
	if pair.RefreshToken != "" {
		s.RefreshToken = pair.RefreshToken
	}
	s.SavedAt = m.now().UTC()
	if err := m.store.Save(ctx, s); err != nil {
		return "", err
	}
	m.current = s
	m.logger.Debug("token refreshed", "user_id", s.User.ID)
	return s.AccessToken, nil
}

func (m *Manager) Login(ctx context.Context, email, password string) (model.User, error) {
	resp, err := m.authn.Login(ctx, email, password)
	if err != nil {
		return model.User{}, err
	}
	s := Session{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
		SavedAt:      m.now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, s); err != nil {
		return model.User{}, err
	}
	m.current = s
	m.loaded = true
	return resp.User, nil
}

func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.current = Session{}
	m.loaded = true
	return nil
}
