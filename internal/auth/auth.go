// Package auth implements the AuthGate (component K): JWT/API-key
// validation for inbound calls, and password-based login with Argon2id
// hashing, failed-attempt lockout, and inactivity-bound session tracking.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/orchestrator-core/internal/core"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// Spec §4.K defaults.
const (
	DefaultAccessTTL      = 15 * time.Minute
	DefaultRefreshTTL     = 30 * 24 * time.Hour
	DefaultInactivityTTL  = 15 * time.Minute
	DefaultMaxFailedLogin = 5
	DefaultLockoutWindow  = 15 * time.Minute
)

// CredentialStore resolves login credentials by email. Password hashes are
// Argon2id-encoded, produced by HashPassword.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
}

// Credential is one stored login identity.
type Credential struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
}

// APIKeyConfig declares a static API key and associated identity.
type APIKeyConfig struct {
	Key    string
	UserID string
	Email  string
	Name   string
}

// Config configures a Gate.
type Config struct {
	// JWTSecret signs access/refresh tokens; typically SecretStore's
	// "auth_jwt_key" entry. Nil disables JWT/login entirely.
	JWTSecret []byte

	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	InactivityTTL  time.Duration
	MaxFailedLogin int
	LockoutWindow  time.Duration

	APIKeys     []APIKeyConfig
	Credentials CredentialStore
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.InactivityTTL <= 0 {
		c.InactivityTTL = DefaultInactivityTTL
	}
	if c.MaxFailedLogin <= 0 {
		c.MaxFailedLogin = DefaultMaxFailedLogin
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = DefaultLockoutWindow
	}
	return c
}

// Gate is the AuthGate. The zero value is not usable; use NewGate.
type Gate struct {
	mu          sync.RWMutex
	jwt         *JWTService
	cfg         Config
	apiKeys     map[string]*User
	credentials CredentialStore
	providers   map[string]OAuthProvider
	users       UserStore

	sessions *sessionTracker
	lockouts *lockoutTracker
}

// NewGate constructs an AuthGate from static configuration.
func NewGate(cfg Config) *Gate {
	cfg = cfg.withDefaults()
	g := &Gate{
		cfg:         cfg,
		apiKeys:     buildAPIKeyMap(cfg.APIKeys),
		credentials: cfg.Credentials,
		providers:   map[string]OAuthProvider{},
		sessions:    newSessionTracker(),
		lockouts:    newLockoutTracker(cfg.MaxFailedLogin, cfg.LockoutWindow),
	}
	if len(cfg.JWTSecret) > 0 {
		g.jwt = NewJWTService(cfg.JWTSecret, cfg.AccessTTL)
	}
	return g
}

// Enabled reports whether auth checks should run.
func (g *Gate) Enabled() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.jwt != nil || len(g.apiKeys) > 0
}

// Login performs password authentication, per spec §4.K: verifies the
// password against its Argon2id hash, enforces the failed-attempt lockout,
// and on success issues a fresh access/refresh token session.
func (g *Gate) Login(ctx context.Context, email, password string) (*Session, error) {
	if g == nil || g.jwt == nil {
		return nil, ErrAuthDisabled
	}
	if g.credentials == nil {
		return nil, core.NewError(core.KindInvalidCredentials, "no credential store configured", nil)
	}
	email = strings.TrimSpace(strings.ToLower(email))

	now := time.Now()
	if g.lockouts.locked(email, now) {
		return nil, core.NewError(core.KindLocked, "account locked after too many failed attempts", nil)
	}

	cred, err := g.credentials.FindByEmail(ctx, email)
	if err != nil || cred == nil {
		g.lockouts.recordFailure(email, now)
		return nil, core.NewError(core.KindInvalidCredentials, "unknown email or password", err)
	}

	ok, err := VerifyPassword(password, cred.PasswordHash)
	if err != nil || !ok {
		g.lockouts.recordFailure(email, now)
		return nil, core.NewError(core.KindInvalidCredentials, "unknown email or password", err)
	}
	g.lockouts.clear(email)

	user := &User{ID: cred.UserID, Email: cred.Email, Name: cred.Name}
	return g.issueSession(user)
}

func (g *Gate) issueSession(user *User) (*Session, error) {
	access, err := g.jwt.Generate(user, TokenAccess, g.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := g.jwt.Generate(user, TokenRefresh, g.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(g.cfg.AccessTTL)
	g.sessions.put(access, &sessionState{
		refreshToken: refresh,
		userID:       user.ID,
		email:        user.Email,
		name:         user.Name,
		expiresAt:    expiresAt,
		lastActivity: now,
	})

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		ExpiresAt:    expiresAt,
	}, nil
}

// Validate implements spec §4.K's validate(access_token): the token must
// exist, be unexpired, and have been active within the inactivity bound.
// A successful check refreshes the session's last-activity timestamp.
func (g *Gate) Validate(accessToken string) (*Caller, error) {
	if g == nil || g.jwt == nil {
		return nil, ErrAuthDisabled
	}

	claims, err := g.jwt.Validate(accessToken, TokenAccess)
	if err != nil {
		return nil, core.NewError(core.KindSessionExpired, "access token invalid or expired", err)
	}

	now := time.Now()
	state, ok := g.sessions.touch(accessToken, now)
	if !ok {
		return nil, core.NewError(core.KindSessionExpired, "session not found", nil)
	}
	if now.After(state.expiresAt) {
		g.sessions.revoke(accessToken)
		return nil, core.NewError(core.KindSessionExpired, "session expired", nil)
	}
	if now.Sub(state.lastActivity) > g.cfg.InactivityTTL {
		g.sessions.revoke(accessToken)
		return nil, core.NewError(core.KindInactive, "session exceeded inactivity bound", nil)
	}

	return &Caller{UserID: claims.Subject, Email: strings.TrimSpace(claims.Email), Name: strings.TrimSpace(claims.Name)}, nil
}

// Logout revokes accessToken's tracked session immediately.
func (g *Gate) Logout(accessToken string) {
	if g == nil {
		return
	}
	g.sessions.revoke(accessToken)
}

// ValidateAPIKey validates a static API key and returns the associated
// caller, using constant-time comparison against every configured key to
// avoid a timing side-channel revealing which keys are valid.
func (g *Gate) ValidateAPIKey(key string) (*Caller, error) {
	if g == nil {
		return nil, ErrAuthDisabled
	}
	g.mu.RLock()
	apiKeys := g.apiKeys
	g.mu.RUnlock()

	if len(apiKeys) == 0 {
		return nil, ErrAuthDisabled
	}
	inputKey := strings.TrimSpace(key)
	var matched *User
	for storedKey, user := range apiKeys {
		if subtle.ConstantTimeCompare([]byte(inputKey), []byte(storedKey)) == 1 {
			matched = user
		}
	}
	if matched == nil {
		return nil, ErrInvalidKey
	}
	return &Caller{UserID: matched.ID, Email: matched.Email, Name: matched.Name}, nil
}

func buildAPIKeyMap(keys []APIKeyConfig) map[string]*User {
	out := map[string]*User{}
	for _, entry := range keys {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			continue
		}
		userID := strings.TrimSpace(entry.UserID)
		if userID == "" {
			sum := sha256.Sum256([]byte(key))
			userID = "api_" + hex.EncodeToString(sum[:8])
		}
		out[key] = &User{
			ID:    userID,
			Email: strings.TrimSpace(entry.Email),
			Name:  strings.TrimSpace(entry.Name),
		}
	}
	return out
}
