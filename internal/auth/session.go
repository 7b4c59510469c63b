package auth

import (
	"sync"
	"time"
)

// Session is the access/refresh token pair issued by Login, per spec §4.K.
type Session struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
	Name         string
	ExpiresAt    time.Time
}

// sessionState is the server-side record the gate tracks per live access
// token, to enforce the inactivity bound JWT expiry alone cannot express.
type sessionState struct {
	refreshToken string
	userID       string
	email        string
	name         string
	expiresAt    time.Time
	lastActivity time.Time
}

type sessionTracker struct {
	mu       sync.Mutex
	byAccess map[string]*sessionState
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{byAccess: map[string]*sessionState{}}
}

func (t *sessionTracker) put(accessToken string, s *sessionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byAccess[accessToken] = s
}

// touch returns a copy of the session state for accessToken as it was before
// this call, then bumps its last-activity timestamp to now; it returns
// (zero value, false) if the token has no tracked session (rotated away or
// never issued by this gate instance).
func (t *sessionTracker) touch(accessToken string, now time.Time) (sessionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byAccess[accessToken]
	if !ok {
		return sessionState{}, false
	}
	prev := *s
	s.lastActivity = now
	return prev, true
}

func (t *sessionTracker) revoke(accessToken string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byAccess, accessToken)
}

// lockoutTracker enforces spec §4.K's failed-login lockout: N failures
// within a window locks the account for the remainder of that window.
type lockoutTracker struct {
	mu          sync.Mutex
	failures    map[string][]time.Time
	maxAttempts int
	window      time.Duration
}

func newLockoutTracker(maxAttempts int, window time.Duration) *lockoutTracker {
	return &lockoutTracker{
		failures:    map[string][]time.Time{},
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// locked reports whether email has accumulated maxAttempts failures within
// the trailing window, pruning expired failures as it goes.
func (l *lockoutTracker) locked(email string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(email, now)
	return len(l.failures[email]) >= l.maxAttempts
}

func (l *lockoutTracker) recordFailure(email string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(email, now)
	l.failures[email] = append(l.failures[email], now)
}

func (l *lockoutTracker) clear(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, email)
}

func (l *lockoutTracker) pruneLocked(email string, now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.failures[email][:0]
	for _, t := range l.failures[email] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, email)
		return
	}
	l.failures[email] = kept
}
