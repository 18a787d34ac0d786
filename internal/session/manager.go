package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists per-page state for browser sessions. State is opaque to the store.
type Store interface {
	Load(ctx context.Context, sessionID, page string) ([]byte, bool, error)
	Save(ctx context.Context, sessionID, page string, state []byte) error
	Delete(ctx context.Context, sessionID string) error
	CleanupExpired(ctx context.Context) (int, error)
	Close() error
}

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Session represents a browser session
type Session struct {
	ID         string
	Pages      map[string][]byte
	CreatedAt  time.Time
	LastAccess time.Time
}

// Manager is an in-memory Store
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ttl      time.Duration
}

// NewManager creates a new session manager
func NewManager(ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.NewString()
}

// Load returns the stored state of a page, refreshing the session's last access
func (m *Manager) Load(_ context.Context, sessionID, page string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return nil, false, nil
	}

	// Check if session has expired
	if time.Since(session.LastAccess) > m.ttl {
		delete(m.sessions, sessionID)
		return nil, false, nil
	}

	session.LastAccess = time.Now()
	state, ok := session.Pages[page]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), state...), true, nil
}

// Save stores the state of a page, creating the session if needed
func (m *Manager) Save(_ context.Context, sessionID, page string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	session, exists := m.sessions[sessionID]
	if !exists {
		session = &Session{
			ID:        sessionID,
			Pages:     make(map[string][]byte),
			CreatedAt: now,
		}
		m.sessions[sessionID] = session
	}
	session.LastAccess = now
	session.Pages[page] = append([]byte(nil), state...)
	return nil
}

// Delete removes a session
func (m *Manager) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// CleanupExpired removes expired sessions
func (m *Manager) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	cutoff := time.Now().Add(-m.ttl)

	for sessionID, session := range m.sessions {
		if session.LastAccess.Before(cutoff) {
			delete(m.sessions, sessionID)
			count++
		}
	}

	return count, nil
}

// Close is a no-op for the in-memory store
func (m *Manager) Close() error {
	return nil
}
