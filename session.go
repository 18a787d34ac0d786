package blogpage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/livefir/blogpage/internal/session"
)

const (
	sessionCookieName = "blogpage-session"
	sessionHeaderName = "X-Blogpage-Session"
)

// getSessionID extracts session ID from cookie or header. It reports true when a
// new ID had to be generated.
func getSessionID(r *http.Request) (string, bool) {
	// Try cookie first
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, false
	}

	// Try header
	if sessionID := r.Header.Get(sessionHeaderName); sessionID != "" {
		return sessionID, false
	}

	return session.NewID(), true
}

func sessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// loadPageState reads the saved state of page. A nil state means none was saved.
func loadPageState(ctx context.Context, store session.Store, sessionID, page string) (*PageState, error) {
	data, ok, err := store.Load(ctx, sessionID, page)
	if err != nil {
		return nil, fmt.Errorf("failed to load page state: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var state PageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode page state: %w", err)
	}
	return &state, nil
}

func savePageState(ctx context.Context, store session.Store, sessionID, page string, state PageState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode page state: %w", err)
	}
	if err := store.Save(ctx, sessionID, page, data); err != nil {
		return fmt.Errorf("failed to save page state: %w", err)
	}
	return nil
}

// pageLocks serialises load-modify-save of one page within one session
type pageLocks struct {
	mu    sync.Mutex
	locks map[string]*pageLock
}

type pageLock struct {
	mu   sync.Mutex
	refs int
}

func newPageLocks() *pageLocks {
	return &pageLocks{locks: make(map[string]*pageLock)}
}

// lock blocks until the page is free and returns its unlock function
func (l *pageLocks) lock(sessionID, page string) func() {
	key := sessionID + "\x00" + page

	l.mu.Lock()
	pl, ok := l.locks[key]
	if !ok {
		pl = &pageLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()
	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
