package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/city-search/internal/app"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	gocache "github.com/patrickmn/go-cache"
)

const (
	cookieName = "citysearch"
	sessionKey = "sid"
)

// PageFactory builds the page for a new session id.
type PageFactory func(id string) *app.Page

// Sessions maps a browser cookie to that browser's Page. Pages idle for
// longer than the TTL are evicted and closed.
type Sessions struct {
	store   *sessions.CookieStore
	pages   *gocache.Cache
	newPage PageFactory
	metrics *observability.Metrics
	logger  *slog.Logger

	// live holds every page not yet closed, including expired pages the
	// janitor has not collected. Guarded by mu.
	mu   sync.Mutex
	live map[string]*app.Page
}

// NewSessions creates a session registry. An empty secret generates a
// random signing key, so cookies do not survive a restart.
func NewSessions(secret []byte, ttl time.Duration, newPage PageFactory, metrics *observability.Metrics, logger *slog.Logger) *Sessions {
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Sessions{
		store:   store,
		pages:   gocache.New(ttl, min(ttl, time.Minute)),
		newPage: newPage,
		metrics: metrics,
		logger:  logger,
		live:    make(map[string]*app.Page),
	}
	s.pages.OnEvicted(s.evicted)
	return s
}

// Page returns the caller's page, creating a session and page when the
// request carries none. created reports whether the page is new.
func (s *Sessions) Page(w http.ResponseWriter, r *http.Request) (page *app.Page, created bool, err error) {
	sess, err := s.store.Get(r, cookieName)
	if err != nil {
		s.logger.Debug("discarding unreadable session cookie", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := sess.Values[sessionKey].(string)
	if id != "" {
		if page, ok := s.touchLocked(id); ok {
			return page, false, nil
		}
	} else {
		id = uuid.NewString()
		sess.Values[sessionKey] = id
		if err := sess.Save(r, w); err != nil {
			return nil, false, fmt.Errorf("save session: %w", err)
		}
	}

	if old, ok := s.live[id]; ok {
		// Expired but not yet collected. The new page overwrites it in the
		// cache, so the janitor never reports it.
		s.closeLocked(id, old)
	}
	page = s.newPage(id)
	s.live[id] = page
	s.pages.SetDefault(id, page)
	s.metrics.SessionsActive.Inc()
	s.logger.Debug("session created", "session", id)
	return page, true, nil
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close closes every page and forgets all sessions.
func (s *Sessions) Close() {
	s.pages.Flush()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, page := range s.live {
		s.closeLocked(id, page)
	}
}

// evicted runs after go-cache has dropped id. The page is closed only if it
// is still the live page for id and was not stored again since.
func (s *Sessions) evicted(id string, v any) {
	page, ok := v.(*app.Page)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live[id] != page {
		return
	}
	if cur, ok := s.pages.Get(id); ok && cur == v {
		return
	}
	s.closeLocked(id, page)
	s.logger.Debug("session evicted", "session", id)
}

func (s *Sessions) closeLocked(id string, page *app.Page) {
	delete(s.live, id)
	page.Close()
	s.metrics.SessionsActive.Dec()
}

// touchLocked returns the page for id and restarts its expiry.
func (s *Sessions) touchLocked(id string) (*app.Page, bool) {
	v, ok := s.pages.Get(id)
	if !ok {
		return nil, false
	}
	page, ok := v.(*app.Page)
	if !ok || s.live[id] != page {
		return nil, false
	}
	s.pages.SetDefault(id, page)
	return page, true
}
