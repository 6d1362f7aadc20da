// Package lobby tracks one live session per runner and reaps idle ones.
package lobby

import (
	"log"
	"sync"
	"time"

	"blackjack-lite/apps/server/internal/ledger"
	"blackjack-lite/apps/server/internal/session"
	"blackjack-lite/apps/server/internal/suite"

	"github.com/google/uuid"
)

const (
	// sessionIdleTTL is how long a session with no connection and no live
	// episode survives before the janitor stops it.
	sessionIdleTTL  = 10 * time.Minute
	janitorInterval = time.Minute
)

// Lobby manages runner sessions. A runner has at most one session; a
// reconnect reattaches to it instead of opening a second one.
type Lobby struct {
	mu       sync.Mutex
	sessions map[uint64]*session.Session // keyed by runner ID

	ledger   ledger.Service
	progress suite.Service
	suites   *suite.Registry

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a lobby and starts its idle-session janitor.
func New(ledgerService ledger.Service, progressService suite.Service, registry *suite.Registry) *Lobby {
	l := &Lobby{
		sessions: make(map[uint64]*session.Session),
		ledger:   ledgerService,
		progress: progressService,
		suites:   registry,
	}
	l.done = make(chan struct{})
	go l.janitor()
	return l
}

// Attach binds a runner's connection to its session, creating one if none is
// live. The second return reports whether an existing session was reattached;
// the caller then submits EventConnResume once its greeting is on the wire.
func (l *Lobby) Attach(runnerID uint64, runnerName string, send func(data []byte)) (*session.Session, bool) {
	l.mu.Lock()
	existing := l.sessions[runnerID]
	if existing != nil && !existing.IsClosed() {
		l.mu.Unlock()
		existing.SetSink(send)
		log.Printf("[Lobby] Runner %d reattached to session %s", runnerID, existing.ID)
		return existing, true
	}

	sessionID := "sess_" + uuid.NewString()[:8]
	s := session.New(sessionID, runnerID, runnerName, send, l.ledger, l.progress, l.suites)
	l.sessions[runnerID] = s
	l.mu.Unlock()

	log.Printf("[Lobby] Runner %d (%s) opened session %s", runnerID, runnerName, sessionID)
	return s, false
}

// ConnLost marks the runner's session offline. The session stays alive so an
// in-flight episode survives a reconnect.
func (l *Lobby) ConnLost(runnerID uint64) {
	l.mu.Lock()
	s := l.sessions[runnerID]
	l.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.SubmitEvent(session.Event{Type: session.EventConnLost, Timestamp: time.Now()}); err != nil {
		return
	}
	log.Printf("[Lobby] Runner %d disconnected from session %s", runnerID, s.ID)
}

// Get returns the runner's session, or nil.
func (l *Lobby) Get(runnerID uint64) *session.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[runnerID]
}

// SessionCount reports how many sessions are registered, closed or not.
func (l *Lobby) SessionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Lobby) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.reapIdle()
		case <-l.done:
			return
		}
	}
}

func (l *Lobby) reapIdle() {
	l.mu.Lock()
	var stale []*session.Session
	for runnerID, s := range l.sessions {
		if s.IsIdleFor(sessionIdleTTL) {
			stale = append(stale, s)
			delete(l.sessions, runnerID)
		}
	}
	l.mu.Unlock()

	for _, s := range stale {
		s.Stop()
		log.Printf("[Lobby] Reaped idle session %s (runner %d)", s.ID, s.RunnerID)
	}
}

// Close stops the janitor and every session.
func (l *Lobby) Close() {
	l.stopOnce.Do(func() {
		close(l.done)
	})

	l.mu.Lock()
	all := make([]*session.Session, 0, len(l.sessions))
	for runnerID, s := range l.sessions {
		all = append(all, s)
		delete(l.sessions, runnerID)
	}
	l.mu.Unlock()

	for _, s := range all {
		s.Stop()
	}
}
