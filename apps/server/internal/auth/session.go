package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrInvalidRunnerName  = errors.New("invalid runner name")
	ErrRunnerNameTaken    = errors.New("runner name already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var runnerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Manager provides in-memory runner/session management for single-binary
// deployment. It can be swapped to persistent storage without changing
// gateway contracts.
type Manager struct {
	mu sync.Mutex

	nextRunnerID  uint64
	sessionTTL    time.Duration
	sessions      map[string]sessionRecord // token -> runner
	runnersByID   map[uint64]runnerRecord  // runner -> profile
	runnersByName map[string]uint64        // normalized name -> runner
}

type sessionRecord struct {
	RunnerID  uint64
	ExpiresAt time.Time
}

type runnerRecord struct {
	RunnerID      uint64
	Name          string
	KeyHash       []byte
	LastLoginTime time.Time
}

func NewManager() *Manager {
	return &Manager{
		nextRunnerID:  100000, // start from a readable non-trivial range
		sessionTTL:    defaultSessionTTL,
		sessions:      make(map[string]sessionRecord),
		runnersByID:   make(map[uint64]runnerRecord),
		runnersByName: make(map[string]uint64),
	}
}

func normalizeRunnerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateRunnerName(name string) error {
	trimmed := strings.TrimSpace(name)
	if !runnerNamePattern.MatchString(trimmed) {
		return ErrInvalidRunnerName
	}
	return nil
}

func (m *Manager) issueSessionLocked(runnerID uint64, now time.Time) string {
	sessionToken := mustToken()
	m.sessions[sessionToken] = sessionRecord{
		RunnerID:  runnerID,
		ExpiresAt: now.Add(m.sessionTTL),
	}
	return sessionToken
}

func (m *Manager) resolveSessionLocked(token string, now time.Time) (runnerID uint64, name string, ok bool) {
	if token == "" {
		return 0, "", false
	}
	rec, exists := m.sessions[token]
	if !exists {
		return 0, "", false
	}
	if !now.Before(rec.ExpiresAt) {
		delete(m.sessions, token)
		return 0, "", false
	}
	rec.ExpiresAt = now.Add(m.sessionTTL)
	m.sessions[token] = rec

	profile := m.runnersByID[rec.RunnerID]
	return rec.RunnerID, profile.Name, true
}

// Register creates a new runner and returns its freshly generated key.
// Only the key hash is stored; the plaintext key is never recoverable.
func (m *Manager) Register(name string) (runnerID uint64, runnerKey string, err error) {
	if err = validateRunnerName(name); err != nil {
		return 0, "", err
	}

	normalized := normalizeRunnerName(name)
	runnerKey = mustToken()
	keyHash, err := bcrypt.GenerateFromPassword([]byte(runnerKey), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runnersByName[normalized]; exists {
		return 0, "", ErrRunnerNameTaken
	}

	m.nextRunnerID++
	runnerID = m.nextRunnerID
	m.runnersByID[runnerID] = runnerRecord{
		RunnerID: runnerID,
		Name:     normalized,
		KeyHash:  keyHash,
	}
	m.runnersByName[normalized] = runnerID

	return runnerID, runnerKey, nil
}

// Login validates a runner key and returns a fresh authenticated session.
func (m *Manager) Login(name, runnerKey string) (runnerID uint64, sessionToken string, err error) {
	normalized := normalizeRunnerName(name)
	if normalized == "" || runnerKey == "" {
		return 0, "", ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	runnerID, exists := m.runnersByName[normalized]
	if !exists {
		return 0, "", ErrInvalidCredentials
	}

	profile := m.runnersByID[runnerID]
	if len(profile.KeyHash) == 0 {
		return 0, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(profile.KeyHash, []byte(runnerKey)) != nil {
		return 0, "", ErrInvalidCredentials
	}

	now := time.Now()
	profile.LastLoginTime = now
	m.runnersByID[runnerID] = profile
	sessionToken = m.issueSessionLocked(runnerID, now)
	return runnerID, sessionToken, nil
}

// ResolveSession validates and refreshes a session token.
func (m *Manager) ResolveSession(token string) (runnerID uint64, name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveSessionLocked(token, time.Now())
}

// Logout invalidates a session token.
func (m *Manager) Logout(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func (m *Manager) Close() error {
	return nil
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
