package auth

import (
	"testing"
	"time"
)

func TestSessionExpires(t *testing.T) {
	m := NewManager()
	_, key, err := m.Register("bot_runner01")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, token, err := m.Login("bot_runner01", key)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, _, ok := m.resolveSessionLocked(token, time.Now().Add(31*24*time.Hour)); ok {
		t.Fatalf("expected session to be expired after TTL")
	}
	if _, _, ok := m.resolveSessionLocked(token, time.Now()); ok {
		t.Fatalf("expected expired session to be deleted")
	}
}

func TestSessionTTLSlides(t *testing.T) {
	m := NewManager()
	_, key, err := m.Register("bot_runner01")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, token, err := m.Login("bot_runner01", key)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// each resolve refreshes the expiry, so stepping forward in sub-TTL
	// increments keeps the session alive past the original deadline
	now := time.Now()
	for i := 0; i < 3; i++ {
		now = now.Add(29 * 24 * time.Hour)
		if _, _, ok := m.resolveSessionLocked(token, now); !ok {
			t.Fatalf("expected refreshed session to stay valid at step %d", i)
		}
	}
}
