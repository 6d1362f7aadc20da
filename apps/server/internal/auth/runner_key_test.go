package auth

import (
	"errors"
	"testing"
)

func TestRegisterAndLogin(t *testing.T) {
	m := NewManager()

	runnerID, key, err := m.Register("bot_runner01")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if runnerID == 0 {
		t.Fatalf("expected runner id")
	}
	if key == "" {
		t.Fatalf("expected non-empty runner key")
	}

	loginID, token, err := m.Login("bot_runner01", key)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loginID != runnerID {
		t.Fatalf("expected same runner id after login, got %d and %d", runnerID, loginID)
	}
	if token == "" {
		t.Fatalf("expected session token")
	}

	resolvedID, name, ok := m.ResolveSession(token)
	if !ok {
		t.Fatalf("expected valid session")
	}
	if resolvedID != runnerID {
		t.Fatalf("expected same runner id, got %d and %d", runnerID, resolvedID)
	}
	if name != "bot_runner01" {
		t.Fatalf("expected name bot_runner01, got %s", name)
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Register("bot_runner01"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, _, err := m.Register("Bot_Runner01"); !errors.Is(err, ErrRunnerNameTaken) {
		t.Fatalf("expected ErrRunnerNameTaken, got %v", err)
	}
}

func TestRegisterRejectsBadName(t *testing.T) {
	m := NewManager()
	for _, name := range []string{"", "ab", "has space", "-leading", "way_too_long_name_over_thirty_two_chars"} {
		if _, _, err := m.Register(name); !errors.Is(err, ErrInvalidRunnerName) {
			t.Fatalf("expected ErrInvalidRunnerName for %q, got %v", name, err)
		}
	}
}

func TestLoginRejectsWrongKey(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Register("bot_runner01"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, _, err := m.Login("bot_runner01", "wrong-key"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := m.Login("nobody", "wrong-key"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown runner, got %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	m := NewManager()
	_, key, err := m.Register("bot_runner01")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, token, err := m.Login("bot_runner01", key)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	m.Logout(token)
	if _, _, ok := m.ResolveSession(token); ok {
		t.Fatalf("expected logged out token to be invalid")
	}
}
