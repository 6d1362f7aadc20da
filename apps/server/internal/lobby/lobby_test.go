package lobby

import (
	"testing"

	"blackjack-lite/apps/server/internal/suite"
)

func newTestLobby() *Lobby {
	return New(nil, suite.NewMemoryService(), suite.BuiltinRegistry())
}

func TestAttachCreatesThenResumes(t *testing.T) {
	l := newTestLobby()
	defer l.Close()

	sink := func(data []byte) {}

	s1, resumed := l.Attach(100001, "bot_runner01", sink)
	if resumed {
		t.Fatalf("first attach must create, not resume")
	}
	if s1 == nil || s1.RunnerID != 100001 {
		t.Fatalf("unexpected session %+v", s1)
	}

	s2, resumed := l.Attach(100001, "bot_runner01", sink)
	if !resumed {
		t.Fatalf("second attach must resume")
	}
	if s2 != s1 {
		t.Fatalf("resume returned a different session")
	}

	s3, resumed := l.Attach(100002, "bot_runner02", sink)
	if resumed || s3 == s1 {
		t.Fatalf("other runner must get its own session")
	}
	if l.SessionCount() != 2 {
		t.Fatalf("expected 2 sessions, got %d", l.SessionCount())
	}
}

func TestAttachReplacesStoppedSession(t *testing.T) {
	l := newTestLobby()
	defer l.Close()

	s1, _ := l.Attach(100001, "bot_runner01", func(data []byte) {})
	s1.Stop()

	s2, resumed := l.Attach(100001, "bot_runner01", func(data []byte) {})
	if resumed {
		t.Fatalf("attach after stop must create a fresh session")
	}
	if s2 == s1 || s2.ID == s1.ID {
		t.Fatalf("expected a new session, got the stopped one back")
	}
}

func TestConnLostKeepsSessionAlive(t *testing.T) {
	l := newTestLobby()
	defer l.Close()

	s, _ := l.Attach(100001, "bot_runner01", func(data []byte) {})
	l.ConnLost(100001)

	if s.IsClosed() {
		t.Fatalf("conn loss must not close the session")
	}
	if got := l.Get(100001); got != s {
		t.Fatalf("session should still be registered")
	}

	// unknown runner is a no-op
	l.ConnLost(999999)
}

func TestCloseStopsSessions(t *testing.T) {
	l := newTestLobby()

	s, _ := l.Attach(100001, "bot_runner01", func(data []byte) {})
	l.Close()

	if !s.IsClosed() {
		t.Fatalf("close must stop every session")
	}
	if l.SessionCount() != 0 {
		t.Fatalf("expected empty registry after close")
	}
}
