package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"blackjack-lite/apps/server/internal/codec"
	"blackjack-lite/replay"
)

func newTestService(t *testing.T) *SQLiteService {
	t.Helper()
	svc, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func testTape(n int) []EventItem {
	items := make([]EventItem, 0, n)
	for i := 1; i <= n; i++ {
		ts := int64(1700000000000 + i)
		items = append(items, EventItem{
			Seq:         uint64(i),
			EventType:   "statePrompt",
			EnvelopeB64: "e30=",
			ServerTsMs:  &ts,
		})
	}
	return items
}

func TestHistoryTapeRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	playedAt := time.Now().UTC()
	svc.UpsertEpisodeHistoryWithEvents(100001, "sess_t_e1", playedAt, map[string]any{
		"reward": -0.1,
		"turns":  2,
	}, testTape(3))

	events, err := svc.GetEpisodeEvents(ctx, 100001, SourceLive, "sess_t_e1")
	if err != nil {
		t.Fatalf("GetEpisodeEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Seq != 1 || events[0].EventType != "statePrompt" || events[0].ServerTsMs == nil {
		t.Fatalf("lost event fields: %+v", events[0])
	}

	items, err := svc.ListRecent(ctx, 100001, SourceLive, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 history item, got %d", len(items))
	}
	if items[0].EpisodeID != "sess_t_e1" || items[0].IsSaved {
		t.Fatalf("unexpected item %+v", items[0])
	}
	if got, ok := items[0].Summary["reward"].(float64); !ok || got != -0.1 {
		t.Fatalf("summary did not round-trip: %+v", items[0].Summary)
	}

	// other runners see nothing
	if _, err := svc.GetEpisodeEvents(ctx, 100002, SourceLive, "sess_t_e1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign runner, got %v", err)
	}
}

func TestEventsFallBackToStream(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// history row without an embedded tape; events only in the stream
	for seq := 1; seq <= 2; seq++ {
		env := codec.Wrap("sess_t_e2", uint64(seq), &replay.StatePromptEvent{Message: "your move"})
		svc.AppendLiveEvent("", "sess_t_e2", env, nil)
	}
	svc.UpsertEpisodeHistory(100001, "sess_t_e2", time.Now().UTC(), map[string]any{"turns": 1})

	events, err := svc.GetEpisodeEvents(ctx, 100001, SourceLive, "sess_t_e2")
	if err != nil {
		t.Fatalf("GetEpisodeEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 streamed events, got %d", len(events))
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("events out of order: %+v", events)
	}
	if events[0].EventType != "statePrompt" {
		t.Fatalf("expected statePrompt, got %s", events[0].EventType)
	}

	// duplicate appends are ignored
	env := codec.Wrap("sess_t_e2", 2, &replay.StatePromptEvent{Message: "dup"})
	svc.AppendLiveEvent("", "sess_t_e2", env, nil)
	events, err = svc.GetEpisodeEvents(ctx, 100001, SourceLive, "sess_t_e2")
	if err != nil || len(events) != 2 {
		t.Fatalf("duplicate seq must not grow the stream: %d, %v", len(events), err)
	}
}

func TestSavedPinningAndTrim(t *testing.T) {
	svc := newTestService(t)
	svc.recentLimit = 3
	svc.savedLimit = 2
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("sess_t_e%d", i)
		svc.UpsertEpisodeHistory(100001, id, base.Add(time.Duration(i)*time.Minute), nil)
	}

	if err := svc.SetSaved(ctx, 100001, SourceLive, "sess_t_e1", true); err != nil {
		t.Fatalf("SetSaved: %v", err)
	}

	// three more pushes; unsaved rows beyond the limit fall off, saved stays
	for i := 4; i <= 6; i++ {
		id := fmt.Sprintf("sess_t_e%d", i)
		svc.UpsertEpisodeHistory(100001, id, base.Add(time.Duration(i)*time.Minute), nil)
	}

	items, err := svc.ListRecent(ctx, 100001, SourceLive, 50)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	got := map[string]bool{}
	for _, item := range items {
		got[item.EpisodeID] = item.IsSaved
	}
	if len(items) != 4 {
		t.Fatalf("expected saved + 3 recent, got %d: %v", len(items), got)
	}
	for _, id := range []string{"sess_t_e4", "sess_t_e5", "sess_t_e6"} {
		if _, ok := got[id]; !ok {
			t.Fatalf("recent episode %s missing: %v", id, got)
		}
	}
	if saved, ok := got["sess_t_e1"]; !ok || !saved {
		t.Fatalf("saved episode must survive the trim: %v", got)
	}
	if _, ok := got["sess_t_e2"]; ok {
		t.Fatalf("unsaved old episode should be trimmed: %v", got)
	}

	// saved limit enforced
	if err := svc.SetSaved(ctx, 100001, SourceLive, "sess_t_e5", true); err != nil {
		t.Fatalf("SetSaved second: %v", err)
	}
	if err := svc.SetSaved(ctx, 100001, SourceLive, "sess_t_e6", true); !errors.Is(err, ErrSavedLimitReach) {
		t.Fatalf("expected ErrSavedLimitReach, got %v", err)
	}

	// unsave clears the pin
	if err := svc.SetSaved(ctx, 100001, SourceLive, "sess_t_e1", false); err != nil {
		t.Fatalf("unsave: %v", err)
	}
	items, _ = svc.ListRecent(ctx, 100001, SourceLive, 50)
	for _, item := range items {
		if item.EpisodeID == "sess_t_e1" && item.IsSaved {
			t.Fatalf("unsave did not clear is_saved")
		}
	}

	if err := svc.SetSaved(ctx, 100001, SourceLive, "no_such", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertReplayEpisode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.UpsertReplayEpisode(ctx, 100001, "rep_1", nil, nil); err == nil {
		t.Fatalf("expected error for empty events")
	}

	if err := svc.UpsertReplayEpisode(ctx, 100001, "rep_1", testTape(2), map[string]any{"seed": 7}); err != nil {
		t.Fatalf("UpsertReplayEpisode: %v", err)
	}

	events, err := svc.GetEpisodeEvents(ctx, 100001, SourceReplay, "rep_1")
	if err != nil {
		t.Fatalf("GetEpisodeEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	items, err := svc.ListRecent(ctx, 100001, SourceReplay, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListRecent replay: %d, %v", len(items), err)
	}
	if count, ok := items[0].Summary["event_count"].(float64); !ok || count != 2 {
		t.Fatalf("expected event_count 2, got %+v", items[0].Summary)
	}

	// replay rows never leak into the live listing
	liveItems, err := svc.ListRecent(ctx, 100001, SourceLive, 10)
	if err != nil || len(liveItems) != 0 {
		t.Fatalf("live listing must be empty: %d, %v", len(liveItems), err)
	}
}
