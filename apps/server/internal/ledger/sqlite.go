package ledger

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"blackjack-lite/apps/server/internal/codec"

	_ "modernc.org/sqlite"
)

const defaultLocalDBName = "blackjack_local.db"

// SQLiteService is the single-binary deployment backend. One writer
// connection, WAL journal.
type SQLiteService struct {
	db          *sql.DB
	recentLimit int
	savedLimit  int
}

func NewSQLiteServiceFromEnv() (*SQLiteService, error) {
	dbPath, err := ledgerLocalDatabasePathFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSQLiteService(dbPath)
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSQLiteLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteService{
		db:          db,
		recentLimit: envIntOrDefault("EVAL_RECENT_LIMIT", defaultRecentLimit),
		savedLimit:  envIntOrDefault("EVAL_SAVED_LIMIT", defaultSavedLimit),
	}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) AppendLiveEvent(suiteID, episodeID string, env *codec.ServerEnvelope, encoded []byte) {
	if strings.TrimSpace(episodeID) == "" || env == nil {
		return
	}
	if encoded == nil {
		raw, err := json.Marshal(env)
		if err != nil {
			log.Printf("[Ledger] marshal live event failed: episode=%s err=%v", episodeID, err)
			return
		}
		encoded = raw
	}

	payloadB64 := base64.StdEncoding.EncodeToString(encoded)
	eventType := codec.PayloadType(env)
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO episode_event_stream (
    source, suite_id, episode_id, seq, event_type, envelope_b64, server_ts_ms, created_at_ms
)
VALUES ('live', ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, suite_id, episode_id, seq) DO NOTHING
`, suiteID, episodeID, int64(env.ServerSeq), eventType, payloadB64, nullableInt64(env.ServerTsMs), nowMs)
	if err != nil {
		log.Printf("[Ledger] append live event failed: episode=%s seq=%d err=%v", episodeID, env.ServerSeq, err)
	}
}

func (s *SQLiteService) UpsertEpisodeHistory(runnerID uint64, episodeID string, playedAt time.Time, summary map[string]any) {
	s.upsertEpisodeHistoryInternal(runnerID, episodeID, playedAt, summary, nil)
}

func (s *SQLiteService) UpsertEpisodeHistoryWithEvents(
	runnerID uint64,
	episodeID string,
	playedAt time.Time,
	summary map[string]any,
	events []EventItem,
) {
	var tapeBlob []byte
	if len(events) > 0 {
		raw, err := json.Marshal(events)
		if err != nil {
			log.Printf("[Ledger] marshal episode tape failed: runner=%d episode=%s err=%v", runnerID, episodeID, err)
		} else {
			tapeBlob = raw
		}
	}
	s.upsertEpisodeHistoryInternal(runnerID, episodeID, playedAt, summary, tapeBlob)
}

func (s *SQLiteService) upsertEpisodeHistoryInternal(
	runnerID uint64,
	episodeID string,
	playedAt time.Time,
	summary map[string]any,
	tapeBlob []byte,
) {
	if runnerID == 0 || strings.TrimSpace(episodeID) == "" {
		return
	}
	if playedAt.IsZero() {
		playedAt = time.Now().UTC()
	}
	if summary == nil {
		summary = map[string]any{}
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		log.Printf("[Ledger] marshal episode summary failed: runner=%d episode=%s err=%v", runnerID, episodeID, err)
		return
	}

	playedAtMs := playedAt.UTC().UnixMilli()
	nowMs := time.Now().UTC().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("[Ledger] begin episode history tx failed: runner=%d episode=%s err=%v", runnerID, episodeID, err)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO eval_episode_history (
    runner_id, source, episode_id, played_at_ms, summary_json, tape_blob, is_saved, saved_at_ms, created_at_ms, updated_at_ms
)
VALUES (?, 'live', ?, ?, ?, ?, 0, NULL, ?, ?)
ON CONFLICT (runner_id, source, episode_id) DO UPDATE
SET
    played_at_ms = excluded.played_at_ms,
    summary_json = excluded.summary_json,
    tape_blob = COALESCE(excluded.tape_blob, eval_episode_history.tape_blob),
    updated_at_ms = excluded.updated_at_ms
`, runnerID, episodeID, playedAtMs, string(summaryRaw), nullableBytes(tapeBlob), nowMs, nowMs)
	if err != nil {
		log.Printf("[Ledger] upsert episode history failed: runner=%d episode=%s err=%v", runnerID, episodeID, err)
		return
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM eval_episode_history
WHERE runner_id = ?
  AND source = 'live'
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM eval_episode_history
      WHERE runner_id = ?
        AND source = 'live'
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, runnerID, runnerID, s.recentLimit)
		if err != nil {
			log.Printf("[Ledger] trim episode history failed: runner=%d err=%v", runnerID, err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[Ledger] commit episode history failed: runner=%d episode=%s err=%v", runnerID, episodeID, err)
	}
}

func (s *SQLiteService) UpsertReplayEpisode(
	ctx context.Context,
	runnerID uint64,
	episodeID string,
	events []EventItem,
	summary map[string]any,
) error {
	if runnerID == 0 || strings.TrimSpace(episodeID) == "" {
		return ErrNotFound
	}
	if len(events) == 0 {
		return fmt.Errorf("events is required")
	}
	if summary == nil {
		summary = map[string]any{}
	}
	if _, ok := summary["event_count"]; !ok {
		summary["event_count"] = len(events)
	}
	summaryRaw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	nowMs := time.Now().UTC().UnixMilli()
	for _, e := range events {
		if e.EventType == "" {
			e.EventType = "unknown"
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO episode_event_stream (
    source, suite_id, episode_id, seq, event_type, envelope_b64, server_ts_ms, created_at_ms
)
VALUES ('replay', '', ?, ?, ?, ?, ?, ?)
ON CONFLICT (source, suite_id, episode_id, seq) DO UPDATE
SET
    event_type = excluded.event_type,
    envelope_b64 = excluded.envelope_b64,
    server_ts_ms = excluded.server_ts_ms
`, episodeID, int64(e.Seq), e.EventType, e.EnvelopeB64, nullableInt64Ptr(e.ServerTsMs), nowMs)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO eval_episode_history (
    runner_id, source, episode_id, played_at_ms, summary_json, is_saved, saved_at_ms, created_at_ms, updated_at_ms
)
VALUES (?, 'replay', ?, ?, ?, 0, NULL, ?, ?)
ON CONFLICT (runner_id, source, episode_id) DO UPDATE
SET
    played_at_ms = excluded.played_at_ms,
    summary_json = excluded.summary_json,
    updated_at_ms = excluded.updated_at_ms
`, runnerID, episodeID, nowMs, string(summaryRaw), nowMs, nowMs)
	if err != nil {
		return err
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM eval_episode_history
WHERE runner_id = ?
  AND source = 'replay'
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM eval_episode_history
      WHERE runner_id = ?
        AND source = 'replay'
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, runnerID, runnerID, s.recentLimit)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteService) ListRecent(ctx context.Context, runnerID uint64, source Source, limit int) ([]HistoryItem, error) {
	if runnerID == 0 {
		return []HistoryItem{}, nil
	}
	if !isAuditSource(source) {
		return nil, fmt.Errorf("invalid source %q", source)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT episode_id, source, played_at_ms, summary_json, is_saved, saved_at_ms, updated_at_ms
FROM eval_episode_history
WHERE runner_id = ?
  AND source = ?
ORDER BY played_at_ms DESC, id DESC
LIMIT ?
`, runnerID, string(source), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]HistoryItem, 0, limit)
	for rows.Next() {
		var item HistoryItem
		var sourceRaw string
		var playedAtMs int64
		var summaryRaw []byte
		var isSaved int64
		var savedAtMs sql.NullInt64
		var updatedAtMs int64
		if err := rows.Scan(&item.EpisodeID, &sourceRaw, &playedAtMs, &summaryRaw, &isSaved, &savedAtMs, &updatedAtMs); err != nil {
			return nil, err
		}
		item.Source = Source(sourceRaw)
		item.PlayedAt = time.UnixMilli(playedAtMs).UTC()
		item.IsSaved = isSaved == 1
		if savedAtMs.Valid {
			t := time.UnixMilli(savedAtMs.Int64).UTC()
			item.SavedAt = &t
		}
		item.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
		if len(summaryRaw) > 0 {
			_ = json.Unmarshal(summaryRaw, &item.Summary)
		}
		if item.Summary == nil {
			item.Summary = map[string]any{}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteService) GetEpisodeEvents(ctx context.Context, runnerID uint64, source Source, episodeID string) ([]EventItem, error) {
	if runnerID == 0 || strings.TrimSpace(episodeID) == "" {
		return nil, ErrNotFound
	}
	if !isAuditSource(source) {
		return nil, fmt.Errorf("invalid source %q", source)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var tapeBlob []byte
	err := s.db.QueryRowContext(ctx, `
SELECT tape_blob
FROM eval_episode_history
WHERE runner_id = ?
  AND source = ?
  AND episode_id = ?
`, runnerID, string(source), episodeID).Scan(&tapeBlob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(tapeBlob) > 0 {
		var events []EventItem
		if err := json.Unmarshal(tapeBlob, &events); err == nil && len(events) > 0 {
			return events, nil
		}
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT seq, event_type, envelope_b64, server_ts_ms
FROM episode_event_stream
WHERE source = ?
  AND episode_id = ?
ORDER BY seq ASC
`, string(source), episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]EventItem, 0, 64)
	for rows.Next() {
		var e EventItem
		var seq int64
		var serverTs sql.NullInt64
		if err := rows.Scan(&seq, &e.EventType, &e.EnvelopeB64, &serverTs); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		if serverTs.Valid {
			v := serverTs.Int64
			e.ServerTsMs = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

func (s *SQLiteService) SetSaved(ctx context.Context, runnerID uint64, source Source, episodeID string, saved bool) error {
	if runnerID == 0 || strings.TrimSpace(episodeID) == "" {
		return ErrNotFound
	}
	if !isAuditSource(source) {
		return fmt.Errorf("invalid source %q", source)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `
SELECT is_saved
FROM eval_episode_history
WHERE runner_id = ?
  AND source = ?
  AND episode_id = ?
`, runnerID, string(source), episodeID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if (current == 1) == saved {
		return tx.Commit()
	}

	nowMs := time.Now().UTC().UnixMilli()
	if saved {
		var savedCount int
		if err := tx.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM eval_episode_history
WHERE runner_id = ?
  AND source = ?
  AND is_saved = 1
`, runnerID, string(source)).Scan(&savedCount); err != nil {
			return err
		}
		if savedCount >= s.savedLimit {
			return ErrSavedLimitReach
		}
		_, err := tx.ExecContext(ctx, `
UPDATE eval_episode_history
SET is_saved = 1,
    saved_at_ms = ?,
    updated_at_ms = ?
WHERE runner_id = ?
  AND source = ?
  AND episode_id = ?
`, nowMs, nowMs, runnerID, string(source), episodeID)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
UPDATE eval_episode_history
SET is_saved = 0,
    saved_at_ms = NULL,
    updated_at_ms = ?
WHERE runner_id = ?
  AND source = ?
  AND episode_id = ?
`, nowMs, runnerID, string(source), episodeID)
	if err != nil {
		return err
	}

	if s.recentLimit > 0 {
		_, err = tx.ExecContext(ctx, `
DELETE FROM eval_episode_history
WHERE runner_id = ?
  AND source = ?
  AND is_saved = 0
  AND id IN (
      SELECT id
      FROM eval_episode_history
      WHERE runner_id = ?
        AND source = ?
        AND is_saved = 0
      ORDER BY played_at_ms DESC, id DESC
      LIMIT -1 OFFSET ?
  )
`, runnerID, string(source), runnerID, string(source), s.recentLimit)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func ensureSQLiteLedgerSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS episode_event_stream (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    suite_id TEXT NOT NULL DEFAULT '',
    episode_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    envelope_b64 TEXT NOT NULL DEFAULT '',
    server_ts_ms INTEGER,
    created_at_ms INTEGER NOT NULL,
    UNIQUE (source, suite_id, episode_id, seq)
)`,
		`CREATE INDEX IF NOT EXISTS idx_episode_event_stream_episode_seq ON episode_event_stream(source, episode_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_episode_event_stream_created_at ON episode_event_stream(created_at_ms)`,
		`
CREATE TABLE IF NOT EXISTS eval_episode_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    runner_id INTEGER NOT NULL,
    source TEXT NOT NULL,
    episode_id TEXT NOT NULL,
    played_at_ms INTEGER NOT NULL,
    summary_json TEXT NOT NULL DEFAULT '{}',
    tape_blob BLOB,
    is_saved INTEGER NOT NULL DEFAULT 0,
    saved_at_ms INTEGER,
    created_at_ms INTEGER NOT NULL,
    updated_at_ms INTEGER NOT NULL,
    UNIQUE (runner_id, source, episode_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_episode_history_recent ON eval_episode_history(runner_id, source, played_at_ms DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_episode_history_saved ON eval_episode_history(runner_id, source, is_saved, saved_at_ms DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_eval_episode_history_trim ON eval_episode_history(runner_id, source, played_at_ms ASC, id ASC)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func ledgerLocalDatabasePathFromEnv() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("LEDGER_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("LOCAL_DATABASE_PATH")),
	}
	for _, candidate := range candidates {
		if candidate != "" {
			return filepath.Clean(candidate), nil
		}
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "BlackjackLite", defaultLocalDBName), nil
}

func nullableInt64Ptr(v *int64) any {
	if v == nil || *v <= 0 {
		return nil
	}
	return *v
}
