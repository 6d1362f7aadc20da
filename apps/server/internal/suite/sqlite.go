package suite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultLocalDBName = "blackjack_local.db"

type sqliteService struct {
	db *sql.DB
}

func NewSQLiteServiceFromEnv() (Service, string, error) {
	dbPath, err := suiteLocalDatabasePathFromEnv()
	if err != nil {
		return nil, "", err
	}
	service, err := NewSQLiteService(dbPath)
	if err != nil {
		return nil, "", err
	}
	return service, "sqlite", nil
}

func NewSQLiteService(dbPath string) (Service, error) {
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
	if err := ensureSQLiteSuiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqliteService{db: db}, nil
}

func (s *sqliteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteService) GetProgress(ctx context.Context, runnerID uint64, def *Suite) (*Progress, error) {
	if def == nil {
		return nil, fmt.Errorf("nil suite")
	}
	if runnerID == 0 {
		return defaultProgress(0, def), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	stages, err := s.readStages(ctx, runnerID, def.ID)
	if err != nil {
		return nil, err
	}
	return toProgress(runnerID, def, stages), nil
}

func (s *sqliteService) RecordEpisode(
	ctx context.Context,
	runnerID uint64,
	def *Suite,
	stageIndex int,
	res EpisodeResult,
) (*Progress, error) {
	if err := validateRecordArgs(runnerID, def, stageIndex); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stages, err := readStagesTx(ctx, tx, runnerID, def.ID)
	if err != nil {
		return nil, err
	}

	if stageIndex > computeHighestUnlocked(def, stages) {
		return nil, ErrStageLocked
	}

	st := stages[stageIndex]
	if st == nil {
		st = &storedStage{}
		stages[stageIndex] = st
	}
	now := time.Now().UTC()
	applyEpisode(st, &def.Stages[stageIndex], res, now)

	var clearedAtMs any
	if st.ClearedAtMs > 0 {
		clearedAtMs = st.ClearedAtMs
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO suite_progress (
    runner_id, suite_id, stage_index,
    episodes_played, delta_ev_total, reward_total, cleared_at_ms, updated_at_ms
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(runner_id, suite_id, stage_index) DO UPDATE SET
    episodes_played = excluded.episodes_played,
    delta_ev_total = excluded.delta_ev_total,
    reward_total = excluded.reward_total,
    cleared_at_ms = excluded.cleared_at_ms,
    updated_at_ms = excluded.updated_at_ms
`, runnerID, def.ID, stageIndex,
		st.EpisodesPlayed, st.DeltaEVTotal, st.RewardTotal, clearedAtMs, now.UnixMilli()); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return toProgress(runnerID, def, stages), nil
}

func (s *sqliteService) readStages(ctx context.Context, runnerID uint64, suiteID string) (map[int]*storedStage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stage_index, episodes_played, delta_ev_total, reward_total, cleared_at_ms, updated_at_ms
FROM suite_progress
WHERE runner_id = ?
  AND suite_id = ?
`, runnerID, suiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStages(rows)
}

func readStagesTx(ctx context.Context, tx *sql.Tx, runnerID uint64, suiteID string) (map[int]*storedStage, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT stage_index, episodes_played, delta_ev_total, reward_total, cleared_at_ms, updated_at_ms
FROM suite_progress
WHERE runner_id = ?
  AND suite_id = ?
`, runnerID, suiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStages(rows)
}

func scanStages(rows *sql.Rows) (map[int]*storedStage, error) {
	stages := make(map[int]*storedStage)
	for rows.Next() {
		var idx int
		var st storedStage
		var clearedAtMs sql.NullInt64
		var updatedAtMs int64
		if err := rows.Scan(&idx, &st.EpisodesPlayed, &st.DeltaEVTotal, &st.RewardTotal, &clearedAtMs, &updatedAtMs); err != nil {
			return nil, err
		}
		if clearedAtMs.Valid {
			st.ClearedAtMs = clearedAtMs.Int64
		}
		st.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
		stages[idx] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stages, nil
}

func ensureSQLiteSuiteSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS suite_progress (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    runner_id INTEGER NOT NULL,
    suite_id TEXT NOT NULL,
    stage_index INTEGER NOT NULL,
    episodes_played INTEGER NOT NULL DEFAULT 0,
    delta_ev_total REAL NOT NULL DEFAULT 0,
    reward_total REAL NOT NULL DEFAULT 0,
    cleared_at_ms INTEGER,
    updated_at_ms INTEGER NOT NULL,
    UNIQUE(runner_id, suite_id, stage_index)
)`)
	return err
}

func suiteLocalDatabasePathFromEnv() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("SUITE_LOCAL_DATABASE_PATH")),
		strings.TrimSpace(os.Getenv("AUTH_LOCAL_DATABASE_PATH")),
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
