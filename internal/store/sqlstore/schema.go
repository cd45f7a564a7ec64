package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dalgonaburger/stageboard/internal/stage"
)

func (s *Store) schema() []string {
	logID := "record_id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.postgres() {
		logID = "record_id BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS stages (
			stage_id INTEGER PRIMARY KEY,
			code VARCHAR(8) NOT NULL UNIQUE,
			next_stage_id INTEGER NULL REFERENCES stages(stage_id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(64) PRIMARY KEY,
			profile_image INTEGER NOT NULL DEFAULT 0,
			created_at_unix BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_stage_progress (
			user_id VARCHAR(64) NOT NULL REFERENCES users(user_id),
			stage_id INTEGER NOT NULL REFERENCES stages(stage_id),
			unlocked BOOLEAN NOT NULL DEFAULT FALSE,
			cleared BOOLEAN NOT NULL DEFAULT FALSE,
			best_time_ms BIGINT NULL,
			best_length BIGINT NULL,
			improved_at_unix BIGINT NULL,
			updated_at_unix BIGINT NOT NULL,
			PRIMARY KEY (user_id, stage_id)
		)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			` + logID + `,
			user_id VARCHAR(64) NOT NULL REFERENCES users(user_id),
			stage_code VARCHAR(8) NOT NULL,
			length_used BIGINT NOT NULL,
			time_ms BIGINT NOT NULL,
			recorded_at_unix BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_stage_time ON user_stage_progress(stage_id, best_time_ms, improved_at_unix)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_stage_length ON user_stage_progress(stage_id, best_length, improved_at_unix)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_user ON run_logs(user_id, recorded_at_unix)`,
	}
}

// Migrate creates the tables if missing and seeds the stage catalog. It is
// safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context, stages []stage.Stage) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return s.seedStages(ctx, stages)
}

// seedStages inserts stages without successors first so the self reference
// never points at a missing row, then links the chains.
func (s *Store) seedStages(ctx context.Context, stages []stage.Stage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed stages: %w", err)
	}
	defer tx.Rollback()

	insert := tx.Rebind(`INSERT INTO stages (stage_id, code) VALUES (?, ?) ON CONFLICT (stage_id) DO NOTHING`)
	for _, st := range stages {
		if _, err := tx.ExecContext(ctx, insert, st.ID, st.Code); err != nil {
			return fmt.Errorf("seed stage %s: %w", st.Code, err)
		}
	}
	link := tx.Rebind(`UPDATE stages SET next_stage_id = ? WHERE stage_id = ?`)
	for _, st := range stages {
		var next sql.NullInt64
		if st.NextID != nil {
			next = sql.NullInt64{Int64: int64(*st.NextID), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, link, next, st.ID); err != nil {
			return fmt.Errorf("link stage %s: %w", st.Code, err)
		}
	}
	return tx.Commit()
}

type stageRow struct {
	ID     int           `db:"stage_id"`
	Code   string        `db:"code"`
	NextID sql.NullInt64 `db:"next_stage_id"`
}

// LoadCatalog reads the seeded stages back into a catalog.
func (s *Store) LoadCatalog(ctx context.Context) (*stage.Catalog, error) {
	var rows []stageRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT stage_id, code, next_stage_id FROM stages ORDER BY stage_id`); err != nil {
		return nil, wrap("load stages", err)
	}
	stages := make([]stage.Stage, 0, len(rows))
	for _, r := range rows {
		st := stage.Stage{ID: r.ID, Code: r.Code}
		if r.NextID.Valid {
			next := int(r.NextID.Int64)
			st.NextID = &next
		}
		stages = append(stages, st)
	}
	return stage.NewCatalog(stages)
}
