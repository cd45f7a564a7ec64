package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

type tx struct {
	tx       *sqlx.Tx
	postgres bool
}

type progressRow struct {
	UserID         string        `db:"user_id"`
	StageID        int           `db:"stage_id"`
	Unlocked       bool          `db:"unlocked"`
	Cleared        bool          `db:"cleared"`
	BestTimeMS     sql.NullInt64 `db:"best_time_ms"`
	BestLength     sql.NullInt64 `db:"best_length"`
	ImprovedAtUnix sql.NullInt64 `db:"improved_at_unix"`
	UpdatedAtUnix  int64         `db:"updated_at_unix"`
}

const progressColumns = `user_id, stage_id, unlocked, cleared, best_time_ms, best_length, improved_at_unix, updated_at_unix`

func (r progressRow) record() progress.ProgressRecord {
	rec := progress.ProgressRecord{
		UserID:    r.UserID,
		StageID:   r.StageID,
		Unlocked:  r.Unlocked,
		Cleared:   r.Cleared,
		UpdatedAt: fromUnix(r.UpdatedAtUnix),
	}
	if r.BestTimeMS.Valid {
		v := r.BestTimeMS.Int64
		rec.BestTimeMS = &v
	}
	if r.BestLength.Valid {
		v := r.BestLength.Int64
		rec.BestLength = &v
	}
	if r.ImprovedAtUnix.Valid {
		t := fromUnix(r.ImprovedAtUnix.Int64)
		rec.ImprovedAt = &t
	}
	return rec
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*p), Valid: true}
}

// column maps a dimension onto its best-value column. Only these two names
// ever reach the query text.
func column(d progress.Dimension) (string, error) {
	switch d {
	case progress.ByTime:
		return "best_time_ms", nil
	case progress.ByLength:
		return "best_length", nil
	default:
		return "", fmt.Errorf("unknown rank dimension %d", int(d))
	}
}

func (t *tx) EnsureUser(ctx context.Context, userID string, now time.Time) error {
	q := t.tx.Rebind(`INSERT INTO users (user_id, profile_image, created_at_unix) VALUES (?, 0, ?) ON CONFLICT (user_id) DO NOTHING`)
	if _, err := t.tx.ExecContext(ctx, q, userID, toUnix(now)); err != nil {
		return wrap("ensure user", err)
	}
	return nil
}

func (t *tx) GetOrCreateProgress(ctx context.Context, userID string, stageID int, now time.Time) (progress.ProgressRecord, error) {
	insert := t.tx.Rebind(`INSERT INTO user_stage_progress (user_id, stage_id, unlocked, cleared, updated_at_unix)
		VALUES (?, ?, TRUE, FALSE, ?) ON CONFLICT (user_id, stage_id) DO NOTHING`)
	if _, err := t.tx.ExecContext(ctx, insert, userID, stageID, toUnix(now)); err != nil {
		return progress.ProgressRecord{}, wrap("create progress", err)
	}

	query := `SELECT ` + progressColumns + ` FROM user_stage_progress WHERE user_id = ? AND stage_id = ?`
	if t.postgres {
		query += ` FOR UPDATE`
	}
	var row progressRow
	if err := t.tx.GetContext(ctx, &row, t.tx.Rebind(query), userID, stageID); err != nil {
		return progress.ProgressRecord{}, wrap("lock progress", err)
	}
	return row.record(), nil
}

func (t *tx) UpsertBest(ctx context.Context, rec progress.ProgressRecord) error {
	q := t.tx.Rebind(`INSERT INTO user_stage_progress (` + progressColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, stage_id) DO UPDATE SET
			unlocked = excluded.unlocked,
			cleared = excluded.cleared,
			best_time_ms = excluded.best_time_ms,
			best_length = excluded.best_length,
			improved_at_unix = excluded.improved_at_unix,
			updated_at_unix = excluded.updated_at_unix`)
	_, err := t.tx.ExecContext(ctx, q,
		rec.UserID,
		rec.StageID,
		rec.Unlocked,
		rec.Cleared,
		nullInt(rec.BestTimeMS),
		nullInt(rec.BestLength),
		nullTime(rec.ImprovedAt),
		toUnix(rec.UpdatedAt),
	)
	if err != nil {
		return wrap("upsert progress", err)
	}
	return nil
}

func (t *tx) AppendAttempt(ctx context.Context, rec progress.AttemptRecord) (progress.AttemptRecord, error) {
	q := t.tx.Rebind(`INSERT INTO run_logs (user_id, stage_code, length_used, time_ms, recorded_at_unix)
		VALUES (?, ?, ?, ?, ?) RETURNING record_id`)
	if err := t.tx.QueryRowxContext(ctx, q,
		rec.UserID, rec.StageCode, rec.LengthUsed, rec.TimeMS, toUnix(rec.RecordedAt),
	).Scan(&rec.ID); err != nil {
		return progress.AttemptRecord{}, wrap("append attempt", err)
	}
	return rec, nil
}

type rankCounts struct {
	Better int `db:"better"`
	Others int `db:"others"`
}

func (t *tx) CountBetter(ctx context.Context, q progress.RankQuery) (int, int, error) {
	col, err := column(q.Dimension)
	if err != nil {
		return 0, 0, err
	}
	query := t.tx.Rebind(`SELECT
			COUNT(*) AS others,
			COALESCE(SUM(CASE WHEN ` + col + ` < ? OR (` + col + ` = ? AND improved_at_unix < ?) THEN 1 ELSE 0 END), 0) AS better
		FROM user_stage_progress
		WHERE stage_id = ? AND user_id <> ? AND cleared = TRUE
			AND ` + col + ` IS NOT NULL AND improved_at_unix IS NOT NULL`)
	var counts rankCounts
	if err := t.tx.GetContext(ctx, &counts, query,
		q.Value, q.Value, toUnix(q.ImprovedAt), q.StageID, q.UserID,
	); err != nil {
		return 0, 0, wrap("count ranks", err)
	}
	return counts.Better, counts.Others, nil
}

type leaderRow struct {
	UserID         string        `db:"user_id"`
	BestTimeMS     sql.NullInt64 `db:"best_time_ms"`
	BestLength     sql.NullInt64 `db:"best_length"`
	ImprovedAtUnix int64         `db:"improved_at_unix"`
	ProfileImage   sql.NullInt64 `db:"profile_image"`
}

func (t *tx) TopN(ctx context.Context, stageID int, dim progress.Dimension, n int) ([]progress.LeaderboardEntry, error) {
	col, err := column(dim)
	if err != nil {
		return nil, err
	}
	query := t.tx.Rebind(`SELECT p.user_id, p.best_time_ms, p.best_length, p.improved_at_unix, u.profile_image
		FROM user_stage_progress p
		LEFT JOIN users u ON u.user_id = p.user_id
		WHERE p.stage_id = ? AND p.cleared = TRUE
			AND p.` + col + ` IS NOT NULL AND p.improved_at_unix IS NOT NULL
		ORDER BY p.` + col + ` ASC, p.improved_at_unix ASC, p.user_id ASC
		LIMIT ?`)
	var rows []leaderRow
	if err := t.tx.SelectContext(ctx, &rows, query, stageID, n); err != nil {
		return nil, wrap("top "+col, err)
	}

	out := make([]progress.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		e := progress.LeaderboardEntry{
			UserID:     r.UserID,
			ImprovedAt: fromUnix(r.ImprovedAtUnix),
		}
		if r.BestTimeMS.Valid {
			v := r.BestTimeMS.Int64
			e.ClearTimeMS = &v
		}
		if r.BestLength.Valid {
			v := r.BestLength.Int64
			e.PromptLength = &v
		}
		if r.ProfileImage.Valid {
			v := int(r.ProfileImage.Int64)
			e.ProfileImage = &v
		}
		out = append(out, e)
	}
	return out, nil
}
