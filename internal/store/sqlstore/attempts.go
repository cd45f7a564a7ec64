package sqlstore

import (
	"context"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

type attemptRow struct {
	ID             int64  `db:"record_id"`
	UserID         string `db:"user_id"`
	StageCode      string `db:"stage_code"`
	LengthUsed     int64  `db:"length_used"`
	TimeMS         int64  `db:"time_ms"`
	RecordedAtUnix int64  `db:"recorded_at_unix"`
}

const attemptColumns = `record_id, user_id, stage_code, length_used, time_ms, recorded_at_unix`

func (r attemptRow) record() progress.AttemptRecord {
	return progress.AttemptRecord{
		ID:         r.ID,
		UserID:     r.UserID,
		StageCode:  r.StageCode,
		LengthUsed: r.LengthUsed,
		TimeMS:     r.TimeMS,
		RecordedAt: fromUnix(r.RecordedAtUnix),
	}
}

// RecentAttempts returns the newest limit rows of the log, oldest first.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]progress.AttemptRecord, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+attemptColumns+` FROM run_logs ORDER BY record_id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, wrap("recent attempts", err)
	}
	out := make([]progress.AttemptRecord, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.record()
	}
	return out, nil
}

// ListAttempts pages through the log in record id order.
func (s *Store) ListAttempts(ctx context.Context, afterID int64, limit int) ([]progress.AttemptRecord, error) {
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+attemptColumns+` FROM run_logs WHERE record_id > ? ORDER BY record_id ASC LIMIT ?`), afterID, limit)
	if err != nil {
		return nil, wrap("list attempts", err)
	}
	out := make([]progress.AttemptRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}

type totalsRow struct {
	Users    int `db:"users"`
	Attempts int `db:"attempts"`
}

func (s *Store) Totals(ctx context.Context) (progress.Totals, error) {
	var row totalsRow
	err := s.db.GetContext(ctx, &row,
		`SELECT (SELECT COUNT(*) FROM users) AS users, (SELECT COUNT(*) FROM run_logs) AS attempts`)
	if err != nil {
		return progress.Totals{}, wrap("totals", err)
	}
	return progress.Totals{Users: row.Users, Attempts: row.Attempts}, nil
}
