package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

type userRow struct {
	ID            string `db:"user_id"`
	ProfileImage  int    `db:"profile_image"`
	CreatedAtUnix int64  `db:"created_at_unix"`
}

func (r userRow) user() progress.User {
	return progress.User{ID: r.ID, ProfileImage: r.ProfileImage, CreatedAt: fromUnix(r.CreatedAtUnix)}
}

func (s *Store) RegisterUser(ctx context.Context, userID string, profileImage int, now time.Time) (progress.User, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return progress.User{}, false, wrap("begin", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO users (user_id, profile_image, created_at_unix) VALUES (?, ?, ?) ON CONFLICT (user_id) DO NOTHING`),
		userID, profileImage, toUnix(now),
	)
	if err != nil {
		return progress.User{}, false, wrap("insert user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return progress.User{}, false, wrap("insert user", err)
	}

	var row userRow
	if err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT user_id, profile_image, created_at_unix FROM users WHERE user_id = ?`), userID); err != nil {
		return progress.User{}, false, wrap("read user", err)
	}
	if err := tx.Commit(); err != nil {
		return progress.User{}, false, wrap("commit", err)
	}
	return row.user(), n > 0, nil
}

func (s *Store) SetProfileImage(ctx context.Context, userID string, image int) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET profile_image = ? WHERE user_id = ?`), image, userID)
	if err != nil {
		return wrap("update profile image", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update profile image", err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", userID, progress.ErrNotFound)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (progress.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT user_id, profile_image, created_at_unix FROM users WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.User{}, fmt.Errorf("user %q: %w", userID, progress.ErrNotFound)
	}
	if err != nil {
		return progress.User{}, wrap("get user", err)
	}
	return row.user(), nil
}

func (s *Store) ListProgress(ctx context.Context, userID string) ([]progress.ProgressRecord, error) {
	var rows []progressRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+progressColumns+` FROM user_stage_progress WHERE user_id = ? ORDER BY stage_id`), userID)
	if err != nil {
		return nil, wrap("list progress", err)
	}
	out := make([]progress.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out, nil
}
