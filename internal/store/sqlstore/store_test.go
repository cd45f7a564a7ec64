package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/progress"
	"github.com/dalgonaburger/stageboard/internal/stage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx, stage.Seed()))
	return s
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		in, driver, source string
	}{
		{"", DriverSQLite, "stageboard.db?_foreign_keys=on&_busy_timeout=5000"},
		{"sqlite:///tmp/x.db", DriverSQLite, "/tmp/x.db?_foreign_keys=on&_busy_timeout=5000"},
		{"file:board.db?cache=shared", DriverSQLite, "file:board.db?cache=shared&_foreign_keys=on&_busy_timeout=5000"},
		{"postgres://u:p@localhost/db?sslmode=disable", DriverPostgres, "postgres://u:p@localhost/db?sslmode=disable"},
		{"host=localhost dbname=board", DriverPostgres, "host=localhost dbname=board"},
	}
	for _, tc := range cases {
		driver, source := ParseDSN(tc.in)
		assert.Equal(t, tc.driver, driver, tc.in)
		assert.Equal(t, tc.source, source, tc.in)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background(), stage.Seed()))

	catalog, err := s.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stage.Default().Stages(), catalog.Stages())
}

func TestEngineOverSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	e := progress.NewEngine(s, nil, progress.WithClock(clock))

	res, err := e.Submit(ctx, progress.Attempt{UserID: "alice", StageCode: "A1", LengthUsed: 100, TimeMS: 5000})
	require.NoError(t, err)
	assert.Equal(t, progress.Standing{Rank: 1, Percentile: 100, Total: 1}, res.Time)

	res, err = e.Submit(ctx, progress.Attempt{UserID: "bob", StageCode: "A1", LengthUsed: 150, TimeMS: 3000})
	require.NoError(t, err)
	assert.Equal(t, progress.Standing{Rank: 1, Percentile: 50, Total: 2}, res.Time)
	assert.Equal(t, progress.Standing{Rank: 2, Percentile: 100, Total: 2}, res.Length)
	require.Len(t, res.Leaderboards.TimeTop10, 2)
	assert.Equal(t, "bob", res.Leaderboards.TimeTop10[0].UserID)
	assert.Equal(t, "alice", res.Leaderboards.PromptTop10[0].UserID)
	require.NotNil(t, res.Leaderboards.TimeTop10[0].ProfileImage)

	// Same values as alice but later: loses the tie on improved_at.
	res, err = e.Submit(ctx, progress.Attempt{UserID: "carol", StageCode: "A1", LengthUsed: 100, TimeMS: 5000})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Time.Rank)
	assert.Equal(t, 2, res.Length.Rank)

	// No improvement keeps alice's improved_at.
	before, err := e.Submit(ctx, progress.Attempt{UserID: "alice", StageCode: "A1", LengthUsed: 100, TimeMS: 5000})
	require.NoError(t, err)
	assert.False(t, before.ImprovedTime)
	assert.False(t, before.ImprovedLength)
	assert.Equal(t, 2, before.Time.Rank)
	assert.Equal(t, 1, before.Length.Rank)

	recent, err := e.RecentAttempts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "carol", recent[0].UserID)
	assert.Equal(t, "alice", recent[1].UserID)
	assert.Less(t, recent[0].ID, recent[1].ID)

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, progress.Totals{Users: 3, Attempts: 4}, totals)

	page, err := s.ListAttempts(ctx, recent[0].ID-1, 10)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestUsersAndProgress(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := progress.NewEngine(s, nil)

	one := 1
	u, created, err := e.Register(ctx, "dana", &one)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, u.ProfileImage)

	two := 2
	u, created, err = e.Register(ctx, "dana", &two)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, u.ProfileImage)

	require.NoError(t, e.SetProfileImage(ctx, "dana", 2))
	assert.ErrorIs(t, e.SetProfileImage(ctx, "nobody", 2), progress.ErrNotFound)

	_, err = e.Progress(ctx, "nobody")
	assert.ErrorIs(t, err, progress.ErrNotFound)

	for _, code := range []string{"B1", "A2"} {
		_, err := e.Submit(ctx, progress.Attempt{UserID: "dana", StageCode: code, LengthUsed: 7, TimeMS: 70})
		require.NoError(t, err)
	}
	p, err := e.Progress(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, 2, p.ProfileImage)
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "A2", p.Stages[0].Code)
	assert.Equal(t, "B1", p.Stages[1].Code)
	assert.True(t, p.Stages[1].Unlocked)
	assert.Equal(t, int64(70), *p.Stages[1].ClearTimeMS)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	err := s.WithinTx(ctx, func(ctx context.Context, tx progress.Tx) error {
		require.NoError(t, tx.EnsureUser(ctx, "ghost", now))
		// stage 999 does not exist, so the foreign key rejects the row.
		_, err := tx.GetOrCreateProgress(ctx, "ghost", 999, now)
		return err
	})
	require.ErrorIs(t, err, progress.ErrStorage)

	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, progress.ErrNotFound)
}
