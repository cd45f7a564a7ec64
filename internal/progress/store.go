package progress

import (
	"context"
	"time"
)

// Store is the storage contract the engine depends on. Implementations must run
// WithinTx atomically: either every write made through tx commits, or none does.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// RegisterUser inserts the user if missing. created is false when the user
	// already existed, in which case the stored row is returned unchanged.
	RegisterUser(ctx context.Context, userID string, profileImage int, now time.Time) (user User, created bool, err error)
	SetProfileImage(ctx context.Context, userID string, image int) error
	GetUser(ctx context.Context, userID string) (User, error)
	ListProgress(ctx context.Context, userID string) ([]ProgressRecord, error)
	RecentAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// Tx is the narrow set of operations available inside a submission transaction.
type Tx interface {
	EnsureUser(ctx context.Context, userID string, now time.Time) error
	// GetOrCreateProgress returns the (user, stage) record, creating it with
	// Unlocked=true when missing. Where the store supports it the row stays
	// locked until the transaction ends.
	GetOrCreateProgress(ctx context.Context, userID string, stageID int, now time.Time) (ProgressRecord, error)
	UpsertBest(ctx context.Context, rec ProgressRecord) error
	AppendAttempt(ctx context.Context, rec AttemptRecord) (AttemptRecord, error)
	// CountBetter returns how many other users' cleared records on the stage
	// order strictly before (q.Value, q.ImprovedAt), and how many other users
	// have a value in the dimension at all.
	CountBetter(ctx context.Context, q RankQuery) (better, others int, err error)
	// TopN returns cleared records with a value in the dimension ordered by
	// (value, improved_at, user_id) ascending.
	TopN(ctx context.Context, stageID int, dim Dimension, n int) ([]LeaderboardEntry, error)
}

// Publisher receives events after a submission commits. Publish must not block
// on slow consumers.
type Publisher interface {
	Publish(ev Event)
}

// Recorder observes submission outcomes, typically for metrics.
type Recorder interface {
	ObserveSubmit(stageCode, outcome string, elapsed time.Duration)
}
