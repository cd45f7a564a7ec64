// Package memstore keeps progress in process memory. Transactions are
// serialized by one mutex and applied copy-on-write, so a failing transaction
// leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

type progressKey struct {
	userID  string
	stageID int
}

type state struct {
	users    map[string]progress.User
	progress map[progressKey]progress.ProgressRecord
	attempts []progress.AttemptRecord
	nextID   int64
}

func (s *state) clone() *state {
	c := &state{
		users:    make(map[string]progress.User, len(s.users)),
		progress: make(map[progressKey]progress.ProgressRecord, len(s.progress)),
		attempts: make([]progress.AttemptRecord, len(s.attempts)),
		nextID:   s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.progress {
		c.progress[k] = copyRecord(v)
	}
	copy(c.attempts, s.attempts)
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

var _ progress.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		state: &state{
			users:    map[string]progress.User{},
			progress: map[progressKey]progress.ProgressRecord{},
			nextID:   1,
		},
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx progress.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin: %w: %w", progress.ErrStorage, err)
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) RegisterUser(_ context.Context, userID string, profileImage int, now time.Time) (progress.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.state.users[userID]; ok {
		return u, false, nil
	}
	u := progress.User{ID: userID, ProfileImage: profileImage, CreatedAt: now}
	s.state.users[userID] = u
	return u, true, nil
}

func (s *Store) SetProfileImage(_ context.Context, userID string, image int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.users[userID]
	if !ok {
		return fmt.Errorf("user %q: %w", userID, progress.ErrNotFound)
	}
	u.ProfileImage = image
	s.state.users[userID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (progress.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.users[userID]
	if !ok {
		return progress.User{}, fmt.Errorf("user %q: %w", userID, progress.ErrNotFound)
	}
	return u, nil
}

func (s *Store) ListProgress(_ context.Context, userID string) ([]progress.ProgressRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []progress.ProgressRecord
	for k, r := range s.state.progress {
		if k.userID == userID {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StageID < out[j].StageID })
	return out, nil
}

func (s *Store) RecentAttempts(_ context.Context, limit int) ([]progress.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.state.attempts
	if limit < len(all) {
		all = all[len(all)-limit:]
	}
	out := make([]progress.AttemptRecord, len(all))
	copy(out, all)
	return out, nil
}

// ListAttempts pages through the log by record id, oldest first.
func (s *Store) ListAttempts(_ context.Context, afterID int64, limit int) ([]progress.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []progress.AttemptRecord
	for _, a := range s.state.attempts {
		if a.ID <= afterID {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Totals(context.Context) (progress.Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.Totals{Users: len(s.state.users), Attempts: len(s.state.attempts)}, nil
}

// Get returns a copy of one progress record. Used by tests.
func (s *Store) Get(userID string, stageID int) (progress.ProgressRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.progress[progressKey{userID, stageID}]
	return copyRecord(r), ok
}

type tx struct {
	st *state
}

func (t *tx) EnsureUser(_ context.Context, userID string, now time.Time) error {
	if _, ok := t.st.users[userID]; !ok {
		t.st.users[userID] = progress.User{ID: userID, CreatedAt: now}
	}
	return nil
}

func (t *tx) GetOrCreateProgress(_ context.Context, userID string, stageID int, now time.Time) (progress.ProgressRecord, error) {
	k := progressKey{userID, stageID}
	if r, ok := t.st.progress[k]; ok {
		return copyRecord(r), nil
	}
	r := progress.ProgressRecord{UserID: userID, StageID: stageID, Unlocked: true, UpdatedAt: now}
	t.st.progress[k] = r
	return r, nil
}

func (t *tx) UpsertBest(_ context.Context, rec progress.ProgressRecord) error {
	t.st.progress[progressKey{rec.UserID, rec.StageID}] = copyRecord(rec)
	return nil
}

func (t *tx) AppendAttempt(_ context.Context, rec progress.AttemptRecord) (progress.AttemptRecord, error) {
	rec.ID = t.st.nextID
	t.st.nextID++
	t.st.attempts = append(t.st.attempts, rec)
	return rec, nil
}

func (t *tx) CountBetter(_ context.Context, q progress.RankQuery) (int, int, error) {
	better, others := 0, 0
	for k, r := range t.st.progress {
		if k.stageID != q.StageID || k.userID == q.UserID || !r.Cleared {
			continue
		}
		v := r.Value(q.Dimension)
		if v == nil || r.ImprovedAt == nil {
			continue
		}
		others++
		if *v < q.Value || (*v == q.Value && r.ImprovedAt.Before(q.ImprovedAt)) {
			better++
		}
	}
	return better, others, nil
}

func (t *tx) TopN(_ context.Context, stageID int, dim progress.Dimension, n int) ([]progress.LeaderboardEntry, error) {
	var recs []progress.ProgressRecord
	for k, r := range t.st.progress {
		if k.stageID != stageID || !r.Cleared || r.Value(dim) == nil || r.ImprovedAt == nil {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if va, vb := *a.Value(dim), *b.Value(dim); va != vb {
			return va < vb
		}
		if !a.ImprovedAt.Equal(*b.ImprovedAt) {
			return a.ImprovedAt.Before(*b.ImprovedAt)
		}
		return a.UserID < b.UserID
	})
	if len(recs) > n {
		recs = recs[:n]
	}

	out := make([]progress.LeaderboardEntry, 0, len(recs))
	for _, r := range recs {
		r = copyRecord(r)
		e := progress.LeaderboardEntry{
			UserID:       r.UserID,
			PromptLength: r.BestLength,
			ClearTimeMS:  r.BestTimeMS,
			ImprovedAt:   *r.ImprovedAt,
		}
		if u, ok := t.st.users[r.UserID]; ok {
			img := u.ProfileImage
			e.ProfileImage = &img
		}
		out = append(out, e)
	}
	return out, nil
}

func copyRecord(r progress.ProgressRecord) progress.ProgressRecord {
	if r.BestTimeMS != nil {
		v := *r.BestTimeMS
		r.BestTimeMS = &v
	}
	if r.BestLength != nil {
		v := *r.BestLength
		r.BestLength = &v
	}
	if r.ImprovedAt != nil {
		v := *r.ImprovedAt
		r.ImprovedAt = &v
	}
	return r
}
