package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/stage"
)

const DefaultSubmitTimeout = 10 * time.Second

// Engine records stage clearances and computes rankings.
type Engine struct {
	store         Store
	catalog       *stage.Catalog
	publisher     Publisher
	recorder      Recorder
	logger        *zap.Logger
	now           func() time.Time
	submitTimeout time.Duration
}

type Option func(*Engine)

// WithPublisher sets where events go after a submission commits.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now. Tests use it to force improved_at ties.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSubmitTimeout bounds how long Submit waits for its transaction. Zero or
// negative disables the bound and only the caller's context applies.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.submitTimeout = d }
}

func NewEngine(store Store, catalog *stage.Catalog, opts ...Option) *Engine {
	if catalog == nil {
		catalog = stage.Default()
	}
	e := &Engine{
		store:         store,
		catalog:       catalog,
		logger:        zap.NewNop(),
		now:           time.Now,
		submitTimeout: DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Catalog() *stage.Catalog { return e.catalog }

type submitOutcome struct {
	result RankResult
	event  Event
	err    error
}

// Submit records one attempt and returns the user's standing on the stage.
//
// The transaction runs detached from ctx. If ctx ends first Submit returns
// ErrTimeout while the transaction still commits or rolls back, and still
// publishes on commit. Publishing happens after the result is handed back, so
// a slow publisher never adds to submit latency.
func (e *Engine) Submit(ctx context.Context, a Attempt) (RankResult, error) {
	start := time.Now()
	a = a.Normalize()
	if err := a.Validate(); err != nil {
		e.observe(a.StageCode, "invalid", start)
		return RankResult{}, err
	}
	st, ok := e.catalog.Lookup(a.StageCode)
	if !ok {
		e.observe(a.StageCode, "unknown_stage", start)
		return RankResult{}, fmt.Errorf("%w: %s", ErrUnknownStage, a.StageCode)
	}
	if ctx.Err() != nil {
		e.observe(a.StageCode, "timeout", start)
		return RankResult{}, ErrTimeout
	}

	waitCtx := ctx
	if e.submitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.submitTimeout)
		defer cancel()
	}

	done := make(chan submitOutcome, 1)
	txCtx := context.WithoutCancel(ctx)
	go func() {
		out := e.runSubmit(txCtx, st, a)
		done <- out
		if out.err == nil {
			e.publish(out.event)
		}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			e.observe(a.StageCode, "storage_error", start)
			return RankResult{}, out.err
		}
		e.observe(a.StageCode, "accepted", start)
		return out.result, nil
	case <-waitCtx.Done():
		e.logger.Warn("submission still in flight after caller stopped waiting",
			zap.String("user_id", a.UserID),
			zap.String("stage_code", a.StageCode),
		)
		e.observe(a.StageCode, "timeout", start)
		return RankResult{}, ErrTimeout
	}
}

func (e *Engine) runSubmit(ctx context.Context, st stage.Stage, a Attempt) submitOutcome {
	now := e.now().UTC()
	var out submitOutcome
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.EnsureUser(ctx, a.UserID, now); err != nil {
			return err
		}
		rec, err := tx.GetOrCreateProgress(ctx, a.UserID, st.ID, now)
		if err != nil {
			return err
		}

		rec, improvedTime, improvedLength := applyAttempt(rec, a, now)
		if err := tx.UpsertBest(ctx, rec); err != nil {
			return err
		}

		logged, err := tx.AppendAttempt(ctx, AttemptRecord{
			UserID:     a.UserID,
			StageCode:  st.Code,
			LengthUsed: a.LengthUsed,
			TimeMS:     a.TimeMS,
			RecordedAt: now,
		})
		if err != nil {
			return err
		}

		timeStanding, err := standing(ctx, tx, rec, ByTime)
		if err != nil {
			return err
		}
		lengthStanding, err := standing(ctx, tx, rec, ByLength)
		if err != nil {
			return err
		}

		timeTop, err := tx.TopN(ctx, st.ID, ByTime, LeaderboardSize)
		if err != nil {
			return err
		}
		lengthTop, err := tx.TopN(ctx, st.ID, ByLength, LeaderboardSize)
		if err != nil {
			return err
		}

		out.result = RankResult{
			UserID:         a.UserID,
			StageCode:      st.Code,
			Time:           timeStanding,
			Length:         lengthStanding,
			BestTimeMS:     *rec.BestTimeMS,
			BestLength:     *rec.BestLength,
			ImprovedTime:   improvedTime,
			ImprovedLength: improvedLength,
			ImprovedAt:     rec.ImprovedAt,
			Leaderboards: Leaderboards{
				PromptTop10: nonNil(lengthTop),
				TimeTop10:   nonNil(timeTop),
			},
		}
		out.event = Event{
			UserID:       a.UserID,
			StageCode:    st.Code,
			PromptLength: a.LengthUsed,
			ClearTimeMS:  a.TimeMS,
			ImprovedAt:   rec.ImprovedAt,
			RecordedAt:   logged.RecordedAt,
		}
		return nil
	})
	if err != nil {
		e.logger.Error("submission rolled back",
			zap.String("user_id", a.UserID),
			zap.String("stage_code", st.Code),
			zap.Error(err),
		)
		if !errors.Is(err, ErrStorage) {
			err = fmt.Errorf("submit %s/%s: %w: %w", a.UserID, st.Code, ErrStorage, err)
		}
		out.err = err
	}
	return out
}

// applyAttempt folds a into rec. Best values only move down; improved_at is
// refreshed only when one of them moved.
func applyAttempt(rec ProgressRecord, a Attempt, now time.Time) (ProgressRecord, bool, bool) {
	rec.Unlocked = true
	rec.Cleared = true
	rec.UpdatedAt = now

	improvedTime := rec.BestTimeMS == nil || a.TimeMS < *rec.BestTimeMS
	improvedLength := rec.BestLength == nil || a.LengthUsed < *rec.BestLength
	if improvedTime {
		v := a.TimeMS
		rec.BestTimeMS = &v
	}
	if improvedLength {
		v := a.LengthUsed
		rec.BestLength = &v
	}
	if improvedTime || improvedLength {
		t := now
		rec.ImprovedAt = &t
	}
	return rec, improvedTime, improvedLength
}

func standing(ctx context.Context, tx Tx, rec ProgressRecord, dim Dimension) (Standing, error) {
	v := rec.Value(dim)
	if v == nil || rec.ImprovedAt == nil {
		return Standing{}, fmt.Errorf("rank %s: record has no best value", dim)
	}
	better, others, err := tx.CountBetter(ctx, RankQuery{
		StageID:    rec.StageID,
		UserID:     rec.UserID,
		Dimension:  dim,
		Value:      *v,
		ImprovedAt: *rec.ImprovedAt,
	})
	if err != nil {
		return Standing{}, err
	}
	return NewStanding(better, others), nil
}

// NewStanding turns raw counts into a rank and a percentile rounded to two
// decimals. Lower percentile is better.
func NewStanding(better, others int) Standing {
	rank := better + 1
	total := others + 1
	pct := float64(rank) / float64(total) * 100
	return Standing{
		Rank:       rank,
		Percentile: math.Round(pct*100) / 100,
		Total:      total,
	}
}

func (e *Engine) publish(ev Event) {
	if e.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event publish panicked",
				zap.Any("panic", r),
				zap.String("user_id", ev.UserID),
				zap.String("stage_code", ev.StageCode),
			)
		}
	}()
	e.publisher.Publish(ev)
}

func (e *Engine) observe(stageCode, outcome string, start time.Time) {
	if e.recorder == nil {
		return
	}
	e.recorder.ObserveSubmit(stageCode, outcome, time.Since(start))
}

func nonNil(entries []LeaderboardEntry) []LeaderboardEntry {
	if entries == nil {
		return []LeaderboardEntry{}
	}
	return entries
}
