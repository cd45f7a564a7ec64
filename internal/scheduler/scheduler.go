// Package scheduler runs periodic background jobs for the server.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

// TotalsSource counts users and attempts.
type TotalsSource interface {
	Totals(ctx context.Context) (progress.Totals, error)
}

// TotalsSink receives each refreshed count, typically the metrics gauges.
type TotalsSink interface {
	SetTotals(progress.Totals)
}

type Scheduler struct {
	scheduler *gocron.Scheduler
	source    TotalsSource
	sink      TotalsSink
	interval  time.Duration
	logger    *zap.Logger
}

func New(source TotalsSource, sink TotalsSink, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		source:    source,
		sink:      sink,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the stats refresh, which also runs once right away.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.refreshTotals); err != nil {
		return fmt.Errorf("schedule stats refresh: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) refreshTotals() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	totals, err := s.source.Totals(ctx)
	if err != nil {
		s.logger.Warn("refresh totals", zap.Error(err))
		return
	}
	s.sink.SetTotals(totals)
	s.logger.Debug("totals refreshed", zap.Int("users", totals.Users), zap.Int("attempts", totals.Attempts))
}
