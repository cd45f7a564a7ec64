// Package observer streams the attempt log to a live viewer: a snapshot of
// recent attempts first, then every accepted attempt as it happens.
package observer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/broadcast"
	"github.com/dalgonaburger/stageboard/internal/progress"
)

const DefaultSnapshotLimit = 100

// Sink writes one message to the viewer. Send is only ever called from the
// goroutine running Serve.
type Sink interface {
	Send(v any) error
}

// SnapshotSource returns the newest attempts, oldest first.
type SnapshotSource interface {
	RecentAttempts(ctx context.Context, limit int) ([]progress.AttemptRecord, error)
}

type Snapshot struct {
	Type string                   `json:"type"`
	Rows []progress.AttemptRecord `json:"rows"`
}

type Session struct {
	hub    *broadcast.Hub
	source SnapshotSource
	limit  int
	logger *zap.Logger
}

func NewSession(hub *broadcast.Hub, source SnapshotSource, limit int, logger *zap.Logger) *Session {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{hub: hub, source: source, limit: limit, logger: logger}
}

// Serve runs until ctx is done, the hub drops the subscription, or sink fails.
//
// The subscription is taken before the snapshot is read, so an attempt that
// commits while the snapshot is loading reaches the viewer either in the
// snapshot, live, or both. It is never lost.
func (s *Session) Serve(ctx context.Context, sink Sink) error {
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)
	log := s.logger.With(zap.String("subscription", sub.ID))

	rows, err := s.source.RecentAttempts(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if rows == nil {
		rows = []progress.AttemptRecord{}
	}
	if err := sink.Send(Snapshot{Type: "snapshot", Rows: rows}); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}
	log.Debug("observer snapshot sent", zap.Int("rows", len(rows)))

	// Flush whatever queued up while the snapshot was loading.
	for drained := false; !drained; {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := sink.Send(ev); err != nil {
				return fmt.Errorf("send event: %w", err)
			}
		default:
			drained = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				log.Debug("observer subscription closed by hub")
				return nil
			}
			if err := sink.Send(ev); err != nil {
				return fmt.Errorf("send event: %w", err)
			}
		}
	}
}
