package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/broadcast"
	"github.com/dalgonaburger/stageboard/internal/progress"
)

type chanSink struct {
	ch  chan any
	err error
}

func (s *chanSink) Send(v any) error {
	if s.err != nil {
		return s.err
	}
	s.ch <- v
	return nil
}

// publishingSource publishes an event while the snapshot is being read,
// which is the window the subscribe-first order protects.
type publishingSource struct {
	hub  *broadcast.Hub
	rows []progress.AttemptRecord
	once sync.Once
}

func (p *publishingSource) RecentAttempts(_ context.Context, limit int) ([]progress.AttemptRecord, error) {
	p.once.Do(func() {
		p.hub.Publish(progress.Event{UserID: "during", StageCode: "A1"})
	})
	if len(p.rows) > limit {
		return p.rows[len(p.rows)-limit:], nil
	}
	return p.rows, nil
}

type failingSource struct{}

func (failingSource) RecentAttempts(context.Context, int) ([]progress.AttemptRecord, error) {
	return nil, errors.New("db down")
}

func TestServeSnapshotThenLive(t *testing.T) {
	hub := broadcast.NewHub(10)
	src := &publishingSource{hub: hub, rows: []progress.AttemptRecord{
		{ID: 1, UserID: "a"}, {ID: 2, UserID: "b"}, {ID: 3, UserID: "c"},
	}}
	sess := NewSession(hub, src, 2, nil)
	sink := &chanSink{ch: make(chan any, 10)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Serve(ctx, sink) }()

	first := <-sink.ch
	snap, ok := first.(Snapshot)
	require.True(t, ok, "first message must be the snapshot, got %T", first)
	assert.Equal(t, "snapshot", snap.Type)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "b", snap.Rows[0].UserID)
	assert.Equal(t, "c", snap.Rows[1].UserID)

	during := (<-sink.ch).(progress.Event)
	assert.Equal(t, "during", during.UserID)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(progress.Event{UserID: "after", StageCode: "B2"})
	live := (<-sink.ch).(progress.Event)
	assert.Equal(t, "after", live.UserID)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 0, hub.Len())
}

func TestServeEmptySnapshot(t *testing.T) {
	hub := broadcast.NewHub(10)
	sess := NewSession(hub, &publishingSource{hub: broadcast.NewHub(1)}, 0, nil)
	sink := &chanSink{ch: make(chan any, 10)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sink.ch
		cancel()
	}()
	require.NoError(t, sess.Serve(ctx, sink))
}

func TestServeUnsubscribesOnFailure(t *testing.T) {
	hub := broadcast.NewHub(10)

	err := NewSession(hub, failingSource{}, 10, nil).Serve(context.Background(), &chanSink{ch: make(chan any, 1)})
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Len())

	broken := &chanSink{err: errors.New("socket closed")}
	err = NewSession(hub, &publishingSource{hub: broadcast.NewHub(1)}, 10, nil).Serve(context.Background(), broken)
	assert.ErrorContains(t, err, "socket closed")
	assert.Equal(t, 0, hub.Len())
}

func TestServeEndsWhenHubCloses(t *testing.T) {
	hub := broadcast.NewHub(10)
	sink := &chanSink{ch: make(chan any, 10)}
	done := make(chan error, 1)
	go func() { done <- NewSession(hub, &publishingSource{hub: broadcast.NewHub(1)}, 10, nil).Serve(context.Background(), sink) }()

	<-sink.ch
	hub.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after hub close")
	}
}
