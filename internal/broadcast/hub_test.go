package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

func event(i int) progress.Event {
	return progress.Event{UserID: fmt.Sprintf("u%d", i), StageCode: "A1", ClearTimeMS: int64(i), RecordedAt: time.Unix(int64(i), 0)}
}

func TestHubDeliversToAll(t *testing.T) {
	h := NewHub(4)
	a := h.Subscribe()
	b := h.Subscribe()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, h.Len())

	h.Publish(event(1))

	for _, sub := range []*Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "u1", ev.UserID)
		default:
			t.Fatalf("subscription %s got nothing", sub.ID)
		}
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe()
	fast := h.Subscribe()

	for i := 0; i < 5; i++ {
		h.Publish(event(i))
		<-fast.Events()
	}

	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, uint64(3), h.Dropped())

	// The oldest events are kept, in publish order.
	assert.Equal(t, "u0", (<-slow.Events()).UserID)
	assert.Equal(t, "u1", (<-slow.Events()).UserID)
}

func TestHubUnsubscribeIsIdempotent(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe()

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Len())

	_, open := <-sub.Events()
	assert.False(t, open)

	h.Publish(event(1))
	h.Close()
	h.Unsubscribe(sub)
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe()
	h.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	late := h.Subscribe()
	_, open = <-late.Events()
	assert.False(t, open)
	assert.Equal(t, 0, h.Len())
}

func TestHubSurvivesBrokenSubscriber(t *testing.T) {
	h := NewHub(4)
	broken := h.Subscribe()
	healthy := h.Subscribe()
	close(broken.inbox)

	require.NotPanics(t, func() { h.Publish(event(1)) })

	assert.Equal(t, 1, h.Len())
	ev := <-healthy.Events()
	assert.Equal(t, "u1", ev.UserID)
	h.Unsubscribe(broken)
}

func TestHubConcurrentPublishAndUnsubscribe(t *testing.T) {
	h := NewHub(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := h.Subscribe()
			for j := 0; j < 50; j++ {
				select {
				case <-sub.Events():
				default:
				}
			}
			h.Unsubscribe(sub)
		}()
	}
	for i := 0; i < 200; i++ {
		h.Publish(event(i))
	}
	wg.Wait()
	assert.Equal(t, 0, h.Len())
}
