package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

type fakeHub struct{}

func (fakeHub) Len() int        { return 3 }
func (fakeHub) Dropped() uint64 { return 9 }

func TestObserveSubmit(t *testing.T) {
	m := New()
	m.ObserveSubmit("A1", "accepted", 5*time.Millisecond)
	m.ObserveSubmit("A1", "accepted", 5*time.Millisecond)
	m.ObserveSubmit("ZZ", "invalid", time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `stageboard_submissions_total{outcome="accepted",stage="A1"} 2`)
	assert.Contains(t, body, `stageboard_submissions_total{outcome="invalid",stage="other"} 1`)
	assert.NotContains(t, body, `stage="ZZ"`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.WatchHub(fakeHub{})
	m.SetTotals(progress.Totals{Users: 4, Attempts: 12})
	m.ObserverOpened()

	body := scrape(t, m)
	for _, want := range []string{
		"stageboard_hub_subscribers 3",
		"stageboard_hub_dropped_events_total 9",
		"stageboard_users 4",
		"stageboard_attempts 12",
		"stageboard_observer_sessions 1",
	} {
		assert.Contains(t, body, want)
	}
}
