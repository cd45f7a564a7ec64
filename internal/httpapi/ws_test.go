package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func TestChartSnapshotThenLive(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for _, user := range []string{"early1", "early2"} {
		_, err := s.engine.Submit(ctx, progress.Attempt{UserID: user, StageCode: "A1", LengthUsed: 5, TimeMS: 50})
		require.NoError(t, err)
	}

	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)
	conn := dial(t, srv, "/chart")

	snap := readFrame(t, conn)
	assert.Equal(t, "snapshot", snap["type"])
	rows := snap["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "early1", rows[0].(map[string]any)["user_id"])
	assert.Equal(t, "early2", rows[1].(map[string]any)["user_id"])

	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	_, err := s.engine.Submit(ctx, progress.Attempt{UserID: "live", StageCode: "B3", LengthUsed: 9, TimeMS: 90})
	require.NoError(t, err)

	ev := readFrame(t, conn)
	_, hasType := ev["type"]
	assert.False(t, hasType)
	assert.Equal(t, "live", ev["user_id"])
	assert.Equal(t, "B3", ev["stage_code"])
	assert.EqualValues(t, 90, ev["clear_time_ms"])
}

func TestChartUnsubscribesOnDisconnect(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chart"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	readFrame(t, conn)
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)
	conn := dial(t, srv, "/ws")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"user_id": "sock", "stage_code": "D2", "prompt_length": 4, "clear_time_ms": 400,
	}))
	ok := readFrame(t, conn)
	assert.Equal(t, true, ok["ack"])
	assert.Equal(t, "D2", ok["stage"])
	assert.EqualValues(t, 1, ok["rank_tokens"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"user_id":"sock","stage_code":"D9"}`)))
	bad := readFrame(t, conn)
	assert.Equal(t, false, bad["ack"])
	assert.NotEmpty(t, bad["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	bad = readFrame(t, conn)
	assert.Equal(t, false, bad["ack"])
}

func TestConnSinkSendFailsOnClosedConn(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "/chart")
	readFrame(t, conn)
	require.NoError(t, conn.Close())

	sink := &connSink{conn: conn}
	assert.Error(t, sink.Send(map[string]string{"type": "ping"}))
}
