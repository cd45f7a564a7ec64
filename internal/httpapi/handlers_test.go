package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalgonaburger/stageboard/internal/broadcast"
	"github.com/dalgonaburger/stageboard/internal/progress"
	"github.com/dalgonaburger/stageboard/internal/progress/memstore"
)

type testServer struct {
	handler http.Handler
	engine  *progress.Engine
	store   *memstore.Store
	hub     *broadcast.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	hub := broadcast.NewHub(16)
	t.Cleanup(hub.Close)
	engine := progress.NewEngine(store, nil, progress.WithPublisher(hub))
	return &testServer{
		handler: NewRouter(Config{Engine: engine, Hub: hub, Stats: store, Version: "test"}),
		engine:  engine,
		store:   store,
		hub:     hub,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "stageboard", body["service"])
	assert.Equal(t, "test", body["version"])

	rec, body = s.do(t, http.MethodGet, "/api/info", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 25, body["stages"])
}

func TestListStages(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(t, http.MethodGet, "/api/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stages []stageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stages))
	require.Len(t, stages, 25)
	assert.Equal(t, "A1", stages[0].Code)
	require.NotNil(t, stages[0].Next)
	assert.Equal(t, "A2", *stages[0].Next)
	assert.Nil(t, stages[4].Next)
}

func TestSubmitScenario(t *testing.T) {
	s := newTestServer(t)
	sub := s.hub.Subscribe()

	rec, body := s.do(t, http.MethodPost, "/api/run-logs", map[string]any{
		"user_id": "alice", "stage_code": "A1", "prompt_length": 10, "clear_time_ms": 5000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ack"])
	assert.Equal(t, "A1", body["stage"])
	assert.EqualValues(t, 1, body["rank_clear_time"])
	assert.EqualValues(t, 100.0, body["rank_clear_time_percent"])
	assert.EqualValues(t, 1, body["total_records"])
	assert.Equal(t, "ok", body["received_text"])

	rec, body = s.do(t, http.MethodPost, "/api/run-logs", map[string]any{
		"user_id": "alice", "stage_code": "A1", "length_used": 8, "clear_time_ms": 6000,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 8, body["best_prompt_length"])
	assert.EqualValues(t, 5000, body["best_clear_time_ms"])
	assert.Equal(t, true, body["improved_length"])
	assert.Equal(t, false, body["improved_time"])

	boards := body["leaderboards"].(map[string]any)
	timeTop := boards["time_top10"].([]any)
	require.Len(t, timeTop, 1)
	entry := timeTop[0].(map[string]any)
	assert.Equal(t, "alice", entry["user_id"])
	assert.EqualValues(t, 5000, entry["clear_time_ms"])
	assert.EqualValues(t, 8, entry["prompt_length"])
	assert.EqualValues(t, 0, entry["profile_image"])

	assert.Eventually(t, func() bool { return len(sub.Events()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSubmitRejections(t *testing.T) {
	s := newTestServer(t)
	sub := s.hub.Subscribe()

	cases := []struct {
		name   string
		body   any
		status int
		errMsg string
	}{
		{"unknown stage", map[string]any{"user_id": "u", "stage_code": "Z9", "prompt_length": 1, "clear_time_ms": 1}, http.StatusBadRequest, ""},
		{"missing time", map[string]any{"user_id": "u", "stage_code": "A1", "prompt_length": 1}, http.StatusBadRequest, "clear_time_ms"},
		{"negative length", map[string]any{"user_id": "u", "stage_code": "A1", "prompt_length": -1, "clear_time_ms": 1}, http.StatusBadRequest, "prompt_length"},
		{"blank user", map[string]any{"user_id": "   ", "stage_code": "A1", "prompt_length": 1, "clear_time_ms": 1}, http.StatusBadRequest, "user_id"},
		{"malformed", `{"user_id":`, http.StatusBadRequest, "malformed"},
		{"unknown field", map[string]any{"user": "u"}, http.StatusBadRequest, "malformed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/run-logs", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, false, body["ack"])
			assert.Contains(t, body["error"], tc.errMsg)
		})
	}

	totals, err := s.store.Totals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, totals.Attempts)
	assert.Len(t, sub.Events(), 0)
}

func TestUnknownStageMessage(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, http.MethodPost, "/api/run-logs", map[string]any{
		"user_id": "u", "stage_code": "Z9", "prompt_length": 1, "clear_time_ms": 1,
	})
	// Z9 fails the shape check before reaching the catalog.
	assert.Contains(t, body["error"], "stage_code")

	rec, body := s.do(t, http.MethodGet, "/api/stages/Q1/leaderboard", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown stage_code", body["error"])
}

func TestUsersAndProgress(t *testing.T) {
	s := newTestServer(t)

	rec, body := s.do(t, http.MethodPost, "/api/users", map[string]any{"user_id": "bob", "profile_image": 2})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["created"])

	rec, body = s.do(t, http.MethodPost, "/api/users", map[string]any{"user_id": "bob"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["created"])
	assert.EqualValues(t, 2, body["profile_image"])

	rec, _ = s.do(t, http.MethodPatch, "/api/users/bob/profile_image", map[string]any{"profile_image": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/users/ghost/profile_image", map[string]any{"profile_image": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodPatch, "/api/users/bob/profile_image", map[string]any{"profile_image": 1})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	rec, _ = s.do(t, http.MethodGet, "/api/progress/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, code := range []string{"C2", "A1"} {
		rec, _ = s.do(t, http.MethodPost, "/api/run-logs", map[string]any{
			"user_id": "bob", "stage_code": code, "prompt_length": 3, "clear_time_ms": 30,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, _ = s.do(t, http.MethodGet, "/api/progress/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p progress.UserProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 1, p.ProfileImage)
	require.Len(t, p.Stages, 2)
	assert.Equal(t, "A1", p.Stages[0].Code)
	assert.Equal(t, "C2", p.Stages[1].Code)

	rec, body = s.do(t, http.MethodGet, "/api/stages/a1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A1", body["stage"])

	rec, body = s.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total_users"])
	assert.EqualValues(t, 2, body["total_attempts"])
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		retryable bool
	}{
		{progress.ErrValidation, http.StatusBadRequest, false},
		{progress.ErrUnknownStage, http.StatusBadRequest, false},
		{progress.ErrNotFound, http.StatusNotFound, false},
		{progress.ErrStorage, http.StatusServiceUnavailable, true},
		{progress.ErrTimeout, http.StatusGatewayTimeout, true},
		{errors.New("other"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		status, body := serviceError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.retryable, body.Retryable, tc.err.Error())
		assert.False(t, body.Ack)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/run-logs", nil)
	req.Header.Set("Origin", "https://game.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
