package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const (
	// DefaultBaseURL is the server root; API routes live under /api.
	DefaultBaseURL = "http://localhost:8080"
	Timeout        = 15 * time.Second
)

// SubmitResult is the server's answer to one run log.
type SubmitResult struct {
	Ack                  bool                  `json:"ack"`
	UserID               string                `json:"user_id"`
	Stage                string                `json:"stage"`
	RankClearTimePercent float64               `json:"rank_clear_time_percent"`
	RankTokensPercent    float64               `json:"rank_tokens_percent"`
	RankClearTime        int                   `json:"rank_clear_time"`
	RankTokens           int                   `json:"rank_tokens"`
	TotalRecords         int                   `json:"total_records"`
	TotalRecordsTokens   int                   `json:"total_records_tokens"`
	BestClearTimeMS      int64                 `json:"best_clear_time_ms"`
	BestPromptLength     int64                 `json:"best_prompt_length"`
	ImprovedTime         bool                  `json:"improved_time"`
	ImprovedLength       bool                  `json:"improved_length"`
	Leaderboards         progress.Leaderboards `json:"leaderboards"`
}

type Registration struct {
	UserID       string `json:"user_id"`
	Created      bool   `json:"created"`
	ProfileImage int    `json:"profile_image"`
}

type StageLeaderboard struct {
	Stage        string                `json:"stage"`
	Leaderboards progress.Leaderboards `json:"leaderboards"`
}

// Error is a non-2xx answer from the server.
type Error struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status: %d", e.Status)
	}
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// Client talks to a stageboard server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client for baseURL, or DefaultBaseURL when empty.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: Timeout},
		baseURL:    baseURL,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// do sends body as JSON and decodes a 2xx answer into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+endpoint, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+endpoint, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error     string `json:"error"`
			Retryable bool   `json:"retryable"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &Error{Status: resp.StatusCode, Message: errResp.Error, Retryable: errResp.Retryable}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CheckHealth verifies the API server is running.
func (c *Client) CheckHealth(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("API health check failed: %w", err)
	}
	return nil
}

// Register creates the user if needed. profileImage may be nil.
func (c *Client) Register(ctx context.Context, userID string, profileImage *int) (*Registration, error) {
	var out Registration
	body := map[string]any{"user_id": userID}
	if profileImage != nil {
		body["profile_image"] = *profileImage
	}
	if err := c.do(ctx, http.MethodPost, "/users", body, &out); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	return &out, nil
}

func (c *Client) SetProfileImage(ctx context.Context, userID string, image int) error {
	endpoint := "/users/" + url.PathEscape(userID) + "/profile_image"
	if err := c.do(ctx, http.MethodPatch, endpoint, map[string]int{"profile_image": image}, nil); err != nil {
		return fmt.Errorf("failed to set profile image: %w", err)
	}
	return nil
}

// Submit posts one run log and returns the user's standing.
func (c *Client) Submit(ctx context.Context, a progress.Attempt) (*SubmitResult, error) {
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, "/run-logs", a, &out); err != nil {
		return nil, fmt.Errorf("failed to submit run: %w", err)
	}
	return &out, nil
}

func (c *Client) GetProgress(ctx context.Context, userID string) (*progress.UserProgress, error) {
	var out progress.UserProgress
	if err := c.do(ctx, http.MethodGet, "/progress/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return &out, nil
}

// GetLeaderboard fetches both top-10 boards for a stage.
func (c *Client) GetLeaderboard(ctx context.Context, stageCode string) (*StageLeaderboard, error) {
	var out StageLeaderboard
	if err := c.do(ctx, http.MethodGet, "/stages/"+url.PathEscape(stageCode)+"/leaderboard", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return &out, nil
}

// StreamMessage is one frame of the observer stream. Snapshot frames carry
// Rows; live frames carry Event.
type StreamMessage struct {
	Snapshot bool
	Rows     []progress.AttemptRecord
	Event    progress.Event
}

// Watch opens the observer stream and calls fn for every frame until ctx is
// done, the server closes the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(StreamMessage) error) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("bad base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/chart"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("stream read: %w", err)
		}
		msg, err := decodeStreamMessage(payload)
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

func decodeStreamMessage(payload []byte) (StreamMessage, error) {
	var probe struct {
		Type string                   `json:"type"`
		Rows []progress.AttemptRecord `json:"rows"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return StreamMessage{}, fmt.Errorf("failed to decode stream frame: %w", err)
	}
	if probe.Type == "snapshot" {
		return StreamMessage{Snapshot: true, Rows: probe.Rows}, nil
	}
	var ev progress.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return StreamMessage{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return StreamMessage{Event: ev}, nil
}

// IsRetryable reports whether err is a server answer the caller may retry.
func IsRetryable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Retryable
}
