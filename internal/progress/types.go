package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalgonaburger/stageboard/internal/stage"
)

const (
	LeaderboardSize = 10
	MaxUserIDLength = 64
	MaxProfileImage = 2
)

// Attempt is one submitted stage clearance.
type Attempt struct {
	UserID     string `json:"user_id"`
	StageCode  string `json:"stage_code"`
	LengthUsed int64  `json:"prompt_length"`
	TimeMS     int64  `json:"clear_time_ms"`
}

// Normalize trims surrounding whitespace from the identifiers.
func (a Attempt) Normalize() Attempt {
	a.UserID = strings.TrimSpace(a.UserID)
	a.StageCode = strings.TrimSpace(a.StageCode)
	return a
}

// Validate checks the user id and the counters. The stage code is only
// resolved against the catalog, so a well-formed code that is not seeded and
// a malformed one both come back from the engine as ErrUnknownStage.
func (a Attempt) Validate() error {
	if err := ValidateUserID(a.UserID); err != nil {
		return err
	}
	if a.StageCode == "" {
		return fmt.Errorf("%w: stage_code must not be empty", ErrValidation)
	}
	if a.LengthUsed < 0 {
		return fmt.Errorf("%w: prompt_length must be >= 0", ErrValidation)
	}
	if a.TimeMS < 0 {
		return fmt.Errorf("%w: clear_time_ms must be >= 0", ErrValidation)
	}
	return nil
}

func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id must not be empty", ErrValidation)
	}
	if len(userID) > MaxUserIDLength {
		return fmt.Errorf("%w: user_id longer than %d characters", ErrValidation, MaxUserIDLength)
	}
	return nil
}

// ValidateStageCode is the wire-level shape check (A1..E5) applied by the
// HTTP and CLI front ends before an attempt reaches the engine.
func ValidateStageCode(code string) error {
	if !stage.ValidCode(code) {
		return fmt.Errorf("%w: stage_code must be A1..E5", ErrValidation)
	}
	return nil
}

func ValidateProfileImage(image int) error {
	if image < 0 || image > MaxProfileImage {
		return fmt.Errorf("%w: profile_image must be between 0 and %d", ErrValidation, MaxProfileImage)
	}
	return nil
}

// ProgressRecord is the best-known state of one user on one stage.
//
// Invariants:
//   - Cleared implies Unlocked.
//   - BestTimeMS and BestLength only ever decrease.
//   - ImprovedAt changes exactly when one of the best values changes.
type ProgressRecord struct {
	UserID     string
	StageID    int
	Unlocked   bool
	Cleared    bool
	BestTimeMS *int64
	BestLength *int64
	ImprovedAt *time.Time
	UpdatedAt  time.Time
}

// AttemptRecord is an immutable row of the attempt log.
type AttemptRecord struct {
	ID         int64     `json:"record_id"`
	UserID     string    `json:"user_id"`
	StageCode  string    `json:"stage_code"`
	LengthUsed int64     `json:"prompt_length"`
	TimeMS     int64     `json:"clear_time_ms"`
	RecordedAt time.Time `json:"recorded_at"`
}

type User struct {
	ID           string    `json:"user_id"`
	ProfileImage int       `json:"profile_image"`
	CreatedAt    time.Time `json:"created_at"`
}

// Dimension selects the value a ranking is computed over.
type Dimension int

const (
	ByTime Dimension = iota
	ByLength
)

func (d Dimension) String() string {
	switch d {
	case ByTime:
		return "clear_time_ms"
	case ByLength:
		return "prompt_length"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// Value returns the record's best value for the dimension.
func (r ProgressRecord) Value(d Dimension) *int64 {
	if d == ByLength {
		return r.BestLength
	}
	return r.BestTimeMS
}

// RankQuery asks how many other users beat (Value, ImprovedAt) on a stage.
type RankQuery struct {
	StageID    int
	UserID     string
	Dimension  Dimension
	Value      int64
	ImprovedAt time.Time
}

// Standing is a user's position in one dimension.
type Standing struct {
	Rank       int     `json:"rank"`
	Percentile float64 `json:"percentile"`
	Total      int     `json:"total"`
}

type LeaderboardEntry struct {
	UserID       string    `json:"user_id"`
	PromptLength *int64    `json:"prompt_length"`
	ClearTimeMS  *int64    `json:"clear_time_ms"`
	ProfileImage *int      `json:"profile_image"`
	ImprovedAt   time.Time `json:"-"`
}

type Leaderboards struct {
	PromptTop10 []LeaderboardEntry `json:"prompt_top10"`
	TimeTop10   []LeaderboardEntry `json:"time_top10"`
}

// RankResult is what a submitter gets back.
type RankResult struct {
	UserID         string
	StageCode      string
	Time           Standing
	Length         Standing
	BestTimeMS     int64
	BestLength     int64
	ImprovedTime   bool
	ImprovedLength bool
	ImprovedAt     *time.Time
	Leaderboards   Leaderboards
}

// Event is what observers receive for each accepted attempt.
type Event struct {
	UserID       string     `json:"user_id"`
	StageCode    string     `json:"stage_code"`
	PromptLength int64      `json:"prompt_length"`
	ClearTimeMS  int64      `json:"clear_time_ms"`
	ImprovedAt   *time.Time `json:"improved_at"`
	RecordedAt   time.Time  `json:"recorded_at"`
}

type StageProgress struct {
	Code         string     `json:"code"`
	Unlocked     bool       `json:"unlocked"`
	Cleared      bool       `json:"cleared"`
	PromptLength *int64     `json:"prompt_length"`
	ClearTimeMS  *int64     `json:"clear_time_ms"`
	ClearedAt    *time.Time `json:"cleared_at"`
}

type UserProgress struct {
	UserID       string          `json:"user_id"`
	ProfileImage int             `json:"profile_image"`
	Stages       []StageProgress `json:"stages"`
}

// Totals are catalog-wide counters used for dashboards.
type Totals struct {
	Users    int
	Attempts int
}
