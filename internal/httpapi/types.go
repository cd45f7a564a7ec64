package httpapi

import (
	"time"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

type errorResponse struct {
	Ack       bool   `json:"ack"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Service   string    `json:"service"`
}

type infoResponse struct {
	Service         string   `json:"service"`
	Version         string   `json:"version"`
	Stages          int      `json:"stages"`
	LeaderboardSize int      `json:"leaderboard_size"`
	Features        []string `json:"features"`
}

type statsResponse struct {
	TotalUsers    int `json:"total_users"`
	TotalAttempts int `json:"total_attempts"`
	Observers     int `json:"observers"`
}

type stageResponse struct {
	Code string  `json:"code"`
	Next *string `json:"next"`
}

type registerRequest struct {
	UserID       string `json:"user_id"`
	ProfileImage *int   `json:"profile_image"`
}

type registerResponse struct {
	UserID       string `json:"user_id"`
	Created      bool   `json:"created"`
	ProfileImage int    `json:"profile_image"`
}

type profileImageRequest struct {
	ProfileImage *int `json:"profile_image"`
}

type profileImageResponse struct {
	OK           bool   `json:"ok"`
	UserID       string `json:"user_id"`
	ProfileImage int    `json:"profile_image"`
}

// submitRequest accepts length_used as an alias of prompt_length.
type submitRequest struct {
	UserID       string `json:"user_id"`
	StageCode    string `json:"stage_code"`
	PromptLength *int64 `json:"prompt_length"`
	LengthUsed   *int64 `json:"length_used"`
	ClearTimeMS  *int64 `json:"clear_time_ms"`
}

type submitResponse struct {
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
	ReceivedText         string                `json:"received_text"`
	Leaderboards         progress.Leaderboards `json:"leaderboards"`
}

func toSubmitResponse(res progress.RankResult) submitResponse {
	return submitResponse{
		Ack:                  true,
		UserID:               res.UserID,
		Stage:                res.StageCode,
		RankClearTimePercent: res.Time.Percentile,
		RankTokensPercent:    res.Length.Percentile,
		RankClearTime:        res.Time.Rank,
		RankTokens:           res.Length.Rank,
		TotalRecords:         res.Time.Total,
		TotalRecordsTokens:   res.Length.Total,
		BestClearTimeMS:      res.BestTimeMS,
		BestPromptLength:     res.BestLength,
		ImprovedTime:         res.ImprovedTime,
		ImprovedLength:       res.ImprovedLength,
		ReceivedText:         "ok",
		Leaderboards:         res.Leaderboards,
	}
}

type leaderboardResponse struct {
	Stage        string                `json:"stage"`
	Leaderboards progress.Leaderboards `json:"leaderboards"`
}
