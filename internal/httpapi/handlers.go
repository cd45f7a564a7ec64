package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: a.now().UTC(),
		Version:   a.version,
		Service:   serviceName,
	})
}

func (a *API) serverInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Service:         serviceName,
		Version:         a.version,
		Stages:          a.engine.Catalog().Len(),
		LeaderboardSize: progress.LeaderboardSize,
		Features: []string{
			"stage_progress",
			"time_and_length_rankings",
			"top10_leaderboards",
			"live_attempt_stream",
		},
	})
}

func (a *API) globalStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	if a.hub != nil {
		resp.Observers = a.hub.Len()
	}
	if a.stats != nil {
		totals, err := a.stats.Totals(r.Context())
		if err != nil {
			a.logger.Error("load totals", zap.Error(err))
			writeServiceError(w, err)
			return
		}
		resp.TotalUsers = totals.Users
		resp.TotalAttempts = totals.Attempts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listStages(w http.ResponseWriter, r *http.Request) {
	catalog := a.engine.Catalog()
	stages := catalog.Stages()
	out := make([]stageResponse, 0, len(stages))
	for _, st := range stages {
		item := stageResponse{Code: st.Code}
		if next, ok := catalog.Next(st.Code); ok {
			code := next.Code
			item.Next = &code
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) stageLeaderboard(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
	boards, err := a.engine.Leaderboard(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Stage: code, Leaderboards: boards})
}

func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	u, created, err := a.engine.Register(r.Context(), req.UserID, req.ProfileImage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, registerResponse{UserID: u.ID, Created: created, ProfileImage: u.ProfileImage})
}

func (a *API) setProfileImage(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	var req profileImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.ProfileImage == nil {
		writeBadRequest(w, "profile_image is required")
		return
	}
	if err := a.engine.SetProfileImage(r.Context(), userID, *req.ProfileImage); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileImageResponse{OK: true, UserID: strings.TrimSpace(userID), ProfileImage: *req.ProfileImage})
}

func (a *API) userProgress(w http.ResponseWriter, r *http.Request) {
	p, err := a.engine.Progress(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) submitRunLog(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	status, body := a.submit(r.Context(), req)
	writeJSON(w, status, body)
}

// submit runs one attempt and returns the HTTP status and body for it. Shared
// by the REST and websocket submission paths.
func (a *API) submit(ctx context.Context, req submitRequest) (int, any) {
	attempt, err := req.attempt()
	if err != nil {
		return serviceError(err)
	}
	res, err := a.engine.Submit(ctx, attempt)
	if err != nil {
		if progress.Retryable(err) {
			a.logger.Warn("submission failed",
				zap.String("user_id", attempt.UserID),
				zap.String("stage_code", attempt.StageCode),
				zap.Error(err),
			)
		}
		return serviceError(err)
	}
	return http.StatusOK, toSubmitResponse(res)
}
