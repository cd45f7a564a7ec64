package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dalgonaburger/stageboard/internal/progress"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// serviceError maps a domain error onto a status code and a client-facing body.
func serviceError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, progress.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.Is(err, progress.ErrUnknownStage):
		return http.StatusBadRequest, errorResponse{Error: "unknown stage_code"}
	case errors.Is(err, progress.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "user not found"}
	case errors.Is(err, progress.ErrTimeout):
		return http.StatusGatewayTimeout, errorResponse{Error: "submission timed out, try again", Retryable: true}
	case errors.Is(err, progress.ErrStorage):
		return http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable, try again", Retryable: true}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "request failed"}
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, body := serviceError(err)
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	return decodeReader(io.LimitReader(r.Body, maxBodyBytes), dst)
}

func decodeReader(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", progress.ErrValidation, err)
	}
	return nil
}

// attempt validates the wire shape and returns the engine input.
func (req submitRequest) attempt() (progress.Attempt, error) {
	length := req.PromptLength
	if length == nil {
		length = req.LengthUsed
	}
	if length == nil {
		return progress.Attempt{}, fmt.Errorf("%w: prompt_length is required", progress.ErrValidation)
	}
	if req.ClearTimeMS == nil {
		return progress.Attempt{}, fmt.Errorf("%w: clear_time_ms is required", progress.ErrValidation)
	}
	a := progress.Attempt{
		UserID:     strings.TrimSpace(req.UserID),
		StageCode:  strings.TrimSpace(req.StageCode),
		LengthUsed: *length,
		TimeMS:     *req.ClearTimeMS,
	}
	if err := a.Validate(); err != nil {
		return progress.Attempt{}, err
	}
	if err := progress.ValidateStageCode(a.StageCode); err != nil {
		return progress.Attempt{}, err
	}
	return a, nil
}
