package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/models"
)

const maxBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodePatch reads and validates a patch body. When optional is set an
// empty body is an empty patch.
func decodePatch(w http.ResponseWriter, r *http.Request, optional bool) (models.Patch, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var patch models.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return models.Patch{}, true
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return models.Patch{}, false
	}
	patch.SelectedBy = nil
	if err := board.ValidatePatch(&patch); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return models.Patch{}, false
	}
	return patch, true
}
