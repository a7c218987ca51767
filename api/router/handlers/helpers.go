package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"headerswitch/core"
	"headerswitch/logger"
	"headerswitch/models"
)

// API carries what the handlers operate on.
type API struct {
	Profiles     *core.ProfileStore
	Engine       *core.MemoryEngine
	Settings     core.KeyValueStore
	LiveRulesKey string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}

// statusForError maps store errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateName), errors.Is(err, core.ErrLastProfile):
		return http.StatusConflict
	case errors.Is(err, core.ErrIndexOutOfRange), errors.Is(err, core.ErrInvalidField):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeStoreError(w http.ResponseWriter, handler string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error("%s: %v", handler, err)
	} else {
		logger.Debug("%s: %v", handler, err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
