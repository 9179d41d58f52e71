package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/prenos/internal/lock"
	"github.com/erazemk/prenos/internal/transfer"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// serviceError maps an error returned by the transfer service to a response.
// Domain errors carry a message fit for the client; anything else is logged
// and reported generically.
func serviceError(w http.ResponseWriter, err error, msg string) {
	var status int
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, transfer.ErrConflict), errors.Is(err, transfer.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, transfer.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, transfer.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, lock.ErrBusy):
		jsonError(w, http.StatusConflict, "transfer is being executed, try again")
		return
	default:
		slog.Error(msg, "error", err)
		jsonError(w, http.StatusInternalServerError, msg)
		return
	}
	jsonError(w, status, err.Error())
}
