package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cma2819/relaying-raids/relay"
	"github.com/cma2819/relaying-raids/telemetry"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusForKind maps relay error kinds to HTTP statuses.
func statusForKind(kind relay.Kind) int {
	switch kind {
	case relay.KindNotFound:
		return http.StatusNotFound
	case relay.KindUnauthorized:
		return http.StatusForbidden
	case relay.KindValidation, relay.KindNoNextParticipant:
		return http.StatusUnprocessableEntity
	case relay.KindSlugConflict:
		return http.StatusConflict
	case relay.KindAuthExpired:
		return http.StatusUnauthorized
	case relay.KindExternalCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps an error to its HTTP response. Relay errors keep their
// message and kind; anything else becomes an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var re *relay.Error
	if errors.As(err, &re) {
		writeJSON(w, statusForKind(re.Kind), errorBody{
			Error:  re.Message,
			Kind:   string(re.Kind),
			Fields: re.Fields,
		})
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Error("request failed",
		slog.String("path", r.URL.Path), slog.Any("err", err), slog.String("component", "http"))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// decodeJSON decodes the request body into v with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return false
	}
	return true
}
