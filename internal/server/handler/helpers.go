package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// writeJSON marshals v as JSON and writes it with the given status code. If
// marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// guardStatus maps a registry guard violation to its HTTP status. Guard
// errors are surfaced to clients verbatim; anything unrecognized is an
// internal error.
func guardStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoVoteRecord):
		return http.StatusNotFound, true
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, true
	case errors.Is(err, domain.ErrInsufficientStake),
		errors.Is(err, domain.ErrBelowMinimumVoteStake):
		return http.StatusBadRequest, true
	case errors.Is(err, domain.ErrDuplicateActiveDispute),
		errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyFinalized):
		return http.StatusConflict, true
	case errors.Is(err, domain.ErrDisputeNotActive),
		errors.Is(err, domain.ErrVotingStillOpen),
		errors.Is(err, domain.ErrDisputeNotFinalized),
		errors.Is(err, domain.ErrLosingSideForfeits):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

// writeGuardError writes a guard violation with its mapped status, or a
// generic 500 with the fallback message for unexpected errors.
func writeGuardError(w http.ResponseWriter, err error, fallback string) {
	if status, ok := guardStatus(err); ok {
		writeError(w, status, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, fallback)
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter (Go 1.22+ routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(pathParam(r, name), 10, 64)
}
