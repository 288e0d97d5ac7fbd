package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// EvidenceHandler serves archived oracle evidence and dispute snapshots from
// cold storage.
type EvidenceHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewEvidenceHandler creates an EvidenceHandler.
func NewEvidenceHandler(blobs domain.BlobReader, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{
		blobs:  blobs,
		logger: logger.With(slog.String("component", "evidence_handler")),
	}
}

// ListMarketEvidence handles GET /api/markets/{id}/evidence. It returns the
// archive keys of every resolution evidence document stored for the market.
func (h *EvidenceHandler) ListMarketEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	prefix := "evidence/markets/" + pathParam(r, "id") + "/"
	keys, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "evidence listing failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list evidence")
		return
	}
	if keys == nil {
		keys = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"keys":      keys,
	})
}

// GetArchiveObject handles GET /api/evidence?key=... . It streams an archived
// document back to the client. Only keys under the archive prefixes are
// served.
func (h *EvidenceHandler) GetArchiveObject(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key parameter")
		return
	}
	if !strings.HasPrefix(key, "evidence/") && !strings.HasPrefix(key, "archive/") {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	data, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "object not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "archive fetch failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch object")
		return
	}

	contentType := "application/json; charset=utf-8"
	if strings.HasSuffix(key, ".jsonl") {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
