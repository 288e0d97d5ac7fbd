package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// SettlementService defines what the settlement handler needs from the
// on-chain settlement consumer.
type SettlementService interface {
	Claimable(ctx context.Context, marketID uint64, user string) (domain.Claimable, error)
}

// SettlementHandler serves the read-only winnings projection for settled
// markets.
type SettlementHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlement SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		logger:     logger,
	}
}

// GetClaimable returns the winning-token balance a user can redeem on a
// settled market. For an unsettled market it returns resolved=false with a
// zero amount.
// GET /api/markets/{id}/claimable?user=0x...
func (h *SettlementHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	marketID, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	c, err := h.settlement.Claimable(r.Context(), marketID, user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: claimable lookup failed",
			slog.Uint64("market_id", marketID),
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeGuardError(w, err, "failed to compute claimable amount")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":     c.MarketID,
		"user":          c.User,
		"resolved":      c.Resolved,
		"outcome":       c.Outcome.String(),
		"winning_token": c.WinningToken,
		"amount":        c.Amount.String(),
	})
}
