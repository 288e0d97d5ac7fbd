package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// DisputeService defines what the dispute handler needs from the registry.
// Declared locally so the handler package does not depend on the concrete
// registry implementation.
type DisputeService interface {
	CreateDispute(ctx context.Context, marketContract string, marketID uint64, disputer, reason string, stake *big.Int) (domain.Dispute, error)
	GetDisputeInfo(ctx context.Context, id int64) (domain.Dispute, error)
	GetMarketDispute(ctx context.Context, marketContract string, marketID uint64) (int64, error)
	VoteOnDispute(ctx context.Context, disputeID int64, voter string, side domain.VoteSide, stake *big.Int) (domain.Vote, error)
	GetVoteInfo(ctx context.Context, disputeID int64, voter string) (domain.Vote, error)
	CalculatePotentialWinnings(ctx context.Context, disputeID int64, voter string) (domain.Winnings, error)
	ClaimStake(ctx context.Context, disputeID int64, voter string) (*big.Int, error)
	FinalizeDispute(ctx context.Context, disputeID int64) (domain.Dispute, error)
	AuthorityResolveDispute(ctx context.Context, caller string, disputeID int64, acceptDispute bool, note string) (domain.Dispute, error)
	ListPayouts(ctx context.Context, disputeID int64) ([]domain.Payout, error)
}

// DisputeHandler serves the dispute registry HTTP endpoints.
type DisputeHandler struct {
	registry DisputeService
	logger   *slog.Logger
}

// NewDisputeHandler creates a DisputeHandler.
func NewDisputeHandler(registry DisputeService, logger *slog.Logger) *DisputeHandler {
	return &DisputeHandler{
		registry: registry,
		logger:   logger,
	}
}

// disputeResponse is the wire form of a dispute. Stake amounts are decimal
// wei strings to preserve full 256-bit precision.
type disputeResponse struct {
	ID               int64      `json:"id"`
	MarketContract   string     `json:"market_contract"`
	MarketID         uint64     `json:"market_id"`
	Disputer         string     `json:"disputer"`
	Reason           string     `json:"reason"`
	Status           string     `json:"status"`
	Outcome          string     `json:"outcome"`
	DisputeStake     string     `json:"dispute_stake"`
	TotalAcceptStake string     `json:"total_accept_stake"`
	TotalRejectStake string     `json:"total_reject_stake"`
	EscrowBalance    string     `json:"escrow_balance"`
	VotingEndTime    time.Time  `json:"voting_end_time"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func toDisputeResponse(d domain.Dispute) disputeResponse {
	return disputeResponse{
		ID:               d.ID,
		MarketContract:   d.MarketContract,
		MarketID:         d.MarketID,
		Disputer:         d.Disputer,
		Reason:           d.Reason,
		Status:           string(d.Status),
		Outcome:          string(d.Outcome),
		DisputeStake:     d.DisputeStake.String(),
		TotalAcceptStake: d.TotalAcceptStake.String(),
		TotalRejectStake: d.TotalRejectStake.String(),
		EscrowBalance:    d.EscrowBalance.String(),
		VotingEndTime:    d.VotingEndTime,
		CreatedAt:        d.CreatedAt,
		ResolvedAt:       d.ResolvedAt,
	}
}

type voteResponse struct {
	DisputeID int64     `json:"dispute_id"`
	Voter     string    `json:"voter"`
	Side      string    `json:"side"`
	Stake     string    `json:"stake"`
	Claimed   bool      `json:"claimed"`
	CreatedAt time.Time `json:"created_at"`
}

func toVoteResponse(v domain.Vote) voteResponse {
	return voteResponse{
		DisputeID: v.DisputeID,
		Voter:     v.Voter,
		Side:      string(v.Side),
		Stake:     v.Stake.String(),
		Claimed:   v.Claimed,
		CreatedAt: v.CreatedAt,
	}
}

type payoutResponse struct {
	ID        string    `json:"id"`
	DisputeID int64     `json:"dispute_id"`
	Voter     string    `json:"voter"`
	Amount    string    `json:"amount"`
	Forfeited bool      `json:"forfeited,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// parseStake parses a decimal wei string into a non-negative big.Int.
func parseStake(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

type createDisputeRequest struct {
	MarketContract string `json:"market_contract"`
	MarketID       uint64 `json:"market_id"`
	Disputer       string `json:"disputer"`
	Reason         string `json:"reason"`
	Stake          string `json:"stake"`
}

// CreateDispute opens a stake-backed dispute against a market resolution.
// POST /api/disputes
func (h *DisputeHandler) CreateDispute(w http.ResponseWriter, r *http.Request) {
	var req createDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MarketContract == "" || req.Disputer == "" {
		writeError(w, http.StatusBadRequest, "market_contract and disputer are required")
		return
	}
	stake, ok := parseStake(req.Stake)
	if !ok {
		writeError(w, http.StatusBadRequest, "stake must be a non-negative decimal wei string")
		return
	}

	d, err := h.registry.CreateDispute(r.Context(), req.MarketContract, req.MarketID, req.Disputer, req.Reason, stake)
	if err != nil {
		h.logFailure(r, "create dispute", err)
		writeGuardError(w, err, "failed to create dispute")
		return
	}

	writeJSON(w, http.StatusCreated, toDisputeResponse(d))
}

// GetDispute returns a dispute by ID.
// GET /api/disputes/{id}
func (h *DisputeHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	d, err := h.registry.GetDisputeInfo(r.Context(), id)
	if err != nil {
		writeGuardError(w, err, "failed to get dispute")
		return
	}

	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

// GetMarketDispute returns the open dispute for a market, if any.
// GET /api/markets/{contract}/{id}/dispute
func (h *DisputeHandler) GetMarketDispute(w http.ResponseWriter, r *http.Request) {
	contract := pathParam(r, "contract")
	marketID, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	id, err := h.registry.GetMarketDispute(r.Context(), contract, marketID)
	if err != nil {
		h.logFailure(r, "market dispute lookup", err)
		writeGuardError(w, err, "failed to look up market dispute")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_contract": contract,
		"market_id":       marketID,
		"dispute_id":      id,
		"has_dispute":     id != 0,
	})
}

type voteRequest struct {
	Voter string `json:"voter"`
	Side  string `json:"side"`
	Stake string `json:"stake"`
}

// CastVote records a stake-weighted vote on an open dispute.
// POST /api/disputes/{id}/votes
func (h *DisputeHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Voter == "" {
		writeError(w, http.StatusBadRequest, "voter is required")
		return
	}
	side := domain.VoteSide(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be accept or reject")
		return
	}
	stake, ok := parseStake(req.Stake)
	if !ok {
		writeError(w, http.StatusBadRequest, "stake must be a non-negative decimal wei string")
		return
	}

	v, err := h.registry.VoteOnDispute(r.Context(), id, req.Voter, side, stake)
	if err != nil {
		h.logFailure(r, "cast vote", err)
		writeGuardError(w, err, "failed to cast vote")
		return
	}

	writeJSON(w, http.StatusCreated, toVoteResponse(v))
}

// GetVote returns a voter's vote record on a dispute.
// GET /api/disputes/{id}/votes/{voter}
func (h *DisputeHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	v, err := h.registry.GetVoteInfo(r.Context(), id, pathParam(r, "voter"))
	if err != nil {
		writeGuardError(w, err, "failed to get vote")
		return
	}

	writeJSON(w, http.StatusOK, toVoteResponse(v))
}

// GetWinnings projects a voter's settlement on a dispute.
// GET /api/disputes/{id}/winnings/{voter}
func (h *DisputeHandler) GetWinnings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	win, err := h.registry.CalculatePotentialWinnings(r.Context(), id, pathParam(r, "voter"))
	if err != nil {
		writeGuardError(w, err, "failed to calculate winnings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dispute_id":      id,
		"amount":          win.Amount.String(),
		"is_winning_side": win.IsWinningSide,
	})
}

type claimRequest struct {
	Voter string `json:"voter"`
}

// ClaimStake settles a voter's stake on a finalized dispute.
// POST /api/disputes/{id}/claim
func (h *DisputeHandler) ClaimStake(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Voter == "" {
		writeError(w, http.StatusBadRequest, "voter is required")
		return
	}

	payout, err := h.registry.ClaimStake(r.Context(), id, req.Voter)
	if err != nil {
		h.logFailure(r, "claim stake", err)
		writeGuardError(w, err, "failed to claim stake")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dispute_id": id,
		"voter":      req.Voter,
		"payout":     payout.String(),
	})
}

// Finalize closes voting on a dispute whose deadline has passed.
// POST /api/disputes/{id}/finalize
func (h *DisputeHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	d, err := h.registry.FinalizeDispute(r.Context(), id)
	if err != nil {
		h.logFailure(r, "finalize dispute", err)
		writeGuardError(w, err, "failed to finalize dispute")
		return
	}

	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

type authorityResolveRequest struct {
	Caller        string `json:"caller"`
	AcceptDispute bool   `json:"accept_dispute"`
	Note          string `json:"note"`
}

// AuthorityResolve fixes a dispute outcome by authority override.
// POST /api/disputes/{id}/authority-resolve
func (h *DisputeHandler) AuthorityResolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	var req authorityResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Caller == "" {
		writeError(w, http.StatusBadRequest, "caller is required")
		return
	}

	d, err := h.registry.AuthorityResolveDispute(r.Context(), req.Caller, id, req.AcceptDispute, req.Note)
	if err != nil {
		h.logFailure(r, "authority resolve", err)
		writeGuardError(w, err, "failed to resolve dispute")
		return
	}

	writeJSON(w, http.StatusOK, toDisputeResponse(d))
}

// ListPayouts returns the settlement history for a dispute.
// GET /api/disputes/{id}/payouts
func (h *DisputeHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dispute id")
		return
	}

	ps, err := h.registry.ListPayouts(r.Context(), id)
	if err != nil {
		writeGuardError(w, err, "failed to list payouts")
		return
	}

	out := make([]payoutResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, payoutResponse{
			ID:        p.ID,
			DisputeID: p.DisputeID,
			Voter:     p.Voter,
			Amount:    p.Amount.String(),
			Forfeited: p.Forfeited,
			CreatedAt: p.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payouts": out})
}

// logFailure logs non-guard failures at error level; guard violations are
// expected traffic and logged at debug.
func (h *DisputeHandler) logFailure(r *http.Request, op string, err error) {
	if _, guard := guardStatus(err); guard {
		h.logger.DebugContext(r.Context(), "handler: "+op+" rejected",
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
		slog.String("error", err.Error()),
	)
}
