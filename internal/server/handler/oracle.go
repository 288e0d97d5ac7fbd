package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

// OracleService defines what the oracle handler needs from the adapter.
type OracleService interface {
	Resolve(ctx context.Context, question string, endTime time.Time, marketID uint64) domain.OracleResolution
	Validate(ctx context.Context, question string, endTime time.Time, initialYes, initialNo string) domain.ValidationResult
}

// OracleHandler serves on-demand oracle resolution and validation endpoints,
// mirroring what the poller does automatically. The wire format matches the
// dApp's existing oracle contract: camelCase fields, outcome as the on-chain
// index (1=yes, 2=no) or null.
type OracleHandler struct {
	oracle OracleService
	logger *slog.Logger
}

// NewOracleHandler creates an OracleHandler.
func NewOracleHandler(oracle OracleService, logger *slog.Logger) *OracleHandler {
	return &OracleHandler{
		oracle: oracle,
		logger: logger,
	}
}

type resolveRequest struct {
	Question string    `json:"question"`
	EndTime  time.Time `json:"endTime"`
	MarketID uint64    `json:"marketId"`
}

type resolveResponse struct {
	Success    bool      `json:"success"`
	Outcome    *uint8    `json:"outcome"` // 1=yes, 2=no, null=cannot resolve
	Confidence uint8     `json:"confidence"`
	Reason     string    `json:"reason"`
	Sources    []string  `json:"sources"`
	Evidence   string    `json:"evidence,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt"`
	APIError   bool      `json:"apiError,omitempty"`
}

// ResolveMarket asks the oracle for a verdict on a market question. Soft
// oracle failures (undecided, API error) are 200 responses: the caller
// inspects the verdict, exactly as the poller does.
// POST /api/resolveMarket
func (h *OracleHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	res := h.oracle.Resolve(r.Context(), req.Question, req.EndTime, req.MarketID)

	h.logger.InfoContext(r.Context(), "handler: oracle resolve",
		slog.Uint64("market_id", req.MarketID),
		slog.Bool("decided", res.Decided()),
		slog.Int("confidence", int(res.Confidence)),
		slog.Bool("api_error", res.APIError),
	)

	var outcome *uint8
	if res.Outcome != nil {
		idx := uint8(*res.Outcome)
		outcome = &idx
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Success:    !res.APIError,
		Outcome:    outcome,
		Confidence: res.Confidence,
		Reason:     res.Reason,
		Sources:    res.Sources,
		Evidence:   res.Evidence,
		ResolvedAt: res.ResolvedAt,
		APIError:   res.APIError,
	})
}

type validateRequest struct {
	Question   string    `json:"question"`
	EndTime    time.Time `json:"endTime"`
	InitialYes string    `json:"initialYes"`
	InitialNo  string    `json:"initialNo"`
}

type validateResponse struct {
	Valid             bool   `json:"valid"`
	Reason            string `json:"reason"`
	Category          string `json:"category,omitempty"`
	EventAnalysis     string `json:"eventAnalysis,omitempty"`
	ValidationDetails string `json:"validationDetails,omitempty"`
	APIError          bool   `json:"apiError,omitempty"`
}

// ValidateMarket checks a proposed market question before creation. Adapter
// failures come back as {valid:false, apiError:true}, never an error status.
// POST /api/validateMarket
func (h *OracleHandler) ValidateMarket(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	res := h.oracle.Validate(r.Context(), req.Question, req.EndTime, req.InitialYes, req.InitialNo)
	writeJSON(w, http.StatusOK, validateResponse{
		Valid:             res.Valid,
		Reason:            res.Reason,
		Category:          res.Category,
		EventAnalysis:     res.EventAnalysis,
		ValidationDetails: res.ValidationDetails,
		APIError:          res.APIError,
	})
}
