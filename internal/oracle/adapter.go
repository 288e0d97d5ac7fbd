package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veritaslabs/arbiterd/internal/domain"
)

const resolveSystemPrompt = `You are a prediction market resolution oracle.
Given a market question and its end time, determine the factual outcome as of
the end time using current information. Respond with ONLY a JSON object:
{"outcome": "yes" | "no" | null, "confidence": 0-100, "reason": "...",
"evidence": "..."}. Use null outcome when the event has not concluded or the
answer cannot be established with certainty. Never guess.`

const validateSystemPrompt = `You are a prediction market question validator.
Given a proposed market question and its end time, judge whether it describes
a future event with a verifiable yes/no outcome that is not already decided.
Respond with ONLY a JSON object: {"valid": true | false, "reason": "...",
"category": "...", "event_analysis": "..."}.`

// Adapter combines the LLM reasoner and the optional price client into the
// resolution oracle. All failure modes are soft: transport errors, malformed
// replies, and undecided verdicts produce a nil outcome with APIError or zero
// confidence, never an error that could halt the poller.
type Adapter struct {
	llm    *LLMClient
	price  *PriceClient
	logger *slog.Logger

	now func() time.Time
}

// NewAdapter creates an Adapter. price may be nil to disable enrichment.
func NewAdapter(llm *LLMClient, price *PriceClient, logger *slog.Logger) *Adapter {
	return &Adapter{
		llm:    llm,
		price:  price,
		logger: logger.With(slog.String("component", "oracle")),
		now:    time.Now,
	}
}

// llmVerdict is the JSON shape the reasoner is instructed to emit for
// resolution requests.
type llmVerdict struct {
	Outcome    *string  `json:"outcome"`
	Confidence int      `json:"confidence"`
	Reason     string   `json:"reason"`
	Evidence   string   `json:"evidence"`
	Sources    []string `json:"sources"`
}

// Resolve asks the oracle for the outcome of a market question. The returned
// resolution has a nil Outcome whenever the oracle cannot decide.
func (a *Adapter) Resolve(ctx context.Context, question string, endTime time.Time, marketID uint64) domain.OracleResolution {
	prompt := fmt.Sprintf("Market question: %s\nMarket end time: %s\nCurrent time: %s",
		question, endTime.UTC().Format(time.RFC3339), a.now().UTC().Format(time.RFC3339))

	// Price enrichment is best-effort: a fetch failure only omits the line.
	if enrichment := a.priceContext(ctx, question); enrichment != "" {
		prompt = enrichment + "\n" + prompt
	}

	content, citations, err := a.llm.Complete(ctx, resolveSystemPrompt, prompt)
	if err != nil {
		a.logger.WarnContext(ctx, "oracle call failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return domain.OracleResolution{ResolvedAt: a.now().UTC(), APIError: true}
	}

	var verdict llmVerdict
	if err := json.Unmarshal([]byte(extractJSON(content)), &verdict); err != nil {
		a.logger.WarnContext(ctx, "oracle returned malformed verdict",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return domain.OracleResolution{ResolvedAt: a.now().UTC(), APIError: true}
	}

	res := domain.OracleResolution{
		Confidence: clampConfidence(verdict.Confidence),
		Reason:     verdict.Reason,
		Evidence:   verdict.Evidence,
		Sources:    append(verdict.Sources, citations...),
		ResolvedAt: a.now().UTC(),
	}

	if verdict.Outcome != nil {
		switch strings.ToLower(strings.TrimSpace(*verdict.Outcome)) {
		case "yes":
			outcome := domain.OutcomeYes
			res.Outcome = &outcome
		case "no":
			outcome := domain.OutcomeNo
			res.Outcome = &outcome
		}
	}

	return res
}

// Validate asks the oracle whether a proposed market question is well-formed
// and not already decided. Errors surface as an invalid result with APIError
// set rather than a hard failure.
func (a *Adapter) Validate(ctx context.Context, question string, endTime time.Time, initialYes, initialNo string) domain.ValidationResult {
	prompt := fmt.Sprintf(
		"Proposed question: %s\nEnd time: %s\nInitial yes liquidity: %s\nInitial no liquidity: %s\nCurrent time: %s",
		question, endTime.UTC().Format(time.RFC3339), initialYes, initialNo,
		a.now().UTC().Format(time.RFC3339))

	content, _, err := a.llm.Complete(ctx, validateSystemPrompt, prompt)
	if err != nil {
		a.logger.WarnContext(ctx, "validation call failed", slog.String("error", err.Error()))
		return domain.ValidationResult{Valid: false, Reason: "validation service unavailable", APIError: true}
	}

	var out domain.ValidationResult
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		a.logger.WarnContext(ctx, "validation returned malformed verdict", slog.String("error", err.Error()))
		return domain.ValidationResult{Valid: false, Reason: "malformed validation response", APIError: true}
	}
	return out
}

// priceContext returns a context line with the asset's spot price when the
// question references a known crypto asset, or "" when it does not or the
// fetch fails.
func (a *Adapter) priceContext(ctx context.Context, question string) string {
	if a.price == nil {
		return ""
	}
	coinID, label, ok := detectAsset(question)
	if !ok {
		return ""
	}

	usd, err := a.price.SpotPriceUSD(ctx, coinID)
	if err != nil {
		a.logger.DebugContext(ctx, "price enrichment skipped",
			slog.String("asset", coinID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return fmt.Sprintf("Current %s spot price: $%.2f USD.", label, usd)
}

// extractJSON strips markdown code fences and surrounding prose so the
// verdict can be decoded even when the model wraps it.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}

func clampConfidence(c int) uint8 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return uint8(c)
}
