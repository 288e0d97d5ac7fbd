package domain

import "time"

// OracleResolution is the oracle's claimed outcome for a market question.
// Outcome is nil whenever the oracle cannot or should not decide: transport
// failure, malformed response, or an explicit "undecided" verdict. The
// adapter never guesses.
type OracleResolution struct {
	Outcome    *MarketOutcome `json:"outcome"`
	Confidence uint8          `json:"confidence"` // 0-100
	Reason     string         `json:"reason"`
	Sources    []string       `json:"sources"`
	Evidence   string         `json:"evidence,omitempty"`
	ResolvedAt time.Time      `json:"resolved_at"`
	APIError   bool           `json:"api_error,omitempty"`
}

// Decided reports whether the oracle produced a usable verdict.
func (r OracleResolution) Decided() bool {
	return r.Outcome != nil && *r.Outcome != OutcomeUndecided
}

// ValidationResult is the oracle's verdict on a proposed market question,
// used at market-creation time to reject already-resolved or ill-formed
// questions. Adapter errors surface as Valid=false with APIError=true rather
// than a hard failure.
type ValidationResult struct {
	Valid             bool   `json:"valid"`
	Reason            string `json:"reason"`
	Category          string `json:"category,omitempty"`
	EventAnalysis     string `json:"event_analysis,omitempty"`
	ValidationDetails string `json:"validation_details,omitempty"`
	APIError          bool   `json:"api_error,omitempty"`
}
