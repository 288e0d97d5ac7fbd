package domain

import (
	"math/big"
	"time"
)

// MarketStatus mirrors the on-chain market lifecycle enum. The numeric values
// match the contract's enum ordering and must not be reordered.
type MarketStatus uint8

const (
	MarketOpen MarketStatus = iota
	MarketClosed
	MarketResolutionRequested
	MarketResolved
	MarketDisputed
)

// String returns the lowercase name used in logs and API payloads.
func (s MarketStatus) String() string {
	switch s {
	case MarketOpen:
		return "open"
	case MarketClosed:
		return "closed"
	case MarketResolutionRequested:
		return "resolution_requested"
	case MarketResolved:
		return "resolved"
	case MarketDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// MarketOutcome mirrors the on-chain outcome enum. Yes=1 and No=2 match the
// outcome indices used by the oracle API contract.
type MarketOutcome uint8

const (
	OutcomeUndecided MarketOutcome = iota
	OutcomeYes
	OutcomeNo
)

func (o MarketOutcome) String() string {
	switch o {
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	default:
		return "undecided"
	}
}

// Market is the on-chain prediction market as read by this service. The
// market contract owns this state; arbiterd only reads it and transitions
// status through the defined entry points (requestResolution, resolveMarket).
type Market struct {
	ID                   uint64
	Question             string
	EndTime              time.Time
	Status               MarketStatus
	Outcome              MarketOutcome
	YesToken             string
	NoToken              string
	ResolutionReason     string
	ResolutionConfidence uint8
}

// Claimable is the settlement projection for a user on a resolved market:
// the balance of winning-outcome tokens they hold and hence can redeem.
type Claimable struct {
	MarketID     uint64        `json:"market_id"`
	User         string        `json:"user"`
	Outcome      MarketOutcome `json:"outcome"`
	WinningToken string        `json:"winning_token"`
	Amount       *big.Int      `json:"amount"`
	Resolved     bool          `json:"resolved"`
}
