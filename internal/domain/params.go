package domain

import (
	"fmt"
	"math/big"
	"time"
)

// RegistryParams are the operator-configurable parameters of the dispute
// registry. PlatformFeeBps is an operational parameter, not a protocol
// constant; the settlement formula itself is fixed.
type RegistryParams struct {
	MinimumDisputeStake *big.Int
	MinimumVoteStake    *big.Int
	VotingPeriod        time.Duration
	PlatformFeeBps      int64
	ResolutionAuthority string
}

// Validate checks that the parameters are internally consistent.
func (p RegistryParams) Validate() error {
	if p.MinimumDisputeStake == nil || p.MinimumDisputeStake.Sign() <= 0 {
		return fmt.Errorf("minimum dispute stake must be positive")
	}
	if p.MinimumVoteStake == nil || p.MinimumVoteStake.Sign() <= 0 {
		return fmt.Errorf("minimum vote stake must be positive")
	}
	if p.VotingPeriod <= 0 {
		return fmt.Errorf("voting period must be positive")
	}
	if p.PlatformFeeBps < 0 || p.PlatformFeeBps >= 10_000 {
		return fmt.Errorf("platform fee bps must be in [0, 10000)")
	}
	if p.ResolutionAuthority == "" {
		return fmt.Errorf("resolution authority must be set")
	}
	return nil
}
