// Package withdraw computes fee-aware withdrawal plans against the current
// network fee snapshot.
//
// All amounts are integer satoshis. Fee rates are decimal sat/vB and the
// estimated fee always rounds up: under-estimating a fee produces a
// transaction that never confirms, so the rounding direction is a
// correctness requirement.
//
// The planner only computes; it never touches the chain. Broadcasting is
// out of scope.
package withdraw

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/btcfolio/portfolio-engine/internal/model"
)

var (
	// ErrInsufficientAmountForFee is returned when the estimated fee
	// exceeds the requested amount. The caller gets a failure, not a plan
	// with a clamped zero.
	ErrInsufficientAmountForFee = errors.New("withdraw: requested amount insufficient to cover fee")

	// ErrEmptyFeeSnapshot is returned when the feed supplied no tiers.
	ErrEmptyFeeSnapshot = errors.New("withdraw: fee snapshot has no tiers")

	// ErrNoTierForUrgency is returned when no tier meets the caller's
	// confirmation-target preference.
	ErrNoTierForUrgency = errors.New("withdraw: no fee tier satisfies urgency preference")

	// ErrInvalidTxSize is returned for a non-positive transaction size.
	ErrInvalidTxSize = errors.New("withdraw: transaction size must be positive")

	// ErrInvalidAmount is returned for a non-positive requested amount.
	ErrInvalidAmount = errors.New("withdraw: requested amount must be positive")
)

// ETADelayed is the label used when congestion invalidates a tier's
// nominal confirmation target.
const ETADelayed = "delayed (network congested)"

// Urgency is the caller's confirmation-speed preference: the maximum
// acceptable nominal confirmation target in blocks. The zero value accepts
// any target, which resolves to the cheapest tier.
type Urgency struct {
	MaxTargetBlocks int
}

// Planner selects fee tiers and prices withdrawal plans. The congestion
// threshold is explicit configuration: when the mempool backlog exceeds
// it, nominal confirmation targets stop being credible and the ETA label
// is downgraded regardless of the chosen tier.
type Planner struct {
	congestionThresholdVBytes int64
}

// NewPlanner creates a planner with the given congestion threshold in
// pending virtual bytes.
func NewPlanner(congestionThresholdVBytes int64) *Planner {
	return &Planner{congestionThresholdVBytes: congestionThresholdVBytes}
}

// Plan computes a withdrawal plan for requestedSats given the fee snapshot
// and an estimated transaction size in virtual bytes.
//
// Tier policy: the lowest-rate tier whose nominal confirmation target does
// not exceed the urgency preference. fee = ceil(txVBytes × rate).
func (p *Planner) Plan(requestedSats int64, snap model.FeeSnapshot, txVBytes int64, urgency Urgency) (model.WithdrawalPlan, error) {
	if requestedSats <= 0 {
		return model.WithdrawalPlan{}, fmt.Errorf("%w: %d", ErrInvalidAmount, requestedSats)
	}
	if txVBytes <= 0 {
		return model.WithdrawalPlan{}, fmt.Errorf("%w: %d", ErrInvalidTxSize, txVBytes)
	}
	if len(snap.Tiers) == 0 {
		return model.WithdrawalPlan{}, ErrEmptyFeeSnapshot
	}

	tier, err := selectTier(snap.Tiers, urgency)
	if err != nil {
		return model.WithdrawalPlan{}, err
	}

	fee := estimateFee(txVBytes, tier.SatPerVByte)
	net := requestedSats - fee
	if net < 0 {
		return model.WithdrawalPlan{}, fmt.Errorf("%w: fee %d sats exceeds requested %d sats",
			ErrInsufficientAmountForFee, fee, requestedSats)
	}

	return model.WithdrawalPlan{
		RequestedSats:    requestedSats,
		EstimatedFeeSats: fee,
		NetSats:          net,
		Tier:             tier.Name,
		ETA:              p.eta(tier, snap),
	}, nil
}

// selectTier picks the cheapest tier whose confirmation target satisfies
// the urgency preference.
func selectTier(tiers []model.FeeTier, urgency Urgency) (model.FeeTier, error) {
	var best model.FeeTier
	found := false
	for _, t := range tiers {
		if urgency.MaxTargetBlocks > 0 && t.TargetBlocks > urgency.MaxTargetBlocks {
			continue
		}
		if !found || t.SatPerVByte.LessThan(best.SatPerVByte) {
			best = t
			found = true
		}
	}
	if !found {
		return model.FeeTier{}, fmt.Errorf("%w: max %d blocks", ErrNoTierForUrgency, urgency.MaxTargetBlocks)
	}
	return best, nil
}

// estimateFee returns ceil(txVBytes × rate) in whole satoshis.
func estimateFee(txVBytes int64, satPerVByte decimal.Decimal) int64 {
	return decimal.NewFromInt(txVBytes).Mul(satPerVByte).Ceil().IntPart()
}

// eta derives the qualitative confirmation label. The selected tier's rate
// is compared against faster tiers: paying at or above a faster tier's
// rate earns that tier's target. Congestion above the threshold overrides
// everything: a backed-up mempool makes every nominal target open-ended.
func (p *Planner) eta(selected model.FeeTier, snap model.FeeSnapshot) string {
	if p.congestionThresholdVBytes > 0 && snap.PendingVBytes > p.congestionThresholdVBytes {
		return ETADelayed
	}

	target := selected.TargetBlocks
	for _, t := range snap.Tiers {
		if t.TargetBlocks < target && !selected.SatPerVByte.LessThan(t.SatPerVByte) {
			target = t.TargetBlocks
		}
	}

	if target == 1 {
		return "~1 block"
	}
	return fmt.Sprintf("~%d blocks", target)
}
