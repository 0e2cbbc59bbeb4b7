/*

This file contains the per-user position state: stake composition, reward-debt
bookkeeping, and the IL-compensation claim lifecycle attached to each position.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// CompensationState tracks where a position's IL compensation claim sits in
// the pipeline between this engine and the external protection protocol.
type CompensationState string

const (
	CompensationNone              CompensationState = "NONE"
	CompensationWithdrawRequested CompensationState = "WITHDRAW_REQUESTED"
	CompensationPendingInProtocol CompensationState = "PENDING_IN_PROTOCOL"
	CompensationInLocalReserve    CompensationState = "IN_LOCAL_RESERVE"
	CompensationSettled           CompensationState = "SETTLED"
)

// UserPosition is the per-(pool, participant) stake record. Positions are
// created lazily on first stake and zeroed rather than deleted so that
// reward-debt continuity is preserved across full exits.
type UserPosition struct {
	Pool    PoolID `json:"pool"`
	Account string `json:"account"`

	// OneSidedValue is the protection protocol's valuation of the user's
	// one-sided base-asset deposits, in protected-liquidity units. It is not
	// the raw deposited amount; it reflects the AMM reserve ratio at deposit.
	OneSidedValue sdkmath.Int `json:"one_sided_value"`

	// LpAmount is the directly deposited LP receipt balance.
	LpAmount sdkmath.Int `json:"lp_amount"`

	// RewardDebt is the accumulator snapshot (share weight x AccRewardPerShare)
	// taken at the last interaction; newly accrued reward is the difference.
	RewardDebt sdkmath.LegacyDec `json:"reward_debt"`

	// PendingReward holds reward settled by stake/unstake touches but not yet
	// paid out. Payout happens only through Harvest.
	PendingReward sdkmath.Int `json:"pending_reward"`

	// ClaimableCompensation is IL compensation owed to the user but not yet
	// paid out of the local reserve.
	ClaimableCompensation sdkmath.Int `json:"claimable_compensation"`

	// DepositedBase is the raw base asset behind OneSidedValue, used to size
	// the base-leg shortfall top-up on withdrawal.
	DepositedBase sdkmath.Int `json:"deposited_base"`

	// ProtectionPositions are the external protocol's ids for the protected
	// positions backing OneSidedValue. Full one-sided withdrawal removes all
	// of them.
	ProtectionPositions []uint64 `json:"protection_positions,omitempty"`

	// StakeTime is the last time the position size increased; timelock checks
	// gate on it.
	StakeTime time.Time `json:"stake_time"`

	CompensationState CompensationState `json:"compensation_state"`
}

// NewUserPosition returns a zeroed position for (pool, account).
func NewUserPosition(pool PoolID, account string) *UserPosition {
	return &UserPosition{
		Pool:                  pool,
		Account:               account,
		OneSidedValue:         sdkmath.ZeroInt(),
		LpAmount:              sdkmath.ZeroInt(),
		RewardDebt:            sdkmath.LegacyZeroDec(),
		PendingReward:         sdkmath.ZeroInt(),
		ClaimableCompensation: sdkmath.ZeroInt(),
		DepositedBase:         sdkmath.ZeroInt(),
		CompensationState:     CompensationNone,
	}
}

// ShareWeight is the position's total weight used for reward accrual:
// one-sided protected value plus directly held LP receipts.
func (p *UserPosition) ShareWeight() sdkmath.Int {
	return p.OneSidedValue.Add(p.LpAmount)
}

// Empty reports whether the position carries no stake. Empty positions bypass
// withdrawal timelocks since there is nothing to lock.
func (p *UserPosition) Empty() bool {
	return p.ShareWeight().IsZero()
}
