/*

This file contains the pool-side data model: the reward-bearing buckets users
stake into, and the per-pool accumulator state driving proportional emission.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// PoolID identifies a staking pool by its index in the append-only pool list.
type PoolID uint64

// Pool is a reward-bearing bucket with its own emission weight and time lock.
type Pool struct {
	ID PoolID `json:"id"`

	// AllocWeight is the pool's relative share of the per-block emission.
	AllocWeight uint64 `json:"alloc_weight"`

	// TimeLock is the minimum holding duration before withdrawal is permitted.
	TimeLock time.Duration `json:"time_lock"`

	// AccRewardPerShare is the monotonic accumulator enabling O(1)
	// proportional reward computation. Only grows while TotalStaked > 0.
	AccRewardPerShare sdkmath.LegacyDec `json:"acc_reward_per_share"`

	// TotalStaked is the sum of all participants' share weight
	// (one-sided protected value + directly held LP receipts).
	TotalStaked sdkmath.Int `json:"total_staked"`

	// LastAccrualBlock is the height up to which emission has been accounted.
	LastAccrualBlock int64 `json:"last_accrual_block"`
}

// NewPool returns a pool with zeroed accumulator state.
func NewPool(id PoolID, allocWeight uint64, timeLock time.Duration, height int64) *Pool {
	return &Pool{
		ID:                id,
		AllocWeight:       allocWeight,
		TimeLock:          timeLock,
		AccRewardPerShare: sdkmath.LegacyZeroDec(),
		TotalStaked:       sdkmath.ZeroInt(),
		LastAccrualBlock:  height,
	}
}
