/*

This file contains the user-facing staking operations: both stake legs, their
withdrawals, reward harvesting, and the read-only pending-reward projection.

Reward settlement policy: stake and unstake only move accrued reward into the
position's pending bucket and rebase the reward debt. Reward tokens leave the
reserve exclusively through Harvest.

*/

package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/types"
)

// StakeLpReceipt pulls LP receipts from the staker into the given pool.
func (e *Engine) StakeLpReceipt(poolID types.PoolID, account string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pool(poolID)
	if err != nil {
		return err
	}
	if err := e.bank.Transfer(account, e.account, bank.NewCoin(bank.DenomLpReceipt, amount)); err != nil {
		return fmt.Errorf("stake lp: %w", err)
	}

	e.accrue(pool)
	pos := e.position(poolID, account)
	e.settle(pool, pos)

	pos.LpAmount = pos.LpAmount.Add(amount)
	pool.TotalStaked = pool.TotalStaked.Add(amount)
	pos.StakeTime = e.chain.Now()
	e.rebase(pool, pos)

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventStakeLp,
		Pool:    poolID,
		Account: account,
		Amount:  amount,
	})
	return nil
}

// UnstakeLpReceipt returns amount LP receipts to the staker. Gated by the
// pool timelock unless the position is already empty.
func (e *Engine) UnstakeLpReceipt(poolID types.PoolID, account string, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pool(poolID)
	if err != nil {
		return err
	}
	pos := e.position(poolID, account)
	if amount.GT(pos.LpAmount) {
		return fmt.Errorf("unstake lp: have %s, want %s: %w", pos.LpAmount, amount, ErrInsufficientStake)
	}
	if err := e.checkTimelock(pool, pos); err != nil {
		return fmt.Errorf("unstake lp: %w", err)
	}

	if err := e.bank.Transfer(e.account, account, bank.NewCoin(bank.DenomLpReceipt, amount)); err != nil {
		return fmt.Errorf("unstake lp: %w", err)
	}

	e.accrue(pool)
	e.settle(pool, pos)

	pos.LpAmount = pos.LpAmount.Sub(amount)
	pool.TotalStaked = pool.TotalStaked.Sub(amount)
	e.rebase(pool, pos)

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventUnstakeLp,
		Pool:    poolID,
		Account: account,
		Amount:  amount,
	})
	return nil
}

// StakeOneSided pulls base asset from the staker, opens a protected position
// in the external protocol, and credits the protocol-reported protected value
// to the position. The credited value reflects the pair's reserve ratio at
// deposit time, not the raw amount.
func (e *Engine) StakeOneSided(poolID types.PoolID, account string, baseAmount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pool(poolID)
	if err != nil {
		return err
	}
	if err := e.bank.Transfer(account, e.account, bank.NewCoin(bank.DenomBase, baseAmount)); err != nil {
		return fmt.Errorf("stake one-sided: %w", err)
	}

	res, err := e.protocol.AddLiquidity(e.account, baseAmount)
	if err != nil {
		// Hand the deposit back; the operation fails as a unit.
		if refundErr := e.bank.Transfer(e.account, account, bank.NewCoin(bank.DenomBase, baseAmount)); refundErr != nil {
			e.log.Error().Err(refundErr).Str("account", account).Msg("Refund after failed protocol deposit failed")
		}
		return fmt.Errorf("stake one-sided: %w", err)
	}

	e.accrue(pool)
	pos := e.position(poolID, account)
	e.settle(pool, pos)

	pos.OneSidedValue = pos.OneSidedValue.Add(res.ProtectedValue)
	pos.DepositedBase = pos.DepositedBase.Add(baseAmount)
	pos.ProtectionPositions = append(pos.ProtectionPositions, res.PositionID)
	pool.TotalStaked = pool.TotalStaked.Add(res.ProtectedValue)
	pos.StakeTime = e.chain.Now()
	e.rebase(pool, pos)

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventStakeOneSided,
		Pool:    poolID,
		Account: account,
		Amount:  res.ProtectedValue,
	})
	return nil
}

// UnstakeOneSided withdraws the full one-sided component of the position.
// Partial one-sided withdrawal is not supported; the operation always zeroes
// OneSidedValue. Removal may be rejected by the protocol's volatility
// cooldown, in which case the caller retries after the delay. Compensation
// owed for impermanent loss is queued for the batch claim pipeline, not paid
// here.
func (e *Engine) UnstakeOneSided(poolID types.PoolID, account string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pool(poolID)
	if err != nil {
		return err
	}
	pos := e.position(poolID, account)
	if !pos.OneSidedValue.IsPositive() {
		return fmt.Errorf("unstake one-sided: %w", ErrNothingStaked)
	}
	if err := e.checkTimelock(pool, pos); err != nil {
		return fmt.Errorf("unstake one-sided: %w", err)
	}

	// A prior withdrawal's compensation may still be working through the
	// claim pipeline. A failed or claim-free removal must leave that state
	// exactly as it found it.
	prevState := pos.CompensationState
	pos.CompensationState = types.CompensationWithdrawRequested

	// All protected positions leave the protocol in one atomic call; a
	// rejection surfaces before any base or position has moved.
	results, err := e.protocol.RemoveAllLiquidity(e.account, pos.ProtectionPositions)
	if err != nil {
		pos.CompensationState = prevState
		return fmt.Errorf("unstake one-sided: %w", err)
	}
	returned := sdkmath.ZeroInt()
	liability := sdkmath.ZeroInt()
	var claims []*claimEntry
	for _, res := range results {
		returned = returned.Add(res.BaseReturned)
		if res.Compensation.IsPositive() {
			liability = liability.Add(res.Compensation)
			claims = append(claims, &claimEntry{
				pool:    poolID,
				account: account,
				claimID: res.ClaimID,
				amount:  res.Compensation,
			})
		}
	}

	// Base-leg shortfall is made whole from the IL reserve. An underfunded
	// reserve here means funding bookkeeping is broken.
	shortfall := pos.DepositedBase.Sub(returned)
	if shortfall.IsPositive() {
		if e.ilSupply.LT(shortfall) {
			e.log.Error().
				Str("shortfall", shortfall.String()).
				Str("ilSupply", e.ilSupply.String()).
				Msg("IL reserve cannot cover base-leg shortfall")
			pos.CompensationState = prevState
			return fmt.Errorf("unstake one-sided: %w", ErrInvariantViolation)
		}
	} else {
		shortfall = sdkmath.ZeroInt()
	}

	payout := returned.Add(shortfall)
	if payout.IsPositive() {
		if err := e.bank.Transfer(e.account, account, bank.NewCoin(bank.DenomBase, payout)); err != nil {
			pos.CompensationState = prevState
			return fmt.Errorf("unstake one-sided: %w", err)
		}
	}
	e.ilSupply = e.ilSupply.Sub(shortfall)

	e.accrue(pool)
	e.settle(pool, pos)

	pool.TotalStaked = pool.TotalStaked.Sub(pos.OneSidedValue)
	removedValue := pos.OneSidedValue
	pos.OneSidedValue = sdkmath.ZeroInt()
	pos.DepositedBase = sdkmath.ZeroInt()
	pos.ProtectionPositions = nil
	e.rebase(pool, pos)

	if len(claims) > 0 {
		e.claimQueue = append(e.claimQueue, claims...)
		pos.ClaimableCompensation = pos.ClaimableCompensation.Add(liability)
		pos.CompensationState = types.CompensationPendingInProtocol
	} else {
		pos.CompensationState = prevState
	}

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventUnstakeOneSided,
		Pool:    poolID,
		Account: account,
		Amount:  removedValue,
	})
	return nil
}

// Harvest pays out the position's accrued reward from the reward reserve.
// A zero pending reward is a successful no-op.
func (e *Engine) Harvest(poolID types.PoolID, account string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pool, err := e.pool(poolID)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	pos := e.position(poolID, account)

	e.accrue(pool)
	e.settle(pool, pos)
	e.rebase(pool, pos)

	amount := pos.PendingReward
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if e.rewardSupply.LT(amount) {
		e.log.Error().
			Str("pending", amount.String()).
			Str("rewardSupply", e.rewardSupply.String()).
			Msg("Reward reserve cannot cover computed payout")
		return sdkmath.ZeroInt(), fmt.Errorf("harvest: %w", ErrInvariantViolation)
	}
	if err := e.bank.Transfer(e.account, account, bank.NewCoin(bank.DenomBase, amount)); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("harvest: %w", err)
	}
	e.rewardSupply = e.rewardSupply.Sub(amount)
	pos.PendingReward = sdkmath.ZeroInt()

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventHarvest,
		Pool:    poolID,
		Account: account,
		Amount:  amount,
	})
	return amount, nil
}

// PendingReward projects the position's claimable reward through a
// hypothetical accrual without mutating state. It never fails: unknown pools
// and zero-stake users read as zero.
func (e *Engine) PendingReward(poolID types.PoolID, account string) sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if int(poolID) >= len(e.pools) {
		return sdkmath.ZeroInt()
	}
	pool := e.pools[poolID]
	pos, ok := e.positions[positionKey{pool: poolID, account: account}]
	if !ok {
		return sdkmath.ZeroInt()
	}

	acc := e.projectedAccPerShare(pool)
	pending := pos.PendingReward
	accrued := acc.MulInt(pos.ShareWeight()).Sub(pos.RewardDebt)
	if accrued.IsPositive() {
		pending = pending.Add(accrued.TruncateInt())
	}
	return pending
}

// checkTimelock rejects withdrawals before StakeTime + pool.TimeLock. Empty
// positions bypass the lock since there is nothing held.
func (e *Engine) checkTimelock(pool *types.Pool, pos *types.UserPosition) error {
	if pos.Empty() || pool.TimeLock == 0 {
		return nil
	}
	unlockAt := pos.StakeTime.Add(pool.TimeLock)
	if e.chain.Now().Before(unlockAt) {
		return fmt.Errorf("locked until %s: %w", unlockAt.Format("2006-01-02T15:04:05Z07:00"), ErrTimelockActive)
	}
	return nil
}
