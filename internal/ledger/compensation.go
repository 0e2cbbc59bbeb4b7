/*

This file contains the IL compensation pipeline: the FIFO worklist of claims
owed by the external protocol, the idempotent batch-advance that pulls matured
compensation into the local reserve, per-user settlement, and the burn valve
for unreconciled surplus.

*/

package ledger

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/protection"
	"github.com/dapp-network/staking-engine/internal/types"
)

// ClaimCompensationBatch advances up to batchSize unclaimed entries through
// the external protocol's claim operation, moving realized compensation into
// the local reserve. Claims mature in queue order, so the batch stops at the
// first entry still inside the maturity window. Calling again over the same
// entries never double-claims: paid entries are marked and skipped.
// Returns the number of entries claimed.
func (e *Engine) ClaimCompensationBatch(batchSize int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if batchSize <= 0 {
		return 0, nil
	}

	claimed := 0
	for _, entry := range e.claimQueue {
		if claimed >= batchSize {
			break
		}
		if entry.claimed {
			continue
		}

		paid, err := e.protocol.ClaimCompensation(entry.claimID, e.account)
		if err != nil {
			if errors.Is(err, protection.ErrClaimNotMatured) {
				break
			}
			if errors.Is(err, protection.ErrAlreadyClaimed) {
				// Lost bookkeeping write, never a double payout. Reconcile
				// and move on.
				e.log.Warn().
					Uint64("claimID", entry.claimID).
					Msg("Protocol reports claim already paid, marking entry claimed")
				entry.claimed = true
				continue
			}
			return claimed, fmt.Errorf("claim batch: %w", err)
		}
		entry.claimed = true
		claimed++

		e.localReserve = e.localReserve.Add(entry.amount)
		// The protocol may over-compensate relative to our recorded
		// liability; the excess is never owed to anyone and waits for the
		// burn valve.
		surplus := paid.Sub(entry.amount)
		if surplus.IsPositive() {
			e.pendingBurn = e.pendingBurn.Add(surplus)
			e.burnReadyAt = e.chain.Now().Add(protection.ClaimMaturity)
		}

		pos := e.position(entry.pool, entry.account)
		pos.CompensationState = types.CompensationInLocalReserve

		e.emit(types.Event{
			OpID:    uuid.New().String(),
			Type:    types.EventCompensationClaimed,
			Pool:    entry.pool,
			Account: entry.account,
			Amount:  paid,
		})
	}

	e.compactClaimQueue()
	return claimed, nil
}

// compactClaimQueue drops fully claimed entries from the head of the queue.
func (e *Engine) compactClaimQueue() {
	i := 0
	for i < len(e.claimQueue) && e.claimQueue[i].claimed {
		i++
	}
	if i > 0 {
		e.claimQueue = append([]*claimEntry(nil), e.claimQueue[i:]...)
	}
}

// ClaimUserCompensation pays the user's claimable compensation out of the
// local reserve. Before the batch pipeline has populated the reserve the call
// fails with ErrReserveNotReady, a normal retryable condition.
func (e *Engine) ClaimUserCompensation(poolID types.PoolID, account string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.pool(poolID); err != nil {
		return sdkmath.ZeroInt(), err
	}
	pos := e.position(poolID, account)
	amount := pos.ClaimableCompensation
	if !amount.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if pos.CompensationState != types.CompensationInLocalReserve || e.localReserve.LT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("claim user compensation: %w", ErrReserveNotReady)
	}

	if err := e.bank.Transfer(e.account, account, bank.NewCoin(bank.DenomCompensation, amount)); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("claim user compensation: %w", err)
	}
	e.localReserve = e.localReserve.Sub(amount)
	pos.ClaimableCompensation = sdkmath.ZeroInt()
	pos.CompensationState = types.CompensationSettled

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventCompensationPaid,
		Pool:    poolID,
		Account: account,
		Amount:  amount,
	})
	return amount, nil
}

// BurnSurplus destroys compensation held beyond known user liabilities once
// its cooldown has passed. A safety valve against indefinite accumulation of
// unreconciled surplus, not an error path. Returns the burned amount; zero
// pending surplus is a successful no-op.
func (e *Engine) BurnSurplus() (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pendingBurn.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	if e.chain.Now().Before(e.burnReadyAt) {
		return sdkmath.ZeroInt(), fmt.Errorf("burn surplus: %w", ErrBurnNotReady)
	}

	amount := e.pendingBurn
	if err := e.bank.Burn(e.account, bank.NewCoin(bank.DenomCompensation, amount)); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("burn surplus: %w", err)
	}
	e.pendingBurn = sdkmath.ZeroInt()

	e.emit(types.Event{
		OpID:   uuid.New().String(),
		Type:   types.EventSurplusBurned,
		Amount: amount,
	})
	return amount, nil
}
