package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/types"
)

// Fund pulls rewardAmount + ilAmount of base asset from the funder account
// and credits the two reserve buckets. This is the only path that grows
// either reserve.
func (e *Engine) Fund(funder string, rewardAmount, ilAmount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rewardAmount.IsNil() || ilAmount.IsNil() || rewardAmount.IsNegative() || ilAmount.IsNegative() {
		return fmt.Errorf("fund: amounts must be non-negative")
	}
	total := rewardAmount.Add(ilAmount)
	if !total.IsPositive() {
		return nil
	}

	if err := e.bank.Transfer(funder, e.account, bank.NewCoin(bank.DenomBase, total)); err != nil {
		return fmt.Errorf("fund: %w", err)
	}
	e.rewardSupply = e.rewardSupply.Add(rewardAmount)
	e.ilSupply = e.ilSupply.Add(ilAmount)

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventFund,
		Account: funder,
		Amount:  total,
	})
	if e.recorder != nil {
		e.recorder.RecordReserves(e.snapshotReservesLocked())
	}
	return nil
}
