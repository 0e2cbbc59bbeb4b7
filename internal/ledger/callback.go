/*

This file contains the engine's single inbound callback surface: the external
protocol hands over ownership of a protected position and notifies the engine
with an ABI-style encoded target pool index.

*/

package ledger

import (
	"encoding/binary"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/dapp-network/staking-engine/internal/types"
)

// OnPositionTransferred credits a protocol-transferred position to the
// provider's one-sided stake in the decoded target pool. Only the trusted
// protocol account may invoke it; any other caller is rejected
// unconditionally.
func (e *Engine) OnPositionTransferred(caller string, positionID uint64, provider string, value sdkmath.Int, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.trustedProtocol {
		e.log.Warn().
			Str("caller", caller).
			Uint64("positionID", positionID).
			Msg("Rejected position-transfer callback from untrusted caller")
		return fmt.Errorf("position transfer: %w", ErrUntrustedCaller)
	}
	poolID, err := decodePoolIndex(payload)
	if err != nil {
		return fmt.Errorf("position transfer: %w", err)
	}
	pool, err := e.pool(poolID)
	if err != nil {
		return fmt.Errorf("position transfer: %w", err)
	}
	if value.IsNil() || !value.IsPositive() {
		return fmt.Errorf("position transfer: transferred value must be positive")
	}

	e.accrue(pool)
	pos := e.position(poolID, provider)
	e.settle(pool, pos)

	pos.OneSidedValue = pos.OneSidedValue.Add(value)
	pos.ProtectionPositions = append(pos.ProtectionPositions, positionID)
	// Best-effort base equivalent at today's rate; used only to size the
	// base-leg shortfall top-up on withdrawal.
	rate := e.protocol.Rate()
	if rate.IsPositive() {
		pos.DepositedBase = pos.DepositedBase.Add(
			sdkmath.LegacyNewDecFromInt(value).Quo(rate).TruncateInt())
	}
	pool.TotalStaked = pool.TotalStaked.Add(value)
	pos.StakeTime = e.chain.Now()
	e.rebase(pool, pos)

	e.emit(types.Event{
		OpID:    uuid.New().String(),
		Type:    types.EventPositionTransferred,
		Pool:    poolID,
		Account: provider,
		Amount:  value,
	})
	return nil
}

// decodePoolIndex reads a big-endian unsigned pool index from an ABI-style
// word: 8 to 32 bytes, right-aligned, with every byte above the low eight
// required to be zero.
func decodePoolIndex(payload []byte) (types.PoolID, error) {
	if len(payload) < 8 || len(payload) > 32 {
		return 0, fmt.Errorf("%w: length %d", ErrBadPayload, len(payload))
	}
	for _, b := range payload[:len(payload)-8] {
		if b != 0 {
			return 0, fmt.Errorf("%w: index exceeds uint64 range", ErrBadPayload)
		}
	}
	return types.PoolID(binary.BigEndian.Uint64(payload[len(payload)-8:])), nil
}

// EncodePoolIndex renders a pool index as the 32-byte word the protocol's
// transfer-and-notify call carries. Exposed for tests and tooling.
func EncodePoolIndex(id types.PoolID) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[24:], uint64(id))
	return buf
}
