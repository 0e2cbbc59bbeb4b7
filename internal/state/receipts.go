// ./internal/state/receipts.go
package state

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/dapp-network/staking-engine/internal/types"
)

// SaveOperationReceipt persists one committed ledger event. The op_id unique
// index makes replays harmless.
func SaveOperationReceipt(ev types.Event) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO operation_receipts (
			op_id, event_type, pool_id, account, amount, block_height, event_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (op_id) DO NOTHING;`

	_, err := DB.Exec(stmt,
		ev.OpID, string(ev.Type), int64(ev.Pool), ev.Account,
		ev.Amount.String(), ev.Height, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation receipt: %w", err)
	}
	return nil
}

// SaveReserveSnapshot persists the engine's reserve buckets.
func SaveReserveSnapshot(snap types.ReserveSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO reserve_snapshots (
			reward_supply, il_compensation_supply, pending_burn, block_height, snapshot_timestamp
		) VALUES ($1, $2, $3, $4, $5);`

	_, err := DB.Exec(stmt,
		snap.RewardSupply.String(), snap.ILCompensationSupply.String(),
		snap.PendingBurn.String(), snap.Height, snap.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reserve snapshot: %w", err)
	}
	return nil
}

// LoadRecentReceipts returns the newest limit receipts, newest first.
func LoadRecentReceipts(limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := DB.Query(`
		SELECT op_id, event_type, pool_id, account, amount, block_height, event_timestamp
		FROM operation_receipts
		ORDER BY event_timestamp DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation receipts: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev        types.Event
			eventType string
			poolID    int64
			amount    string
			ts        time.Time
		)
		if err := rows.Scan(&ev.OpID, &eventType, &poolID, &ev.Account, &amount, &ev.Height, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan operation receipt: %w", err)
		}
		parsed, ok := sdkmath.NewIntFromString(amount)
		if !ok {
			log.Warn().Str("amount", amount).Msg("Skipping receipt with unparseable amount")
			continue
		}
		ev.Type = types.EventType(eventType)
		ev.Pool = types.PoolID(poolID)
		ev.Amount = parsed
		ev.Timestamp = ts
		events = append(events, ev)
	}
	return events, rows.Err()
}
