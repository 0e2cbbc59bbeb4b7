package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventType labels a completed ledger operation for the event log and the
// persisted operation receipts.
type EventType string

const (
	EventStakeLp             EventType = "STAKE_LP"
	EventUnstakeLp           EventType = "UNSTAKE_LP"
	EventStakeOneSided       EventType = "STAKE_ONE_SIDED"
	EventUnstakeOneSided     EventType = "UNSTAKE_ONE_SIDED"
	EventHarvest             EventType = "HARVEST"
	EventFund                EventType = "FUND"
	EventPoolAdded           EventType = "POOL_ADDED"
	EventPositionTransferred EventType = "POSITION_TRANSFERRED"
	EventCompensationClaimed EventType = "COMPENSATION_CLAIMED"
	EventCompensationPaid    EventType = "COMPENSATION_PAID"
	EventSurplusBurned       EventType = "SURPLUS_BURNED"
)

// Event records one completed, committed state transition. Failed operations
// never produce events.
type Event struct {
	OpID      string      `json:"op_id"`
	Type      EventType   `json:"type"`
	Pool      PoolID      `json:"pool"`
	Account   string      `json:"account,omitempty"`
	Amount    sdkmath.Int `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
	Height    int64       `json:"height"`
}

// ReserveSnapshot captures the engine's reserve buckets at a point in time.
type ReserveSnapshot struct {
	RewardSupply         sdkmath.Int `json:"reward_supply"`
	ILCompensationSupply sdkmath.Int `json:"il_compensation_supply"`
	PendingBurn          sdkmath.Int `json:"pending_burn"`
	Timestamp            time.Time   `json:"timestamp"`
	Height               int64       `json:"height"`
}
