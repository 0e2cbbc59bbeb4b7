package ledger

import (
	"github.com/dapp-network/staking-engine/internal/types"
)

// Read-only views for the query API and tooling. All return copies; callers
// cannot reach into live engine state.

// Pools returns a snapshot of every registered pool.
func (e *Engine) Pools() []types.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Pool, len(e.pools))
	for i, p := range e.pools {
		out[i] = *p
	}
	return out
}

// Pool returns a snapshot of one pool.
func (e *Engine) Pool(id types.PoolID) (types.Pool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= len(e.pools) {
		return types.Pool{}, false
	}
	return *e.pools[id], true
}

// Position returns a snapshot of the (pool, account) record, if one exists.
func (e *Engine) Position(pool types.PoolID, account string) (types.UserPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[positionKey{pool: pool, account: account}]
	if !ok {
		return types.UserPosition{}, false
	}
	cp := *pos
	cp.ProtectionPositions = append([]uint64(nil), pos.ProtectionPositions...)
	return cp, true
}

// Reserves returns the current reserve buckets.
func (e *Engine) Reserves() types.ReserveSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotReservesLocked()
}

// PendingClaimCount reports how many compensation claims still await the
// batch pipeline.
func (e *Engine) PendingClaimCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, entry := range e.claimQueue {
		if !entry.claimed {
			n++
		}
	}
	return n
}

// RecentEvents returns up to limit committed events, newest last.
func (e *Engine) RecentEvents(limit int) []types.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.events) {
		limit = len(e.events)
	}
	out := make([]types.Event, limit)
	copy(out, e.events[len(e.events)-limit:])
	return out
}
