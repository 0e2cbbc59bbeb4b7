/*

This file contains the Engine: the single serialized state machine holding
pools, user positions, and the reward / IL reserves. Every operation runs to
completion under one lock; a failed external call aborts the whole operation
with ledger state unchanged.

*/

package ledger

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/logger"
	"github.com/dapp-network/staking-engine/internal/protection"
	"github.com/dapp-network/staking-engine/internal/types"
)

// Recorder receives committed events and reserve snapshots for persistence.
// Recording must not fail the originating operation; implementations log and
// swallow their own errors.
type Recorder interface {
	RecordEvent(types.Event)
	RecordReserves(types.ReserveSnapshot)
}

type positionKey struct {
	pool    types.PoolID
	account string
}

// claimEntry is one pending IL compensation claim in the FIFO worklist
// bridging the engine's liability ledger to the protocol's payout schedule.
type claimEntry struct {
	pool    types.PoolID
	account string
	claimID uint64
	// amount is the engine-recorded liability to the user; the protocol may
	// pay more at claim time and the excess feeds the burn reserve.
	amount  sdkmath.Int
	claimed bool
}

// Config assembles an Engine's collaborators and accounts.
type Config struct {
	Bank     *bank.Ledger
	Protocol protection.Protocol
	Chain    types.Chain
	Recorder Recorder // optional

	// Account holds the engine's reserves and staked receipts.
	Account string
	// Owner may register pools.
	Owner string
	// TrustedProtocol is the only account whose position-transfer callbacks
	// are accepted.
	TrustedProtocol string

	EmissionPerBlock sdkmath.Int
}

// Engine is the accounting core. All exported methods are safe for concurrent
// use; internally every operation is totally ordered by a single mutex.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger

	bank     *bank.Ledger
	protocol protection.Protocol
	chain    types.Chain
	recorder Recorder

	account         string
	owner           string
	trustedProtocol string

	emissionPerBlock sdkmath.Int
	totalAllocWeight uint64

	pools     []*types.Pool
	positions map[positionKey]*types.UserPosition

	rewardSupply sdkmath.Int
	ilSupply     sdkmath.Int

	// pendingBurn is compensation held beyond known user liabilities,
	// destroyed by BurnSurplus after its cooldown.
	pendingBurn sdkmath.Int
	burnReadyAt time.Time

	// localReserve is claimed compensation attributable to users.
	localReserve sdkmath.Int

	claimQueue []*claimEntry
	events     []types.Event
}

// NewEngine validates the configuration and returns an empty engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Bank == nil {
		return nil, fmt.Errorf("bank ledger cannot be nil")
	}
	if cfg.Protocol == nil {
		return nil, fmt.Errorf("protection protocol cannot be nil")
	}
	if cfg.Chain == nil {
		return nil, fmt.Errorf("chain cannot be nil")
	}
	if cfg.Account == "" || cfg.Owner == "" || cfg.TrustedProtocol == "" {
		return nil, fmt.Errorf("engine, owner, and trusted protocol accounts are required")
	}
	if cfg.EmissionPerBlock.IsNil() || cfg.EmissionPerBlock.IsNegative() {
		return nil, fmt.Errorf("emission per block must be non-negative")
	}

	e := &Engine{
		log:              logger.GetForComponent("ledger_engine"),
		bank:             cfg.Bank,
		protocol:         cfg.Protocol,
		chain:            cfg.Chain,
		recorder:         cfg.Recorder,
		account:          cfg.Account,
		owner:            cfg.Owner,
		trustedProtocol:  cfg.TrustedProtocol,
		emissionPerBlock: cfg.EmissionPerBlock,
		positions:        make(map[positionKey]*types.UserPosition),
		rewardSupply:     sdkmath.ZeroInt(),
		ilSupply:         sdkmath.ZeroInt(),
		pendingBurn:      sdkmath.ZeroInt(),
		localReserve:     sdkmath.ZeroInt(),
	}
	e.log.Info().
		Str("account", e.account).
		Str("emissionPerBlock", e.emissionPerBlock.String()).
		Msg("Engine created")
	return e, nil
}

// Account returns the engine's own bank account.
func (e *Engine) Account() string {
	return e.account
}

// AddPool registers a new reward pool. Owner only; the pool list is
// append-only.
func (e *Engine) AddPool(caller string, allocWeight uint64, timeLock time.Duration) (types.PoolID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return 0, fmt.Errorf("add pool: %w", ErrUnauthorized)
	}

	// Settle all pools at the old total weight before it changes.
	for _, pool := range e.pools {
		e.accrue(pool)
	}

	id := types.PoolID(len(e.pools))
	pool := types.NewPool(id, allocWeight, timeLock, e.chain.Height())
	e.pools = append(e.pools, pool)
	e.totalAllocWeight += allocWeight

	e.emit(types.Event{
		OpID:   uuid.New().String(),
		Type:   types.EventPoolAdded,
		Pool:   id,
		Amount: sdkmath.NewIntFromUint64(allocWeight),
	})
	e.log.Info().
		Uint64("pool", uint64(id)).
		Uint64("allocWeight", allocWeight).
		Dur("timeLock", timeLock).
		Msg("Pool added")
	return id, nil
}

// accrue folds emission since the pool's last accrual block into its
// per-share accumulator. The accrual block always advances; emission over an
// empty interval is skipped outright rather than deferred, so an idle pool
// carries no backlog to front-run.
func (e *Engine) accrue(pool *types.Pool) {
	height := e.chain.Height()
	if height <= pool.LastAccrualBlock {
		return
	}
	blocks := height - pool.LastAccrualBlock
	pool.LastAccrualBlock = height

	if e.totalAllocWeight == 0 || pool.AllocWeight == 0 {
		return
	}
	if !pool.TotalStaked.IsPositive() {
		return
	}

	emission := sdkmath.LegacyNewDecFromInt(e.emissionPerBlock).
		MulInt64(blocks).
		MulInt64(int64(pool.AllocWeight)).
		QuoInt64(int64(e.totalAllocWeight))
	pool.AccRewardPerShare = pool.AccRewardPerShare.Add(
		emission.QuoInt(pool.TotalStaked))
}

// projectedAccPerShare mirrors accrue without mutating state, for views.
func (e *Engine) projectedAccPerShare(pool *types.Pool) sdkmath.LegacyDec {
	acc := pool.AccRewardPerShare
	height := e.chain.Height()
	if height <= pool.LastAccrualBlock || e.totalAllocWeight == 0 ||
		pool.AllocWeight == 0 || !pool.TotalStaked.IsPositive() {
		return acc
	}
	blocks := height - pool.LastAccrualBlock
	emission := sdkmath.LegacyNewDecFromInt(e.emissionPerBlock).
		MulInt64(blocks).
		MulInt64(int64(pool.AllocWeight)).
		QuoInt64(int64(e.totalAllocWeight))
	return acc.Add(emission.QuoInt(pool.TotalStaked))
}

// settle realizes the position's accrued reward into its pending bucket and
// rebases the reward debt against the current accumulator. Stake and unstake
// never pay out; only Harvest transfers reward tokens.
func (e *Engine) settle(pool *types.Pool, pos *types.UserPosition) {
	accrued := pool.AccRewardPerShare.MulInt(pos.ShareWeight()).Sub(pos.RewardDebt)
	if accrued.IsPositive() {
		pos.PendingReward = pos.PendingReward.Add(accrued.TruncateInt())
	}
}

// rebase snapshots the reward debt for the position's current share weight.
func (e *Engine) rebase(pool *types.Pool, pos *types.UserPosition) {
	pos.RewardDebt = pool.AccRewardPerShare.MulInt(pos.ShareWeight())
}

func (e *Engine) pool(id types.PoolID) (*types.Pool, error) {
	if int(id) >= len(e.pools) {
		return nil, fmt.Errorf("pool %d: %w", id, ErrPoolNotFound)
	}
	return e.pools[id], nil
}

// position returns the lazily created record for (pool, account).
func (e *Engine) position(pool types.PoolID, account string) *types.UserPosition {
	key := positionKey{pool: pool, account: account}
	pos, ok := e.positions[key]
	if !ok {
		pos = types.NewUserPosition(pool, account)
		e.positions[key] = pos
	}
	return pos
}

// emit appends a committed event, stamps it, logs it, and hands it to the
// recorder when one is attached.
func (e *Engine) emit(ev types.Event) {
	ev.Timestamp = e.chain.Now()
	ev.Height = e.chain.Height()
	if ev.Amount.IsNil() {
		ev.Amount = sdkmath.ZeroInt()
	}
	e.events = append(e.events, ev)
	e.log.Info().
		Str("op", ev.OpID).
		Str("type", string(ev.Type)).
		Uint64("pool", uint64(ev.Pool)).
		Str("account", ev.Account).
		Str("amount", ev.Amount.String()).
		Msg("Operation committed")
	if e.recorder != nil {
		e.recorder.RecordEvent(ev)
	}
}

func (e *Engine) snapshotReservesLocked() types.ReserveSnapshot {
	return types.ReserveSnapshot{
		RewardSupply:         e.rewardSupply,
		ILCompensationSupply: e.ilSupply,
		PendingBurn:          e.pendingBurn,
		Timestamp:            e.chain.Now(),
		Height:               e.chain.Height(),
	}
}
