/*

This file contains the satellite funding controller: a single-entry Fund()
that drains the funder's entire base-asset balance into the engine's two
reserve buckets at a fixed basis-point split, plus the cron runner that keeps
it on schedule.

*/

package funder

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/ledger"
	"github.com/dapp-network/staking-engine/internal/logger"
)

// Funder drains its own account into the engine at a fixed split.
type Funder struct {
	log    zerolog.Logger
	bank   *bank.Ledger
	engine *ledger.Engine

	// Account is the funder's bank account; Fund empties it.
	Account string

	// splitBps is the reward share in basis points; the remainder funds IL
	// compensation.
	splitBps uint64
}

// New returns a funder. splitBps must not exceed 10000.
func New(ledgerBank *bank.Ledger, engine *ledger.Engine, account string, splitBps uint64) (*Funder, error) {
	if engine == nil || ledgerBank == nil {
		return nil, fmt.Errorf("funder requires a bank and an engine")
	}
	if splitBps > 10_000 {
		return nil, fmt.Errorf("split %d bps exceeds 10000", splitBps)
	}
	return &Funder{
		log:      logger.GetForComponent("funder"),
		bank:     ledgerBank,
		engine:   engine,
		Account:  account,
		splitBps: splitBps,
	}, nil
}

// Fund forwards the funder's full base-asset balance to the engine, split by
// the configured ratio. An empty balance is a successful no-op.
func (f *Funder) Fund() error {
	balance := f.bank.Balance(f.Account, bank.DenomBase)
	if !balance.IsPositive() {
		f.log.Debug().Msg("Funder balance empty, nothing to fund")
		return nil
	}

	rewardAmount := balance.MulRaw(int64(f.splitBps)).QuoRaw(10_000)
	ilAmount := balance.Sub(rewardAmount)

	if err := f.engine.Fund(f.Account, rewardAmount, ilAmount); err != nil {
		return fmt.Errorf("funder: %w", err)
	}
	f.log.Info().
		Str("reward", rewardAmount.String()).
		Str("il", ilAmount.String()).
		Msg("Reserves funded")
	return nil
}

// Split previews how a balance would divide between the reserves.
func (f *Funder) Split(balance sdkmath.Int) (reward, il sdkmath.Int) {
	reward = balance.MulRaw(int64(f.splitBps)).QuoRaw(10_000)
	return reward, balance.Sub(reward)
}

// Schedule runs Fund on the given cron expression until the returned cron is
// stopped. Failed runs are logged and retried on the next tick.
func (f *Funder) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := f.Fund(); err != nil {
			f.log.Error().Err(err).Msg("Scheduled funding run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("funder schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
