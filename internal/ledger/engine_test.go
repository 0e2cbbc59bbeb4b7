package ledger

import (
	"errors"
	"os"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/logger"
	"github.com/dapp-network/staking-engine/internal/protection"
	"github.com/dapp-network/staking-engine/internal/types"
)

const (
	engineAccount   = "engine"
	ownerAccount    = "owner"
	funderAccount   = "funder"
	protocolAccount = "protection"
)

func TestMain(m *testing.M) {
	logger.Initialize("error")
	os.Exit(m.Run())
}

type fixture struct {
	engine *Engine
	bank   *bank.Ledger
	sim    *protection.Simulator
	chain  *types.ManualChain
}

func newFixture(t *testing.T, emission int64) *fixture {
	t.Helper()

	assets := bank.NewLedger()
	chain := types.NewManualChain(0, time.Unix(1_700_000_000, 0).UTC())
	sim := protection.NewSimulator(assets, chain, protocolAccount, protection.DefaultRate)

	engine, err := NewEngine(Config{
		Bank:             assets,
		Protocol:         sim,
		Chain:            chain,
		Account:          engineAccount,
		Owner:            ownerAccount,
		TrustedProtocol:  protocolAccount,
		EmissionPerBlock: sdkmath.NewInt(emission),
	})
	require.NoError(t, err)

	return &fixture{engine: engine, bank: assets, sim: sim, chain: chain}
}

func (f *fixture) addPool(t *testing.T, weight uint64, lock time.Duration) types.PoolID {
	t.Helper()
	id, err := f.engine.AddPool(ownerAccount, weight, lock)
	require.NoError(t, err)
	return id
}

func (f *fixture) mint(t *testing.T, account, denom string, amount int64) {
	t.Helper()
	require.NoError(t, f.bank.Mint(account, bank.NewCoin(denom, sdkmath.NewInt(amount))))
}

func (f *fixture) fundReserves(t *testing.T, reward, il int64) {
	t.Helper()
	f.mint(t, funderAccount, bank.DenomBase, reward+il)
	require.NoError(t, f.engine.Fund(funderAccount, sdkmath.NewInt(reward), sdkmath.NewInt(il)))
}

func TestAddPoolOwnerOnly(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.engine.AddPool("mallory", 100, 0)
	require.ErrorIs(t, err, ErrUnauthorized)

	id := f.addPool(t, 100, 0)
	assert.Equal(t, types.PoolID(0), id)

	pool, ok := f.engine.Pool(id)
	require.True(t, ok)
	assert.Equal(t, uint64(100), pool.AllocWeight)
	assert.True(t, pool.AccRewardPerShare.IsZero())
	assert.True(t, pool.TotalStaked.IsZero())
}

func TestStakeLpReceiptExactAccounting(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)

	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(1)))

	pos, ok := f.engine.Position(pid, "alice")
	require.True(t, ok)
	assert.Equal(t, int64(1), pos.LpAmount.Int64())
	assert.True(t, pos.OneSidedValue.IsZero())

	pool, _ := f.engine.Pool(pid)
	assert.Equal(t, int64(1), pool.TotalStaked.Int64())
	assert.Equal(t, int64(9), f.bank.Balance("alice", bank.DenomLpReceipt).Int64())
}

func TestAccumulatorNonDecreasing(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 100)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(4)))

	prev := sdkmath.LegacyZeroDec()
	for i := 0; i < 5; i++ {
		f.chain.AdvanceBlocks(3)
		require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(1)))
		pool, _ := f.engine.Pool(pid)
		assert.True(t, pool.AccRewardPerShare.GTE(prev), "accumulator decreased at step %d", i)
		prev = pool.AccRewardPerShare
	}
}

func TestPendingRewardViewIsIdempotentAndTotal(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))
	f.chain.AdvanceBlocks(10)

	first := f.engine.PendingReward(pid, "alice")
	second := f.engine.PendingReward(pid, "alice")
	assert.True(t, first.Equal(second), "view mutated state: %s vs %s", first, second)

	// Sole staker of the sole pool earns the whole emission.
	assert.Equal(t, int64(100), first.Int64())

	// Never fails, whatever the input.
	assert.True(t, f.engine.PendingReward(pid, "nobody").IsZero())
	assert.True(t, f.engine.PendingReward(types.PoolID(99), "alice").IsZero())
}

func TestRewardSplitsByShareAndWeight(t *testing.T) {
	f := newFixture(t, 12)
	fast := f.addPool(t, 300, 0)
	slow := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	f.mint(t, "bob", bank.DenomLpReceipt, 10)

	require.NoError(t, f.engine.StakeLpReceipt(fast, "alice", sdkmath.NewInt(1)))
	require.NoError(t, f.engine.StakeLpReceipt(fast, "bob", sdkmath.NewInt(3)))
	require.NoError(t, f.engine.StakeLpReceipt(slow, "bob", sdkmath.NewInt(2)))

	f.chain.AdvanceBlocks(10)

	// fast pool gets 12*10*300/400 = 90, split 1:3; slow gets 30, all bob's.
	assert.Equal(t, int64(22), f.engine.PendingReward(fast, "alice").Int64())
	assert.Equal(t, int64(67), f.engine.PendingReward(fast, "bob").Int64())
	assert.Equal(t, int64(30), f.engine.PendingReward(slow, "bob").Int64())
}

func TestIdlePoolEmissionIsSkippedNotDeferred(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)

	// 100 blocks of emission with nobody staked must not build a backlog.
	f.chain.AdvanceBlocks(100)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))
	assert.True(t, f.engine.PendingReward(pid, "alice").IsZero())

	pool, _ := f.engine.Pool(pid)
	assert.Equal(t, int64(100), pool.LastAccrualBlock)
}

func TestHarvestPaysOncePerAccrual(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.fundReserves(t, 1_000, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))

	f.chain.AdvanceBlocks(10)
	paid, err := f.engine.Harvest(pid, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), paid.Int64())
	assert.Equal(t, int64(100), f.bank.Balance("alice", bank.DenomBase).Int64())
	assert.Equal(t, int64(900), f.engine.Reserves().RewardSupply.Int64())

	// Nothing left to pay without fresh accrual.
	paid, err = f.engine.Harvest(pid, "alice")
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
}

func TestHarvestUnderfundedReserveIsFatal(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))
	f.chain.AdvanceBlocks(10)

	_, err := f.engine.Harvest(pid, "alice")
	require.ErrorIs(t, err, ErrInvariantViolation)

	// The failed payout left the accrued amount intact.
	assert.Equal(t, int64(100), f.engine.PendingReward(pid, "alice").Int64())
}

func TestStakeSettlesRewardWithoutPaying(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(1)))
	f.chain.AdvanceBlocks(10)

	// A second stake rebases the debt but transfers no reward tokens.
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(1)))
	assert.True(t, f.bank.Balance("alice", bank.DenomBase).IsZero())
	assert.Equal(t, int64(100), f.engine.PendingReward(pid, "alice").Int64())

	pos, _ := f.engine.Position(pid, "alice")
	assert.Equal(t, int64(100), pos.PendingReward.Int64())
}

func TestUnstakeLpTimelockBoundary(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 100*time.Second)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))

	err := f.engine.UnstakeLpReceipt(pid, "alice", sdkmath.NewInt(5))
	require.ErrorIs(t, err, ErrTimelockActive)

	f.chain.AdvanceTime(99 * time.Second)
	err = f.engine.UnstakeLpReceipt(pid, "alice", sdkmath.NewInt(5))
	require.ErrorIs(t, err, ErrTimelockActive)

	// Exactly at the threshold the lock releases.
	f.chain.AdvanceTime(1 * time.Second)
	require.NoError(t, f.engine.UnstakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))
	assert.Equal(t, int64(10), f.bank.Balance("alice", bank.DenomLpReceipt).Int64())
}

func TestUnstakeLpRejectsOverdraw(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(3)))

	err := f.engine.UnstakeLpReceipt(pid, "alice", sdkmath.NewInt(4))
	require.ErrorIs(t, err, ErrInsufficientStake)
}

func TestStakeOneSidedValuation(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1).MulRaw(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 3_000_000_000_000_000_000)

	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	pos, _ := f.engine.Position(pid, "alice")
	expected := protection.DefaultRate.MulInt(oneBase).TruncateInt()
	assert.True(t, pos.OneSidedValue.Equal(expected), "got %s want %s", pos.OneSidedValue, expected)
	assert.True(t, pos.LpAmount.IsZero())

	// An equal deposit at an unchanged rate credits an identical increment.
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	pos, _ = f.engine.Position(pid, "alice")
	assert.True(t, pos.OneSidedValue.Equal(expected.MulRaw(2)))
}

func TestOneSidedFullCycleDeterminism(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)

	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	first, _ := f.engine.Position(pid, "alice")

	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))
	pos, _ := f.engine.Position(pid, "alice")
	assert.True(t, pos.ShareWeight().IsZero())
	assert.True(t, pos.OneSidedValue.IsZero())
	assert.True(t, f.bank.Balance("alice", bank.DenomBase).Equal(oneBase), "full cycle must restore the deposit at an unchanged rate")
	assert.Equal(t, types.CompensationNone, pos.CompensationState)

	// Second full cycle at the same rate yields the same valuation units.
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	second, _ := f.engine.Position(pid, "alice")
	assert.True(t, second.OneSidedValue.Equal(first.OneSidedValue))
}

func TestUnstakeOneSidedRequiresStake(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	err := f.engine.UnstakeOneSided(pid, "alice")
	require.ErrorIs(t, err, ErrNothingStaked)
}

func TestUnstakeOneSidedVolatilityCooldown(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	// A 10% rate move arms the protocol's cooldown.
	f.sim.SetRate(protection.DefaultRate.MulInt64(9).QuoInt64(10))

	err := f.engine.UnstakeOneSided(pid, "alice")
	require.ErrorIs(t, err, protection.ErrCooldownActive)

	// The rejected withdrawal left the position untouched.
	pos, _ := f.engine.Position(pid, "alice")
	assert.True(t, pos.OneSidedValue.IsPositive())
	assert.Equal(t, types.CompensationNone, pos.CompensationState)

	f.chain.AdvanceTime(protection.VolatilityCooldown)
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))
}

func TestCompensationPipelineEndToEnd(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	f.sim.SetRate(protection.DefaultRate.MulInt64(9).QuoInt64(10))
	f.chain.AdvanceTime(protection.VolatilityCooldown)
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))

	pos, _ := f.engine.Position(pid, "alice")
	require.True(t, pos.ClaimableCompensation.IsPositive())
	assert.Equal(t, types.CompensationPendingInProtocol, pos.CompensationState)
	assert.Equal(t, 1, f.engine.PendingClaimCount())
	liability := pos.ClaimableCompensation

	// Reserve is not populated yet; user settlement is retryable, not fatal.
	_, err := f.engine.ClaimUserCompensation(pid, "alice")
	require.ErrorIs(t, err, ErrReserveNotReady)

	// Inside the maturity window the batch advances nothing and keeps the
	// entry queued.
	claimed, err := f.engine.ClaimCompensationBatch(10)
	require.NoError(t, err)
	assert.Zero(t, claimed)
	assert.Equal(t, 1, f.engine.PendingClaimCount())

	f.chain.AdvanceTime(protection.ClaimMaturity)
	claimed, err = f.engine.ClaimCompensationBatch(10)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 0, f.engine.PendingClaimCount())

	pos, _ = f.engine.Position(pid, "alice")
	assert.Equal(t, types.CompensationInLocalReserve, pos.CompensationState)

	// Re-running the batch over the same ground pays nothing twice.
	engineBnt := f.bank.Balance(engineAccount, bank.DenomCompensation)
	claimed, err = f.engine.ClaimCompensationBatch(10)
	require.NoError(t, err)
	assert.Zero(t, claimed)
	assert.True(t, f.bank.Balance(engineAccount, bank.DenomCompensation).Equal(engineBnt))

	paid, err := f.engine.ClaimUserCompensation(pid, "alice")
	require.NoError(t, err)
	assert.True(t, paid.Equal(liability))
	assert.True(t, f.bank.Balance("alice", bank.DenomCompensation).Equal(liability))

	pos, _ = f.engine.Position(pid, "alice")
	assert.Equal(t, types.CompensationSettled, pos.CompensationState)
	assert.True(t, pos.ClaimableCompensation.IsZero())

	// Settled positions have nothing further to pay.
	paid, err = f.engine.ClaimUserCompensation(pid, "alice")
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
}

func TestRejectedUnstakePreservesClaimState(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 2_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	// Realize IL and walk the claim into the local reserve.
	f.sim.SetRate(protection.DefaultRate.MulInt64(9).QuoInt64(10))
	f.chain.AdvanceTime(protection.VolatilityCooldown)
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))
	f.chain.AdvanceTime(protection.ClaimMaturity)
	_, err := f.engine.ClaimCompensationBatch(10)
	require.NoError(t, err)

	pos, _ := f.engine.Position(pid, "alice")
	require.Equal(t, types.CompensationInLocalReserve, pos.CompensationState)
	claimable := pos.ClaimableCompensation

	// Alice restakes, then another rate move arms the cooldown and her next
	// unstake is rejected.
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	f.sim.SetRate(f.sim.Rate().MulInt64(9).QuoInt64(10))
	err = f.engine.UnstakeOneSided(pid, "alice")
	require.ErrorIs(t, err, protection.ErrCooldownActive)

	// The rejection must not have touched the live claim.
	pos, _ = f.engine.Position(pid, "alice")
	assert.Equal(t, types.CompensationInLocalReserve, pos.CompensationState)
	assert.True(t, pos.ClaimableCompensation.Equal(claimable))

	// The reserve still pays.
	paid, err := f.engine.ClaimUserCompensation(pid, "alice")
	require.NoError(t, err)
	assert.True(t, paid.Equal(claimable))
	assert.True(t, f.bank.Balance("alice", bank.DenomCompensation).Equal(claimable))
}

func TestClaimFreeUnstakePreservesClaimState(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 2_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	f.sim.SetRate(protection.DefaultRate.MulInt64(9).QuoInt64(10))
	f.chain.AdvanceTime(protection.VolatilityCooldown)
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))
	f.chain.AdvanceTime(protection.ClaimMaturity)
	_, err := f.engine.ClaimCompensationBatch(10)
	require.NoError(t, err)

	pos, _ := f.engine.Position(pid, "alice")
	require.Equal(t, types.CompensationInLocalReserve, pos.CompensationState)
	claimable := pos.ClaimableCompensation

	// A full cycle at the now-stable rate realizes no loss and must leave
	// the earlier claim payable.
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))

	pos, _ = f.engine.Position(pid, "alice")
	assert.Equal(t, types.CompensationInLocalReserve, pos.CompensationState)

	paid, err := f.engine.ClaimUserCompensation(pid, "alice")
	require.NoError(t, err)
	assert.True(t, paid.Equal(claimable))
}

func TestUnstakeOneSidedMultiplePositions(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 2_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	pos, _ := f.engine.Position(pid, "alice")
	require.Len(t, pos.ProtectionPositions, 2)

	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))
	pos, _ = f.engine.Position(pid, "alice")
	assert.Empty(t, pos.ProtectionPositions)
	assert.True(t, pos.ShareWeight().IsZero())
	assert.True(t, f.bank.Balance("alice", bank.DenomBase).Equal(oneBase.MulRaw(2)))
}

func TestClaimBatchHonorsBatchSize(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	for _, user := range []string{"alice", "bob", "carol"} {
		f.mint(t, user, bank.DenomBase, 1_000_000_000_000_000_000)
		require.NoError(t, f.engine.StakeOneSided(pid, user, oneBase))
	}

	f.sim.SetRate(protection.DefaultRate.MulInt64(9).QuoInt64(10))
	f.chain.AdvanceTime(protection.VolatilityCooldown)
	for _, user := range []string{"alice", "bob", "carol"} {
		require.NoError(t, f.engine.UnstakeOneSided(pid, user))
	}
	require.Equal(t, 3, f.engine.PendingClaimCount())

	f.chain.AdvanceTime(protection.ClaimMaturity)
	claimed, err := f.engine.ClaimCompensationBatch(2)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, 1, f.engine.PendingClaimCount())

	claimed, err = f.engine.ClaimCompensationBatch(2)
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 0, f.engine.PendingClaimCount())
}

func TestSurplusBurnAfterCooldown(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	// The protocol pays 10% above the engine's recorded liability.
	f.sim.SetOverpaymentBps(1_000)

	f.sim.SetRate(protection.DefaultRate.MulInt64(9).QuoInt64(10))
	f.chain.AdvanceTime(protection.VolatilityCooldown)
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))

	pos, _ := f.engine.Position(pid, "alice")
	liability := pos.ClaimableCompensation

	f.chain.AdvanceTime(protection.ClaimMaturity)
	_, err := f.engine.ClaimCompensationBatch(10)
	require.NoError(t, err)

	expectedSurplus := liability.MulRaw(1_000).QuoRaw(10_000)
	snap := f.engine.Reserves()
	assert.True(t, snap.PendingBurn.Equal(expectedSurplus), "got %s want %s", snap.PendingBurn, expectedSurplus)

	// Burn is gated behind the surplus cooldown.
	_, err = f.engine.BurnSurplus()
	require.ErrorIs(t, err, ErrBurnNotReady)

	f.chain.AdvanceTime(protection.ClaimMaturity)
	burned, err := f.engine.BurnSurplus()
	require.NoError(t, err)
	assert.True(t, burned.Equal(expectedSurplus))
	assert.True(t, f.engine.Reserves().PendingBurn.IsZero())

	// The user's own payout is untouched by the burn.
	paid, err := f.engine.ClaimUserCompensation(pid, "alice")
	require.NoError(t, err)
	assert.True(t, paid.Equal(liability))
}

func TestBurnNothingIsNoOp(t *testing.T) {
	f := newFixture(t, 10)
	burned, err := f.engine.BurnSurplus()
	require.NoError(t, err)
	assert.True(t, burned.IsZero())
}

func TestBaseShortfallToppedFromILReserve(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))
	f.fundReserves(t, 0, 1_000_000_000_000_000_000)

	// Rate up 25%: the protocol returns less base, the IL reserve tops the
	// user back up to the raw deposit.
	f.sim.SetRate(protection.DefaultRate.MulInt64(5).QuoInt64(4))
	f.chain.AdvanceTime(protection.VolatilityCooldown)

	ilBefore := f.engine.Reserves().ILCompensationSupply
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))

	assert.True(t, f.bank.Balance("alice", bank.DenomBase).Equal(oneBase))
	ilAfter := f.engine.Reserves().ILCompensationSupply
	assert.True(t, ilAfter.LT(ilBefore), "IL reserve must shrink by the shortfall")
	assert.False(t, ilAfter.IsNegative())
}

func TestBaseShortfallWithEmptyReserveIsFatal(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)
	require.NoError(t, f.engine.StakeOneSided(pid, "alice", oneBase))

	f.sim.SetRate(protection.DefaultRate.MulInt64(5).QuoInt64(4))
	f.chain.AdvanceTime(protection.VolatilityCooldown)

	err := f.engine.UnstakeOneSided(pid, "alice")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestFundScenario(t *testing.T) {
	f := newFixture(t, 10)

	f.mint(t, funderAccount, bank.DenomBase, 200_000)
	require.NoError(t, f.engine.Fund(funderAccount, sdkmath.NewInt(100_000), sdkmath.NewInt(100_000)))

	snap := f.engine.Reserves()
	assert.Equal(t, int64(100_000), snap.RewardSupply.Int64())
	assert.Equal(t, int64(100_000), snap.ILCompensationSupply.Int64())
	assert.Equal(t, int64(200_000), f.bank.Balance(engineAccount, bank.DenomBase).Int64())
	assert.True(t, f.bank.Balance(funderAccount, bank.DenomBase).IsZero())
}

func TestFundRejectsNegative(t *testing.T) {
	f := newFixture(t, 10)
	err := f.engine.Fund(funderAccount, sdkmath.NewInt(-1), sdkmath.NewInt(1))
	require.Error(t, err)
}

func TestReservesNeverNegative(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	f.fundReserves(t, 500, 500)
	f.mint(t, "alice", bank.DenomLpReceipt, 10)
	require.NoError(t, f.engine.StakeLpReceipt(pid, "alice", sdkmath.NewInt(5)))

	for i := 0; i < 20; i++ {
		f.chain.AdvanceBlocks(2)
		_, err := f.engine.Harvest(pid, "alice")
		if err != nil {
			require.ErrorIs(t, err, ErrInvariantViolation)
		}
		snap := f.engine.Reserves()
		require.False(t, snap.RewardSupply.IsNegative())
		require.False(t, snap.ILCompensationSupply.IsNegative())
		require.False(t, snap.PendingBurn.IsNegative())
	}
}

func TestPositionTransferCallback(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)
	oneBase := sdkmath.NewInt(1_000_000_000_000_000_000)
	f.mint(t, "alice", bank.DenomBase, 1_000_000_000_000_000_000)

	// Alice opens her own protected position and hands it to the engine.
	res, err := f.sim.AddLiquidity("alice", oneBase)
	require.NoError(t, err)

	err = f.sim.TransferPositionAndNotify("alice", res.PositionID, engineAccount, f.engine, EncodePoolIndex(pid))
	require.NoError(t, err)

	pos, ok := f.engine.Position(pid, "alice")
	require.True(t, ok)
	assert.True(t, pos.OneSidedValue.Equal(res.ProtectedValue))
	assert.True(t, pos.LpAmount.IsZero())

	events := f.engine.RecentEvents(0)
	found := false
	for _, ev := range events {
		if ev.Type == types.EventPositionTransferred && ev.Account == "alice" {
			found = true
		}
	}
	assert.True(t, found, "expected a PositionTransferred event")

	// The transferred position withdraws like a native one-sided stake.
	require.NoError(t, f.engine.UnstakeOneSided(pid, "alice"))
	pos, _ = f.engine.Position(pid, "alice")
	assert.True(t, pos.ShareWeight().IsZero())
	assert.True(t, f.bank.Balance("alice", bank.DenomBase).Equal(oneBase))
}

func TestPositionTransferRejectsUntrustedCaller(t *testing.T) {
	f := newFixture(t, 10)
	pid := f.addPool(t, 100, 0)

	err := f.engine.OnPositionTransferred("mallory", 1, "alice", sdkmath.NewInt(1000), EncodePoolIndex(pid))
	require.ErrorIs(t, err, ErrUntrustedCaller)

	_, ok := f.engine.Position(pid, "alice")
	assert.False(t, ok)
}

func TestPositionTransferPayloadValidation(t *testing.T) {
	f := newFixture(t, 10)
	f.addPool(t, 100, 0)

	cases := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{"too short", []byte{0, 0, 1}, ErrBadPayload},
		{"too long", make([]byte, 33), ErrBadPayload},
		{"overflow", append([]byte{1}, make([]byte, 31)...), ErrBadPayload},
		{"unknown pool", EncodePoolIndex(types.PoolID(42)), ErrPoolNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.engine.OnPositionTransferred(protocolAccount, 1, "alice", sdkmath.NewInt(1000), tc.payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	for _, id := range []types.PoolID{0, 1, 6, 1 << 40} {
		decoded, err := decodePoolIndex(EncodePoolIndex(id))
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}

	// A bare 8-byte index is accepted too.
	decoded, err := decodePoolIndex([]byte{0, 0, 0, 0, 0, 0, 0, 3})
	require.NoError(t, err)
	assert.Equal(t, types.PoolID(3), decoded)
}
