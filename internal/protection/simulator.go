/*

This file contains a deterministic in-process stand-in for the external
liquidity-protection protocol. It prices one-sided deposits at the pair's
current reserve ratio, arms a volatility cooldown after large rate movements,
and defers IL compensation behind the protocol's claim maturity window.

*/

package protection

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/dapp-network/staking-engine/internal/bank"
	"github.com/dapp-network/staking-engine/internal/logger"
	"github.com/dapp-network/staking-engine/internal/types"
)

// Protocol-owned real-time gates. These belong to the external protocol, not
// to the engine's configuration.
const (
	// VolatilityCooldown blocks position removal after a large rate movement.
	VolatilityCooldown = 600 * time.Second
	// ClaimMaturity is the delay after removal before compensation is payable.
	ClaimMaturity = 86400 * time.Second
)

// rateShiftThreshold is the relative rate change that arms the cooldown.
var rateShiftThreshold = sdkmath.LegacyMustNewDecFromStr("0.01")

type simPosition struct {
	owner          string
	baseAmount     sdkmath.Int
	protectedValue sdkmath.Int
	entryRate      sdkmath.LegacyDec
}

type simClaim struct {
	amount      sdkmath.Int
	availableAt time.Time
	paid        bool
}

// Simulator implements Protocol against the in-memory bank ledger.
type Simulator struct {
	mu    sync.Mutex
	log   zerolog.Logger
	bank  *bank.Ledger
	chain types.Chain

	// Account is the simulator's own bank account holding protected deposits.
	Account string

	rate          sdkmath.LegacyDec
	lastRateShift time.Time

	nextPosition uint64
	nextClaim    uint64
	positions    map[uint64]*simPosition
	claims       map[uint64]*simClaim

	// overpayBps inflates compensation payouts, reproducing the protocol
	// over-compensating relative to the engine's internal liability tracking.
	overpayBps uint64
}

// DefaultRate mirrors the pair reserve ratio of the reference configuration:
// one base asset prices at roughly 0.0062 protected-liquidity units.
var DefaultRate = sdkmath.LegacyMustNewDecFromStr("0.006210728080582889")

// NewSimulator returns a simulator holding deposits in the given bank account.
func NewSimulator(ledger *bank.Ledger, chain types.Chain, account string, rate sdkmath.LegacyDec) *Simulator {
	if rate.IsNil() || !rate.IsPositive() {
		rate = DefaultRate
	}
	return &Simulator{
		log:       logger.GetForComponent("protection_simulator"),
		bank:      ledger,
		chain:     chain,
		Account:   account,
		rate:      rate,
		positions: make(map[uint64]*simPosition),
		claims:    make(map[uint64]*simClaim),
	}
}

// Rate returns protected-liquidity units per base asset.
func (s *Simulator) Rate() sdkmath.LegacyDec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetRate moves the pair's reserve ratio. A relative change at or above one
// percent arms the volatility cooldown.
func (s *Simulator) SetRate(rate sdkmath.LegacyDec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !rate.IsPositive() {
		return
	}
	diff := rate.Sub(s.rate).Abs()
	if diff.Quo(s.rate).GTE(rateShiftThreshold) {
		s.lastRateShift = s.chain.Now()
		s.log.Warn().
			Str("oldRate", s.rate.String()).
			Str("newRate", rate.String()).
			Msg("Large rate movement, volatility cooldown armed")
	}
	s.rate = rate
}

// SetOverpaymentBps inflates future compensation payouts by bps basis points.
func (s *Simulator) SetOverpaymentBps(bps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overpayBps = bps
}

// AddLiquidity opens a protected position funded from the depositor's account.
func (s *Simulator) AddLiquidity(depositor string, amount sdkmath.Int) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !amount.IsPositive() {
		return AddResult{}, fmt.Errorf("add liquidity: %w", bank.ErrInvalidAmount)
	}
	protected := s.rate.MulInt(amount).TruncateInt()
	if !protected.IsPositive() {
		return AddResult{}, fmt.Errorf("add liquidity: deposit of %s too small to protect", amount)
	}
	if err := s.bank.Transfer(depositor, s.Account, bank.NewCoin(bank.DenomBase, amount)); err != nil {
		return AddResult{}, fmt.Errorf("add liquidity: %w", err)
	}

	s.nextPosition++
	id := s.nextPosition
	s.positions[id] = &simPosition{
		owner:          depositor,
		baseAmount:     amount,
		protectedValue: protected,
		entryRate:      s.rate,
	}

	s.log.Debug().
		Uint64("positionID", id).
		Str("depositor", depositor).
		Str("amount", amount.String()).
		Str("protectedValue", protected.String()).
		Msg("Protected position opened")

	return AddResult{PositionID: id, ProtectedValue: protected}, nil
}

// RemoveLiquidity closes a position in full. Inside the volatility cooldown
// the call is rejected and the caller must retry after the delay.
func (s *Simulator) RemoveLiquidity(owner string, positionID uint64) (RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[positionID]
	if !ok {
		return RemoveResult{}, fmt.Errorf("remove liquidity %d: %w", positionID, ErrUnknownPosition)
	}
	if pos.owner != owner {
		return RemoveResult{}, fmt.Errorf("remove liquidity %d: %w", positionID, ErrNotOwner)
	}
	now := s.chain.Now()
	if !s.lastRateShift.IsZero() && now.Before(s.lastRateShift.Add(VolatilityCooldown)) {
		return RemoveResult{}, fmt.Errorf("remove liquidity %d: %w", positionID, ErrCooldownActive)
	}

	returned, comp := s.quote(pos)

	if returned.IsPositive() {
		if err := s.bank.Transfer(s.Account, owner, bank.NewCoin(bank.DenomBase, returned)); err != nil {
			return RemoveResult{}, fmt.Errorf("remove liquidity %d: %w", positionID, err)
		}
	}
	delete(s.positions, positionID)

	res := RemoveResult{BaseReturned: returned, Compensation: comp}
	if comp.IsPositive() {
		s.nextClaim++
		res.ClaimID = s.nextClaim
		s.claims[res.ClaimID] = &simClaim{
			amount:      comp,
			availableAt: now.Add(ClaimMaturity),
		}
	}

	s.log.Debug().
		Uint64("positionID", positionID).
		Str("returned", returned.String()).
		Str("compensation", comp.String()).
		Uint64("claimID", res.ClaimID).
		Msg("Protected position removed")

	return res, nil
}

// quote prices a position's closure at the current rate. Base returned is the
// protected value converted back, capped by what was deposited. A rate drop
// leaves pair-side value uncovered and is compensated in the pair asset after
// the maturity window. Caller holds the lock.
func (s *Simulator) quote(pos *simPosition) (returned, comp sdkmath.Int) {
	returned = sdkmath.LegacyNewDecFromInt(pos.protectedValue).Quo(s.rate).Ceil().TruncateInt()
	if returned.GT(pos.baseAmount) {
		returned = pos.baseAmount
	}
	currentPairValue := s.rate.MulInt(returned).TruncateInt()
	comp = pos.protectedValue.Sub(currentPairValue)
	if comp.IsNegative() {
		comp = sdkmath.ZeroInt()
	}
	return returned, comp
}

// RemoveAllLiquidity closes every listed position under one hold of the lock,
// so the rate and the cooldown state cannot move between closures. Every
// position is validated and quoted before any base moves; a single transfer
// settles the whole batch.
func (s *Simulator) RemoveAllLiquidity(owner string, positionIDs []uint64) ([]RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(positionIDs) == 0 {
		return nil, nil
	}
	now := s.chain.Now()
	if !s.lastRateShift.IsZero() && now.Before(s.lastRateShift.Add(VolatilityCooldown)) {
		return nil, fmt.Errorf("remove all liquidity: %w", ErrCooldownActive)
	}

	total := sdkmath.ZeroInt()
	results := make([]RemoveResult, len(positionIDs))
	for i, id := range positionIDs {
		pos, ok := s.positions[id]
		if !ok {
			return nil, fmt.Errorf("remove all liquidity %d: %w", id, ErrUnknownPosition)
		}
		if pos.owner != owner {
			return nil, fmt.Errorf("remove all liquidity %d: %w", id, ErrNotOwner)
		}
		returned, comp := s.quote(pos)
		results[i] = RemoveResult{BaseReturned: returned, Compensation: comp}
		total = total.Add(returned)
	}

	if total.IsPositive() {
		if err := s.bank.Transfer(s.Account, owner, bank.NewCoin(bank.DenomBase, total)); err != nil {
			return nil, fmt.Errorf("remove all liquidity: %w", err)
		}
	}
	for i, id := range positionIDs {
		delete(s.positions, id)
		if results[i].Compensation.IsPositive() {
			s.nextClaim++
			results[i].ClaimID = s.nextClaim
			s.claims[results[i].ClaimID] = &simClaim{
				amount:      results[i].Compensation,
				availableAt: now.Add(ClaimMaturity),
			}
		}
	}

	s.log.Debug().
		Int("positions", len(positionIDs)).
		Str("returned", total.String()).
		Msg("Protected positions removed")

	return results, nil
}

// ClaimCompensation pays a matured claim to the recipient's account.
func (s *Simulator) ClaimCompensation(claimID uint64, recipient string) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimID]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("claim %d: %w", claimID, ErrUnknownClaim)
	}
	if claim.paid {
		return sdkmath.ZeroInt(), fmt.Errorf("claim %d: %w", claimID, ErrAlreadyClaimed)
	}
	if s.chain.Now().Before(claim.availableAt) {
		return sdkmath.ZeroInt(), fmt.Errorf("claim %d: %w", claimID, ErrClaimNotMatured)
	}

	paid := claim.amount
	if s.overpayBps > 0 {
		paid = paid.Add(paid.MulRaw(int64(s.overpayBps)).QuoRaw(10_000))
	}

	// The protocol issues the compensation asset from its own supply.
	if err := s.bank.Mint(recipient, bank.NewCoin(bank.DenomCompensation, paid)); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("claim %d: %w", claimID, err)
	}
	claim.paid = true

	s.log.Debug().
		Uint64("claimID", claimID).
		Str("recipient", recipient).
		Str("amount", paid.String()).
		Msg("Compensation claim paid")

	return paid, nil
}

// TransferPositionAndNotify reassigns an externally opened position to the
// engine and invokes the engine's callback with the encoded target pool.
func (s *Simulator) TransferPositionAndNotify(owner string, positionID uint64, engineAccount string, notifier Notifier, payload []byte) error {
	s.mu.Lock()
	pos, ok := s.positions[positionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("transfer position %d: %w", positionID, ErrUnknownPosition)
	}
	if pos.owner != owner {
		s.mu.Unlock()
		return fmt.Errorf("transfer position %d: %w", positionID, ErrNotOwner)
	}
	pos.owner = engineAccount
	value := pos.protectedValue
	s.mu.Unlock()

	if err := notifier.OnPositionTransferred(s.Account, positionID, owner, value, payload); err != nil {
		// Hand the position back so a rejected callback has no lasting effect.
		s.mu.Lock()
		if p, ok := s.positions[positionID]; ok {
			p.owner = owner
		}
		s.mu.Unlock()
		return fmt.Errorf("transfer position %d: %w", positionID, err)
	}
	return nil
}
