package protection

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// Errors surfaced by the protection protocol. Cooldown and maturity errors
// are user-correctable: the caller retries after the real-time threshold.
var (
	ErrUnknownPosition = errors.New("unknown protected position")
	ErrUnknownClaim    = errors.New("unknown compensation claim")
	ErrNotOwner        = errors.New("account does not own position")
	ErrCooldownActive  = errors.New("volatility cooldown active, retry later")
	ErrClaimNotMatured = errors.New("compensation claim not yet matured")
	ErrAlreadyClaimed  = errors.New("compensation claim already paid")
)

// AddResult reports an opened protected position.
type AddResult struct {
	PositionID uint64
	// ProtectedValue is the protocol's valuation of the deposit in
	// protected-liquidity units, reflecting the pair's reserve ratio at
	// deposit time. It is not the raw deposited amount.
	ProtectedValue sdkmath.Int
}

// RemoveResult reports a closed protected position.
type RemoveResult struct {
	// BaseReturned is the base asset handed back synchronously.
	BaseReturned sdkmath.Int
	// Compensation is the IL compensation owed, payable only after the
	// protocol's claim maturity window. Zero when no loss was realized.
	Compensation sdkmath.Int
	// ClaimID identifies the deferred compensation claim; zero when
	// Compensation is zero.
	ClaimID uint64
}

// Protocol is the surface of the external liquidity-protection protocol the
// engine consumes. All calls are synchronous; failures must propagate as
// whole-operation failures in the caller.
type Protocol interface {
	// AddLiquidity opens a protected one-sided position funded from the
	// depositor's bank account.
	AddLiquidity(depositor string, amount sdkmath.Int) (AddResult, error)

	// RemoveLiquidity closes a position in full, returning base asset to the
	// owner's account. Rejected with ErrCooldownActive shortly after a large
	// rate movement.
	RemoveLiquidity(owner string, positionID uint64) (RemoveResult, error)

	// RemoveAllLiquidity closes every listed position in one atomic step:
	// either all are removed with their base returned, or an error leaves
	// every position and balance untouched. Results align with positionIDs.
	RemoveAllLiquidity(owner string, positionIDs []uint64) ([]RemoveResult, error)

	// ClaimCompensation pays a matured compensation claim to the recipient.
	// Returns ErrClaimNotMatured inside the maturity window and
	// ErrAlreadyClaimed on repeats.
	ClaimCompensation(claimID uint64, recipient string) (sdkmath.Int, error)

	// Rate returns the pair's current reserve ratio: protected-liquidity
	// units per base asset.
	Rate() sdkmath.LegacyDec
}

// Notifier is implemented by the engine's inbound callback surface for
// protocol-initiated position transfers.
type Notifier interface {
	// OnPositionTransferred is invoked by the protocol after it reassigned a
	// position to the engine. Payload carries the ABI-style encoded target
	// pool index.
	OnPositionTransferred(caller string, positionID uint64, provider string, value sdkmath.Int, payload []byte) error
}
