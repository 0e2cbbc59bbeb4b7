package ledger

import "errors"

// Error taxonomy for ledger operations. Timelock, cooldown, and reserve
// errors are user-correctable and retryable after the relevant threshold;
// ErrInvariantViolation signals broken accrual/funding bookkeeping and is
// fatal for the operation, never clamped.
var (
	ErrPoolNotFound       = errors.New("pool not found")
	ErrTimelockActive     = errors.New("withdrawal timelock active")
	ErrInsufficientStake  = errors.New("insufficient staked balance")
	ErrNothingStaked      = errors.New("no one-sided stake to withdraw")
	ErrUnauthorized       = errors.New("caller not authorized")
	ErrUntrustedCaller    = errors.New("callback caller is not the trusted protocol")
	ErrBadPayload         = errors.New("malformed pool index payload")
	ErrReserveNotReady    = errors.New("local compensation reserve not yet funded, retry later")
	ErrBurnNotReady       = errors.New("burn cooldown active, retry later")
	ErrInvariantViolation = errors.New("reserve invariant violated")
)
