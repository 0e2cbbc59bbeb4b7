/*

This file contains the in-memory multi-asset ledger the engine moves tokens
through. Transfers are all-or-nothing: a failed debit leaves both accounts
untouched, which is what lets enclosing ledger operations fail as a unit.

*/

package bank

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// Asset denominations used across the engine.
const (
	// DenomBase is the staked and emitted base asset.
	DenomBase = "dapp"
	// DenomCompensation is the asset IL compensation is paid in.
	DenomCompensation = "bnt"
	// DenomLpReceipt is the paired-pool LP receipt token.
	DenomLpReceipt = "dappbnt"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Ledger is a minimal account -> Coins balance book.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]sdktypes.Coins
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]sdktypes.Coins)}
}

// Balance returns the account's balance of denom, zero for unknown accounts.
func (l *Ledger) Balance(account, denom string) sdkmath.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account].AmountOf(denom)
}

// Balances returns all holdings of an account.
func (l *Ledger) Balances(account string) sdktypes.Coins {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Mint credits freshly issued coins to an account.
func (l *Ledger) Mint(account string, coin sdktypes.Coin) error {
	if !coin.Amount.IsPositive() {
		return fmt.Errorf("%w: mint %s", ErrInvalidAmount, coin)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balances[account].Add(coin)
	return nil
}

// Burn destroys coins held by an account.
func (l *Ledger) Burn(account string, coin sdktypes.Coin) error {
	if !coin.Amount.IsPositive() {
		return fmt.Errorf("%w: burn %s", ErrInvalidAmount, coin)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.balances[account].AmountOf(coin.Denom)
	if held.LT(coin.Amount) {
		return fmt.Errorf("%w: %s holds %s%s, burning %s", ErrInsufficientFunds, account, held, coin.Denom, coin)
	}
	l.balances[account] = l.balances[account].Sub(coin)
	return nil
}

// Transfer moves coins between accounts atomically.
func (l *Ledger) Transfer(from, to string, coin sdktypes.Coin) error {
	if !coin.Amount.IsPositive() {
		return fmt.Errorf("%w: transfer %s", ErrInvalidAmount, coin)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	held := l.balances[from].AmountOf(coin.Denom)
	if held.LT(coin.Amount) {
		return fmt.Errorf("%w: %s holds %s%s, sending %s", ErrInsufficientFunds, from, held, coin.Denom, coin)
	}
	l.balances[from] = l.balances[from].Sub(coin)
	l.balances[to] = l.balances[to].Add(coin)
	return nil
}

// NewCoin is a convenience constructor for a denom/amount pair.
func NewCoin(denom string, amount sdkmath.Int) sdktypes.Coin {
	return sdktypes.NewCoin(denom, amount)
}
