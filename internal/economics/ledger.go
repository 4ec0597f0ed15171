package economics

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidAmount = errors.New("stake amount must be positive")

// SlashEvent records a single slash applied to a wallet.
type SlashEvent struct {
	Wallet     string
	Percentage float64
	// Amount is the stake removed by this slash.
	Amount float64
	Reason string
	At     time.Time
}

// Ledger tracks per-wallet stake balances. Balances never go below zero.
// It is not safe for concurrent use.
type Ledger struct {
	stakes  map[string]float64
	slashes map[string][]SlashEvent
}

func NewLedger() *Ledger {
	return &Ledger{
		stakes:  make(map[string]float64),
		slashes: make(map[string][]SlashEvent),
	}
}

// Deposit adds amount to the wallet's stake. Non-positive amounts are
// rejected without touching the balance.
func (l *Ledger) Deposit(wallet string, amount float64) error {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return ErrInvalidAmount
	}
	l.stakes[wallet] += amount
	return nil
}

// Slash multiplies the balance by (1 - percentage), flooring at zero. Unknown
// wallets are treated as holding zero stake. A NaN percentage leaves the
// balance untouched.
func (l *Ledger) Slash(wallet string, percentage float64, reason string, at time.Time) SlashEvent {
	before, ok := l.stakes[wallet]
	if !ok || math.IsNaN(percentage) {
		return SlashEvent{Wallet: wallet, Percentage: percentage, Reason: reason, At: at}
	}
	after := math.Max(0, before*(1-percentage))
	l.stakes[wallet] = after

	ev := SlashEvent{
		Wallet:     wallet,
		Percentage: percentage,
		Amount:     before - after,
		Reason:     reason,
		At:         at,
	}
	l.slashes[wallet] = append(l.slashes[wallet], ev)
	return ev
}

// Reward adds amount to the wallet's stake. Amounts are not checked here;
// callers pass non-negative rewards.
func (l *Ledger) Reward(wallet string, amount float64) {
	l.stakes[wallet] += amount
}

func (l *Ledger) Balance(wallet string) float64 {
	return l.stakes[wallet]
}

// SlashHistory returns a copy of the slashes applied to wallet, oldest first.
func (l *Ledger) SlashHistory(wallet string) []SlashEvent {
	events := l.slashes[wallet]
	out := make([]SlashEvent, len(events))
	copy(out, events)
	return out
}
