// Package ledger is the per-player bank account. Only the authority mutates
// it; on any other role every mutator is a no-op.
package ledger

import (
	"math"

	"citycore/internal/sim/world/gateway"
)

type Account struct {
	host    gateway.Host
	balance int
}

// New opens an account with the starting balance applied once.
func New(host gateway.Host, starting int) *Account {
	a := &Account{host: host}
	if a.authority() && starting > 0 {
		a.balance = starting
	}
	return a
}

func (a *Account) authority() bool { return a != nil && a.host != nil && a.host.IsHost() }

func (a *Account) Balance() int {
	if a == nil {
		return 0
	}
	return a.balance
}

// Add credits amount, saturating at math.MaxInt. Non-positive amounts are
// ignored.
func (a *Account) Add(amount int) bool {
	if !a.authority() || amount <= 0 {
		return false
	}
	if amount > math.MaxInt-a.balance {
		a.balance = math.MaxInt
		return true
	}
	a.balance += amount
	return true
}

// Remove debits up to amount, never below zero, and returns what was taken.
func (a *Account) Remove(amount int) int {
	if !a.authority() || amount <= 0 {
		return 0
	}
	if amount > a.balance {
		amount = a.balance
	}
	a.balance -= amount
	return amount
}

// TrySpend debits amount only if the balance covers it. Spending nothing
// always succeeds.
func (a *Account) TrySpend(amount int) bool {
	if !a.authority() {
		return false
	}
	if amount <= 0 {
		return true
	}
	if a.balance < amount {
		return false
	}
	a.balance -= amount
	return true
}
