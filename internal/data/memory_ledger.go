package data

import (
	"context"
	"fmt"
	"sync"

	"github.com/docuflow/automation-api/internal/core"
)

// MemoryLedger is an in-memory credit ledger for development and tests. It
// mirrors the LedgerRepo semantics, including the non-negative balance guard.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int

	// seedBalance, when positive, provisions unknown accounts on first use
	// instead of failing with ErrAccountNotFound. Dev mode only.
	seedBalance int
}

// NewMemoryLedger creates a ledger seeded with the given balances.
func NewMemoryLedger(balances map[string]int) *MemoryLedger {
	seeded := make(map[string]int, len(balances))
	for user, balance := range balances {
		seeded[user] = balance
	}
	return &MemoryLedger{balances: seeded}
}

// NewMemoryLedgerWithSeed creates a ledger that provisions every unknown
// account with the given starting balance on first use.
func NewMemoryLedgerWithSeed(balance int) *MemoryLedger {
	return &MemoryLedger{
		balances:    make(map[string]int),
		seedBalance: balance,
	}
}

var _ core.CreditLedger = (*MemoryLedger)(nil)

// Charge debits the user's balance.
func (l *MemoryLedger) Charge(_ context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("charge amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[userID]
	if !ok {
		if l.seedBalance <= 0 {
			return core.ErrAccountNotFound
		}
		balance = l.seedBalance
		l.balances[userID] = balance
	}
	if balance < amount {
		return core.ErrInsufficientCredits
	}
	l.balances[userID] = balance - amount
	return nil
}

// Refund credits the user's balance back.
func (l *MemoryLedger) Refund(_ context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[userID]; !ok {
		return core.ErrAccountNotFound
	}
	l.balances[userID] += amount
	return nil
}

// Balance reads the current balance.
func (l *MemoryLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[userID]
	if !ok {
		return 0, core.ErrAccountNotFound
	}
	return balance, nil
}

// SetBalance creates or overwrites an account balance.
func (l *MemoryLedger) SetBalance(userID string, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}
