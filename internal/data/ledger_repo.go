// Package data holds the persistence adapters backing the credit ledger.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docuflow/automation-api/internal/core"
)

// LedgerRepo is the Postgres-backed credit ledger.
//
// Schema:
//
//	CREATE TABLE credit_accounts (
//	    user_id    TEXT PRIMARY KEY,
//	    balance    BIGINT NOT NULL CHECK (balance >= 0),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type LedgerRepo struct {
	DB *sql.DB
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{DB: db}
}

var _ core.CreditLedger = (*LedgerRepo)(nil)

// Charge debits the user's balance atomically. The balance guard lives in the
// UPDATE predicate, so concurrent charges can never drive a balance negative.
func (r *LedgerRepo) Charge(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("charge amount must be positive, got %d", amount)
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE credit_accounts
		    SET balance = balance - $2, updated_at = now()
		  WHERE user_id = $1 AND balance >= $2`,
		userID, amount,
	)
	if err != nil {
		if isCheckViolation(err) {
			return core.ErrInsufficientCredits
		}
		return fmt.Errorf("charge credits for %s: %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("charge credits for %s: %w", userID, err)
	}
	if affected == 0 {
		return r.classifyMiss(ctx, userID)
	}
	return nil
}

// Refund credits the user's balance back.
func (r *LedgerRepo) Refund(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("refund amount must be positive, got %d", amount)
	}

	res, err := r.DB.ExecContext(ctx,
		`UPDATE credit_accounts
		    SET balance = balance + $2, updated_at = now()
		  WHERE user_id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("refund credits for %s: %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("refund credits for %s: %w", userID, err)
	}
	if affected == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

// Balance reads the current balance, mainly for the HTTP surface and tests.
func (r *LedgerRepo) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.DB.QueryRowContext(ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read balance for %s: %w", userID, err)
	}
	return balance, nil
}

// classifyMiss distinguishes "no such account" from "not enough credits"
// after a guarded UPDATE matched nothing.
func (r *LedgerRepo) classifyMiss(ctx context.Context, userID string) error {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_accounts WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("classify charge miss for %s: %w", userID, err)
	}
	if !exists {
		return core.ErrAccountNotFound
	}
	return core.ErrInsufficientCredits
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}
