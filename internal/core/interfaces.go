// Package core defines the ports consumed by the orchestrator and service
// layer. Adapters under internal/data and internal/adapters implement them.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/docuflow/automation-api/internal/domain/model"
)

// ErrInsufficientCredits is returned by Charge when the account balance does
// not cover the requested amount.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrAccountNotFound is returned when no credit account exists for a user.
var ErrAccountNotFound = errors.New("credit account not found")

// CreditLedger is the credit accounting collaborator. The orchestrator charges
// at start and issues exactly one compensating refund when a charged job
// fails. Ledger durability and consistency are owned by the implementation.
type CreditLedger interface {
	// Charge deducts amount credits from the user's balance.
	// Returns ErrInsufficientCredits when the balance does not cover it.
	Charge(ctx context.Context, userID string, amount int) error
	// Refund returns amount credits to the user's balance.
	Refund(ctx context.Context, userID string, amount int) error
}

// StatusEvent is the compact job update published for dashboard consumers.
type StatusEvent struct {
	JobID       string          `json:"job_id"`
	ServiceKind string          `json:"service_kind"`
	Status      model.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	At          time.Time       `json:"at"`
}

// StatusPublisher pushes job status transitions to interested consumers.
// Publishing is best-effort; failures must not affect job execution.
type StatusPublisher interface {
	Publish(ctx context.Context, evt StatusEvent) error
}
