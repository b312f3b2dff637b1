// Package mocks provides mock implementations for testing the automation job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// core ports. The mocks are generated using go:generate directives and provide a
// fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockLedger := mocks.NewMockCreditLedger(ctrl)
//	mockLedger.EXPECT().Refund(gomock.Any(), "user-1", 10).Return(nil)
package mocks

// Generate mock for CreditLedger interface from internal/core package.
// This creates MockCreditLedger with methods: Charge, Refund
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credit_ledger_mock.go github.com/docuflow/automation-api/internal/core CreditLedger

// Generate mock for StatusPublisher interface from internal/core package.
// This creates MockStatusPublisher with methods: Publish
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=status_publisher_mock.go github.com/docuflow/automation-api/internal/core StatusPublisher
