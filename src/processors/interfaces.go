package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/models"
)

// SavingResult is the outcome of the savings calculation for one
// expense. HasRounded is set only by the rounding strategy.
type SavingResult struct {
	OriginalAmount decimal.Decimal
	RoundedAmount  decimal.Decimal
	SavingAmount   decimal.Decimal
	HasRounded     bool
}

// SavingsCalculator maps (amount, configuration) to a saving amount.
// Implementations must be total: degenerate configuration values yield
// a zero saving, never an error.
type SavingsCalculator interface {
	Calculate(amount decimal.Decimal, cfg models.SavingsConfig) SavingResult
}

// BalancePolicyResolver adjusts a positive computed saving that would
// violate the configured minimum safe balance. It mutates the candidate
// transaction's saving amount and status; it never persists.
type BalancePolicyResolver interface {
	Resolve(tx *models.Transaction, cfg models.SavingsConfig)
}
