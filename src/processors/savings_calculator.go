package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/models"
)

type savingsCalculatorImpl struct{}

func NewSavingsCalculator() SavingsCalculator {
	return &savingsCalculatorImpl{}
}

// Calculate computes the saving for an EXPENSE amount under the user's
// strategy. Callers only invoke it for expenses; other transaction
// types never produce a computed saving.
func (c *savingsCalculatorImpl) Calculate(amount decimal.Decimal, cfg models.SavingsConfig) SavingResult {
	switch cfg.Strategy {
	case models.StrategyRounding:
		return c.calculateRounding(amount, cfg.RoundingMultiple)
	case models.StrategyPercentage:
		return c.calculatePercentage(amount, cfg.SavingPercentage)
	default:
		return SavingResult{OriginalAmount: amount, SavingAmount: decimal.Zero}
	}
}

// calculateRounding rounds the amount strictly up to the next multiple;
// an exact multiple stays put and saves zero.
func (c *savingsCalculatorImpl) calculateRounding(amount decimal.Decimal, multiple int64) SavingResult {
	result := SavingResult{OriginalAmount: amount, SavingAmount: decimal.Zero}
	if multiple <= 0 || amount.IsNegative() {
		return result
	}

	result.RoundedAmount = RoundUpToMultiple(amount, multiple)
	result.SavingAmount = result.RoundedAmount.Sub(amount)
	result.HasRounded = true
	return result
}

func (c *savingsCalculatorImpl) calculatePercentage(amount decimal.Decimal, percentage decimal.Decimal) SavingResult {
	result := SavingResult{OriginalAmount: amount, SavingAmount: decimal.Zero}
	if percentage.LessThanOrEqual(decimal.Zero) || amount.IsNegative() {
		return result
	}

	result.SavingAmount = PercentageSaving(amount, percentage)
	return result
}

// RoundUpToMultiple returns the smallest multiple of `multiple` that is
// greater than or equal to amount. The arithmetic is exact at any
// magnitude.
func RoundUpToMultiple(amount decimal.Decimal, multiple int64) decimal.Decimal {
	m := decimal.NewFromInt(multiple)
	rem := amount.Mod(m)
	if rem.IsZero() {
		return amount
	}
	return amount.Sub(rem).Add(m)
}

// PercentageSaving returns amount * percentage / 100, rounded to cents.
func PercentageSaving(amount decimal.Decimal, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(percentage).Div(decimal.NewFromInt(100)).Round(2)
}
