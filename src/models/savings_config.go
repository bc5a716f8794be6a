package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type SavingsStrategy string

const (
	StrategyRounding   SavingsStrategy = "ROUNDING"
	StrategyPercentage SavingsStrategy = "PERCENTAGE"
)

type BalancePolicy string

const (
	PolicyNoSaving          BalancePolicy = "NO_SAVING"
	PolicyPending           BalancePolicy = "PENDING"
	PolicyRespectMinBalance BalancePolicy = "RESPECT_MIN_BALANCE"
)

// SavingsConfig is the per-user savings configuration, read-only to the
// ingestion engine. MinSafeBalance is a locally configured floor, not a
// live bank balance.
type SavingsConfig struct {
	Strategy         SavingsStrategy `json:"strategy"`
	RoundingMultiple int64           `json:"rounding_multiple"`
	SavingPercentage decimal.Decimal `json:"saving_percentage"`
	MinSafeBalance   decimal.Decimal `json:"min_safe_balance"`
	BalancePolicy    BalancePolicy   `json:"balance_policy"`
}

// Validate checks the configuration as supplied by the user-management
// surface. The calculator itself is total over degenerate values.
func (c SavingsConfig) Validate() error {
	switch c.Strategy {
	case StrategyRounding:
		if c.RoundingMultiple <= 0 {
			return fmt.Errorf("rounding_multiple must be positive, got %d", c.RoundingMultiple)
		}
	case StrategyPercentage:
		if c.SavingPercentage.IsNegative() || c.SavingPercentage.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("saving_percentage must be between 0 and 100, got %s", c.SavingPercentage)
		}
	default:
		return fmt.Errorf("unknown savings strategy: %q", c.Strategy)
	}

	switch c.BalancePolicy {
	case PolicyNoSaving, PolicyPending, PolicyRespectMinBalance:
	default:
		return fmt.Errorf("unknown balance policy: %q", c.BalancePolicy)
	}

	if c.MinSafeBalance.IsNegative() {
		return fmt.Errorf("min_safe_balance must not be negative, got %s", c.MinSafeBalance)
	}
	return nil
}
