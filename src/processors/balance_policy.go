package processors

import (
	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/models"
)

type balancePolicyResolverImpl struct{}

func NewBalancePolicyResolver() BalancePolicyResolver {
	return &balancePolicyResolverImpl{}
}

// Resolve applies the insufficient-balance policy to a candidate whose
// computed saving is positive. There is no live bank feed: the saving is
// "covered" when it does not exceed the configured minimum safe balance
// floor.
func (r *balancePolicyResolverImpl) Resolve(tx *models.Transaction, cfg models.SavingsConfig) {
	saving := tx.RealizedSaving()
	if !saving.IsPositive() {
		tx.Status = models.StatusCompleted
		return
	}

	if saving.LessThanOrEqual(cfg.MinSafeBalance) {
		tx.Status = models.StatusCompleted
		return
	}

	switch cfg.BalancePolicy {
	case models.PolicyNoSaving:
		zero := decimal.Zero
		tx.SavingAmount = &zero
		tx.Status = models.StatusCompleted
	case models.PolicyPending:
		// Saving stays as computed; the ledger is not touched until the
		// pending sweep revisits this row.
		tx.Status = models.StatusPending
	case models.PolicyRespectMinBalance:
		reduced := saving.Sub(cfg.MinSafeBalance)
		if reduced.IsNegative() {
			reduced = decimal.Zero
		}
		tx.SavingAmount = &reduced
		tx.Status = models.StatusCompleted
	default:
		if logger.L != nil {
			logger.L.Warn("Unknown balance policy, saving not applied", "policy", cfg.BalancePolicy, "userID", tx.UserID)
		}
		zero := decimal.Zero
		tx.SavingAmount = &zero
		tx.Status = models.StatusCompleted
	}
}
