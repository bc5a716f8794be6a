package processors

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/models"
)

func expenseWithSaving(saving string) *models.Transaction {
	s := dec(saving)
	return &models.Transaction{
		UserID:          1,
		Amount:          dec("4500"),
		TransactionType: models.TypeExpense,
		Status:          models.StatusCompleted,
		SavingAmount:    &s,
	}
}

func TestResolveInsufficientBalancePolicies(t *testing.T) {
	// minSafeBalance 300, computed saving 500: the saving exceeds the
	// floor, so each policy decides differently.
	cfg := models.SavingsConfig{MinSafeBalance: dec("300")}

	tests := []struct {
		name       string
		policy     models.BalancePolicy
		wantSaving string
		wantStatus models.TransactionStatus
	}{
		{"no saving zeroes out", models.PolicyNoSaving, "0", models.StatusCompleted},
		{"pending keeps the saving and defers", models.PolicyPending, "500", models.StatusPending},
		{"respect min balance reduces", models.PolicyRespectMinBalance, "200", models.StatusCompleted},
	}

	resolver := NewBalancePolicyResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.BalancePolicy = tt.policy
			tx := expenseWithSaving("500")
			resolver.Resolve(tx, cfg)

			if !tx.RealizedSaving().Equal(dec(tt.wantSaving)) {
				t.Errorf("saving = %s, want %s", tx.RealizedSaving(), tt.wantSaving)
			}
			if tx.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", tx.Status, tt.wantStatus)
			}
		})
	}
}

func TestResolveSufficientBalanceLeavesSaving(t *testing.T) {
	resolver := NewBalancePolicyResolver()
	cfg := models.SavingsConfig{
		MinSafeBalance: dec("1000"),
		BalancePolicy:  models.PolicyNoSaving,
	}

	tx := expenseWithSaving("500")
	resolver.Resolve(tx, cfg)

	if !tx.RealizedSaving().Equal(dec("500")) {
		t.Errorf("covered saving must stay intact, got %s", tx.RealizedSaving())
	}
	if tx.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", tx.Status)
	}
}

func TestResolveZeroSavingCompletes(t *testing.T) {
	resolver := NewBalancePolicyResolver()
	cfg := models.SavingsConfig{
		MinSafeBalance: decimal.Zero,
		BalancePolicy:  models.PolicyPending,
	}

	tx := expenseWithSaving("0")
	tx.Status = models.StatusPending
	resolver.Resolve(tx, cfg)

	if tx.Status != models.StatusCompleted {
		t.Errorf("zero saving must complete regardless of policy, got %s", tx.Status)
	}
}
