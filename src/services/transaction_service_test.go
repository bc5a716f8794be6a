package services

import (
	"errors"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/database"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/model"
	"github.com/username/ahorrito/src/models"
	"github.com/username/ahorrito/src/parsers"
	"github.com/username/ahorrito/src/processors"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// setupService opens a fresh in-memory database for the test and builds
// the full pipeline on top of it. cache=shared keeps every pooled
// connection on the same in-memory database.
func setupService(t *testing.T, reprocessMode string) TransactionService {
	t.Helper()
	logger.InitLogger("error")

	database.InitDB("file:" + t.Name() + "?mode=memory&cache=shared")
	database.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { database.DB.Close() })

	return NewTransactionService(
		parsers.NewNotificationParser(),
		processors.NewSavingsCalculator(),
		processors.NewBalancePolicyResolver(),
		cache.New(time.Minute, time.Minute),
		reprocessMode,
	)
}

func createTestUser(t *testing.T, username string, cfg models.SavingsConfig) int64 {
	t.Helper()
	user := &model.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "not-a-real-hash",
		Savings:  cfg,
	}
	if err := user.CreateUser(database.DB); err != nil {
		t.Fatalf("creating test user %q: %v", username, err)
	}
	return user.ID
}

func savedTotal(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	user, err := model.GetUserByID(database.DB, userID)
	if err != nil {
		t.Fatalf("loading user %d: %v", userID, err)
	}
	return user.TotalSaved
}

func TestCreateExpenseAppliesRoundingSaving(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "maria", models.SavingsConfig{
		Strategy:         models.StrategyRounding,
		RoundingMultiple: 1000,
		SavingPercentage: dec("5"),
		MinSafeBalance:   dec("1000"),
		BalancePolicy:    models.PolicyNoSaving,
	})

	tx, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          userID,
		Amount:          dec("4500"),
		Description:     "Almuerzo",
		TransactionType: models.TypeExpense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if tx.ID <= 0 || tx.ReferenceID == "" {
		t.Errorf("transaction not persisted properly: id=%d ref=%q", tx.ID, tx.ReferenceID)
	}
	if tx.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", tx.Status)
	}
	if tx.RoundedAmount == nil || !tx.RoundedAmount.Equal(dec("5000")) {
		t.Errorf("rounded amount = %v, want 5000", tx.RoundedAmount)
	}
	if !tx.RealizedSaving().Equal(dec("500")) {
		t.Errorf("saving = %s, want 500", tx.RealizedSaving())
	}
	if got := savedTotal(t, userID); !got.Equal(dec("500")) {
		t.Errorf("total saved = %s, want 500", got)
	}
}

func TestCreateExpenseExactMultipleSavesNothing(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "maria", models.SavingsConfig{
		Strategy:         models.StrategyRounding,
		RoundingMultiple: 1000,
		SavingPercentage: dec("5"),
		MinSafeBalance:   dec("1000"),
		BalancePolicy:    models.PolicyNoSaving,
	})

	tx, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          userID,
		Amount:          dec("5000"),
		TransactionType: models.TypeExpense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if !tx.RealizedSaving().IsZero() {
		t.Errorf("saving = %s, want 0 for an exact multiple", tx.RealizedSaving())
	}
	if tx.Status != models.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", tx.Status)
	}
	if got := savedTotal(t, userID); !got.IsZero() {
		t.Errorf("total saved = %s, want 0", got)
	}
}

func TestCreateExpensePercentageStrategy(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "carlos", models.SavingsConfig{
		Strategy:         models.StrategyPercentage,
		RoundingMultiple: 1000,
		SavingPercentage: dec("10"),
		MinSafeBalance:   dec("100000"),
		BalancePolicy:    models.PolicyNoSaving,
	})

	tx, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          userID,
		Amount:          dec("200"),
		TransactionType: models.TypeExpense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if !tx.RealizedSaving().Equal(dec("20")) {
		t.Errorf("saving = %s, want 20", tx.RealizedSaving())
	}
	if tx.RoundedAmount != nil {
		t.Errorf("percentage strategy must not record a rounded amount, got %v", tx.RoundedAmount)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("20")) {
		t.Errorf("total saved = %s, want 20", got)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "maria", models.SavingsConfig{})

	tests := []struct {
		name string
		req  CreateTransactionRequest
	}{
		{"missing user", CreateTransactionRequest{Amount: dec("100"), TransactionType: models.TypeExpense}},
		{"zero amount", CreateTransactionRequest{UserID: userID, Amount: decimal.Zero, TransactionType: models.TypeExpense}},
		{"negative amount", CreateTransactionRequest{UserID: userID, Amount: dec("-5"), TransactionType: models.TypeExpense}},
		{"unknown type", CreateTransactionRequest{UserID: userID, Amount: dec("100"), TransactionType: "LOAN"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateTransaction(tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	// Rejected requests must leave no trace in the ledger.
	txs, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("ledger has %d rows after rejected requests, want 0", len(txs))
	}
}

func TestCreateTransactionUnknownUser(t *testing.T) {
	svc := setupService(t, "grant")

	_, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          999,
		Amount:          dec("100"),
		TransactionType: models.TypeExpense,
	})
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestPendingPolicyDefersUntilSweep(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "maria", models.SavingsConfig{
		Strategy:         models.StrategyRounding,
		RoundingMultiple: 1000,
		SavingPercentage: dec("5"),
		MinSafeBalance:   decimal.Zero,
		BalancePolicy:    models.PolicyPending,
	})

	tx, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          userID,
		Amount:          dec("4500"),
		TransactionType: models.TypeExpense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tx.Status != models.StatusPending {
		t.Fatalf("status = %s, want PENDING", tx.Status)
	}
	if got := savedTotal(t, userID); !got.IsZero() {
		t.Fatalf("deferred saving must not touch the ledger, total = %s", got)
	}

	report, err := svc.ProcessPendingForUser(userID)
	if err != nil {
		t.Fatalf("ProcessPendingForUser: %v", err)
	}
	if report.Scanned != 1 || len(report.Completed) != 1 || report.Completed[0] != tx.ID {
		t.Fatalf("sweep report = %+v, want transaction %d completed", report, tx.ID)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("500")) {
		t.Errorf("total saved after sweep = %s, want 500", got)
	}

	txs, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Status != models.StatusCompleted {
		t.Errorf("stored status = %s, want COMPLETED", txs[0].Status)
	}

	// A second sweep finds nothing and leaves the total alone.
	report, err = svc.ProcessPendingForUser(userID)
	if err != nil {
		t.Fatalf("second ProcessPendingForUser: %v", err)
	}
	if report.Scanned != 0 {
		t.Errorf("second sweep scanned %d rows, want 0", report.Scanned)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("500")) {
		t.Errorf("total saved after second sweep = %s, want 500", got)
	}
}

func TestRecheckModeKeepsInsufficientPending(t *testing.T) {
	svc := setupService(t, "recheck")
	cfg := models.SavingsConfig{
		Strategy:         models.StrategyRounding,
		RoundingMultiple: 1000,
		SavingPercentage: dec("5"),
		MinSafeBalance:   decimal.Zero,
		BalancePolicy:    models.PolicyPending,
	}
	userID := createTestUser(t, "maria", cfg)

	tx, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          userID,
		Amount:          dec("4500"),
		TransactionType: models.TypeExpense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tx.Status != models.StatusPending {
		t.Fatalf("status = %s, want PENDING", tx.Status)
	}

	// The configuration has not changed, so a recheck defers again.
	report, err := svc.ProcessPendingForUser(userID)
	if err != nil {
		t.Fatalf("ProcessPendingForUser: %v", err)
	}
	if len(report.StillPending) != 1 || report.StillPending[0] != tx.ID {
		t.Fatalf("sweep report = %+v, want transaction %d still pending", report, tx.ID)
	}
	if got := savedTotal(t, userID); !got.IsZero() {
		t.Fatalf("total saved = %s, want 0 while still pending", got)
	}

	// Raising the floor makes the deferred saving coverable.
	cfg.MinSafeBalance = dec("1000")
	if err := model.UpdateSavingsConfig(database.DB, userID, cfg); err != nil {
		t.Fatalf("UpdateSavingsConfig: %v", err)
	}
	svc.InvalidateConfigCache(userID)

	report, err = svc.ProcessPendingForUser(userID)
	if err != nil {
		t.Fatalf("second ProcessPendingForUser: %v", err)
	}
	if len(report.Completed) != 1 || report.Completed[0] != tx.ID {
		t.Fatalf("sweep report = %+v, want transaction %d completed", report, tx.ID)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("500")) {
		t.Errorf("total saved = %s, want 500", got)
	}
}

func TestSavingDepositAndWithdraw(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "carlos", models.SavingsConfig{})

	deposit, err := svc.SavingDeposit(userID, dec("100.50"), "")
	if err != nil {
		t.Fatalf("SavingDeposit: %v", err)
	}
	if deposit.TransactionType != models.TypeSaving || deposit.Status != models.StatusCompleted {
		t.Errorf("deposit recorded as %s/%s, want SAVING/COMPLETED", deposit.TransactionType, deposit.Status)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("100.50")) {
		t.Fatalf("total saved = %s, want 100.50", got)
	}

	// Overdraw attempt leaves the ledger untouched.
	if _, err := svc.Withdraw(userID, dec("250"), ""); !errors.Is(err, ErrInsufficientSavings) {
		t.Fatalf("err = %v, want ErrInsufficientSavings", err)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("100.50")) {
		t.Errorf("total saved after rejected withdrawal = %s, want 100.50", got)
	}
	txs, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("ledger has %d rows after rejected withdrawal, want 1", len(txs))
	}

	withdrawal, err := svc.Withdraw(userID, dec("40.50"), "")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if withdrawal.TransactionType != models.TypeWithdrawal {
		t.Errorf("withdrawal recorded as %s, want WITHDRAWAL", withdrawal.TransactionType)
	}
	if got := savedTotal(t, userID); !got.Equal(dec("60")) {
		t.Errorf("total saved after withdrawal = %s, want 60", got)
	}

	if _, err := svc.Withdraw(999, dec("10"), ""); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("unknown user err = %v, want ErrUserNotFound", err)
	}
	if _, err := svc.SavingDeposit(userID, dec("-1"), ""); !errors.Is(err, ErrValidation) {
		t.Errorf("negative deposit err = %v, want ErrValidation", err)
	}
}

func TestCancelOnlyPendingTransactions(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "maria", models.SavingsConfig{
		Strategy:         models.StrategyRounding,
		RoundingMultiple: 1000,
		SavingPercentage: dec("5"),
		MinSafeBalance:   decimal.Zero,
		BalancePolicy:    models.PolicyPending,
	})

	tx, err := svc.CreateTransaction(CreateTransactionRequest{
		UserID:          userID,
		Amount:          dec("4500"),
		TransactionType: models.TypeExpense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if tx.Status != models.StatusPending {
		t.Fatalf("status = %s, want PENDING", tx.Status)
	}

	if err := svc.CancelTransaction(userID, tx.ID); err != nil {
		t.Fatalf("CancelTransaction: %v", err)
	}
	txs, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if txs[0].Status != models.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", txs[0].Status)
	}

	// Cancelled rows are invisible to the sweep and the ledger stays flat.
	report, err := svc.ProcessPendingForUser(userID)
	if err != nil {
		t.Fatalf("ProcessPendingForUser: %v", err)
	}
	if report.Scanned != 0 {
		t.Errorf("sweep scanned %d rows after cancel, want 0", report.Scanned)
	}
	if got := savedTotal(t, userID); !got.IsZero() {
		t.Errorf("total saved = %s, want 0 after cancel", got)
	}

	if err := svc.CancelTransaction(userID, tx.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("second cancel err = %v, want ErrNotPending", err)
	}

	deposit, err := svc.SavingDeposit(userID, dec("10"), "")
	if err != nil {
		t.Fatalf("SavingDeposit: %v", err)
	}
	if err := svc.CancelTransaction(userID, deposit.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("cancel of completed transaction err = %v, want ErrNotPending", err)
	}
}

func TestIngestRawNotification(t *testing.T) {
	svc := setupService(t, "grant")
	userID := createTestUser(t, "maria", models.SavingsConfig{
		Strategy:         models.StrategyRounding,
		RoundingMultiple: 1000,
		SavingPercentage: dec("5"),
		MinSafeBalance:   dec("10000"),
		BalancePolicy:    models.PolicyNoSaving,
	})

	tx, result, err := svc.IngestRawNotification(userID, "Compra en Exito por $45.500", "")
	if err != nil {
		t.Fatalf("IngestRawNotification: %v", err)
	}
	if !result.Success {
		t.Fatalf("parse result not successful: %s", result.Error)
	}
	if tx.MerchantName != "Exito" {
		t.Errorf("merchant = %q, want Exito", tx.MerchantName)
	}
	if tx.NotificationSource != "generic" {
		t.Errorf("notification source = %q, want generic", tx.NotificationSource)
	}
	if !tx.RealizedSaving().Equal(dec("500")) {
		t.Errorf("saving = %s, want 500", tx.RealizedSaving())
	}
	if got := savedTotal(t, userID); !got.Equal(dec("500")) {
		t.Errorf("total saved = %s, want 500", got)
	}

	// Unparseable text surfaces the parse result and writes nothing.
	_, result, err = svc.IngestRawNotification(userID, "Su clave dinamica es 482913", "")
	if !errors.Is(err, ErrParseFailed) {
		t.Fatalf("err = %v, want ErrParseFailed", err)
	}
	if result == nil || result.Success {
		t.Errorf("parse result = %+v, want failure detail", result)
	}
	txs, err := svc.ListTransactions(userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("ledger has %d rows, want 1", len(txs))
	}
}
