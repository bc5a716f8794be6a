package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/database"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/model"
	"github.com/username/ahorrito/src/models"
	"github.com/username/ahorrito/src/parsers"
	"github.com/username/ahorrito/src/processors"
)

const ckSavingsConfig = "savings_cfg_user_%d"

type transactionServiceImpl struct {
	parser         *parsers.NotificationParser
	calculator     processors.SavingsCalculator
	policyResolver processors.BalancePolicyResolver
	configCache    *cache.Cache
	reprocessMode  string
}

func NewTransactionService(
	parser *parsers.NotificationParser,
	calculator processors.SavingsCalculator,
	policyResolver processors.BalancePolicyResolver,
	configCache *cache.Cache,
	reprocessMode string,
) TransactionService {
	return &transactionServiceImpl{
		parser:         parser,
		calculator:     calculator,
		policyResolver: policyResolver,
		configCache:    configCache,
		reprocessMode:  reprocessMode,
	}
}

// getSavingsConfig reads a user's savings configuration through the
// cache; a miss loads from the database.
func (s *transactionServiceImpl) getSavingsConfig(userID int64) (models.SavingsConfig, error) {
	cacheKey := fmt.Sprintf(ckSavingsConfig, userID)
	if cached, found := s.configCache.Get(cacheKey); found {
		return cached.(models.SavingsConfig), nil
	}
	cfg, err := model.GetSavingsConfig(database.DB, userID)
	if err != nil {
		return cfg, err
	}
	s.configCache.Set(cacheKey, cfg, cache.DefaultExpiration)
	return cfg, nil
}

// InvalidateConfigCache drops the cached savings configuration for a
// user; called after a configuration update.
func (s *transactionServiceImpl) InvalidateConfigCache(userID int64) {
	s.configCache.Delete(fmt.Sprintf(ckSavingsConfig, userID))
}

// CreateTransaction runs the full ingestion pipeline: validation,
// savings calculation for expenses, balance policy resolution, and the
// atomic ledger write.
func (s *transactionServiceImpl) CreateTransaction(req CreateTransactionRequest) (*models.Transaction, error) {
	if req.UserID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !req.TransactionType.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, req.TransactionType)
	}

	cfg, err := s.getSavingsConfig(req.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	txDate := now
	if req.TransactionDate != nil {
		txDate = *req.TransactionDate
	}

	tx := &models.Transaction{
		ReferenceID:        uuid.NewString(),
		UserID:             req.UserID,
		Amount:             req.Amount,
		Description:        req.Description,
		MerchantName:       req.MerchantName,
		TransactionType:    req.TransactionType,
		Status:             models.StatusCompleted,
		NotificationSource: req.NotificationSource,
		BankReference:      req.BankReference,
		TransactionDate:    txDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if req.TransactionType == models.TypeExpense {
		calc := s.calculator.Calculate(req.Amount, cfg)
		if calc.HasRounded || calc.SavingAmount.IsPositive() {
			original := calc.OriginalAmount
			saving := calc.SavingAmount
			tx.OriginalAmount = &original
			tx.SavingAmount = &saving
			if calc.HasRounded {
				rounded := calc.RoundedAmount
				tx.RoundedAmount = &rounded
			}
		}
		if tx.RealizedSaving().IsPositive() {
			s.policyResolver.Resolve(tx, cfg)
		}
	}

	if err := s.createAndFinalize(tx); err != nil {
		logger.L.Error("Transaction finalize failed", "userID", req.UserID, "error", err)
		s.persistFailed(tx)
		return nil, err
	}

	logger.L.Info("Transaction created",
		"userID", tx.UserID, "type", tx.TransactionType, "status", tx.Status,
		"amount", tx.Amount, "saving", tx.RealizedSaving())
	return tx, nil
}

// IngestRawNotification parses raw notification text server-side and
// feeds the candidate through the same pipeline as explicit requests.
func (s *transactionServiceImpl) IngestRawNotification(userID int64, rawText, bankHint string) (*models.Transaction, *parsers.ParseResult, error) {
	result := s.parser.Parse(rawText, bankHint)
	if !result.Success {
		logger.L.Warn("Notification parse failed", "userID", userID, "bankHint", bankHint, "error", result.Error)
		return nil, &result, fmt.Errorf("%w: %s", ErrParseFailed, result.Error)
	}

	merchant := result.Merchant
	if merchant == parsers.MerchantNotIdentified {
		merchant = ""
	}

	tx, err := s.CreateTransaction(CreateTransactionRequest{
		UserID:             userID,
		Amount:             result.Amount,
		Description:        result.Description,
		MerchantName:       merchant,
		TransactionType:    result.TransactionType,
		NotificationSource: result.Bank,
		BankReference:      result.Reference,
	})
	return tx, &result, err
}

// SavingDeposit is a manual ledger adjustment that bypasses the
// calculator: the full amount goes to the savings total.
func (s *transactionServiceImpl) SavingDeposit(userID int64, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if description == "" {
		description = "Depósito a ahorros"
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := applySavingIncrement(dbTx, userID, models.ToCents(amount)); err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &models.Transaction{
		ReferenceID:     uuid.NewString(),
		UserID:          userID,
		Amount:          amount,
		Description:     description,
		TransactionType: models.TypeSaving,
		Status:          models.StatusCompleted,
		TransactionDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := insertTransaction(dbTx, tx); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing saving deposit: %w", err)
	}
	logger.L.Info("Saving deposit applied", "userID", userID, "amount", amount)
	return tx, nil
}

// Withdraw decrements the savings total. The balance guard sits in the
// UPDATE's WHERE clause so a concurrent withdrawal cannot overdraw.
func (s *transactionServiceImpl) Withdraw(userID int64, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if description == "" {
		description = "Retiro de ahorros"
	}

	// Distinguish "unknown user" from "insufficient savings" up front.
	if _, err := model.GetSavingsConfig(database.DB, userID); err != nil {
		return nil, err
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	cents := models.ToCents(amount)
	res, err := dbTx.Exec(
		`UPDATE users SET total_saved_cents = total_saved_cents - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND total_saved_cents >= ?`,
		cents, userID, cents,
	)
	if err != nil {
		return nil, fmt.Errorf("error decrementing savings total for userID %d: %w", userID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrInsufficientSavings
	}

	now := time.Now()
	tx := &models.Transaction{
		ReferenceID:     uuid.NewString(),
		UserID:          userID,
		Amount:          amount,
		Description:     description,
		TransactionType: models.TypeWithdrawal,
		Status:          models.StatusCompleted,
		TransactionDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := insertTransaction(dbTx, tx); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing withdrawal: %w", err)
	}
	logger.L.Info("Withdrawal applied", "userID", userID, "amount", amount)
	return tx, nil
}

// CancelTransaction is the external cancellation path; only PENDING
// rows can move to CANCELLED and the ledger is never touched.
func (s *transactionServiceImpl) CancelTransaction(userID, transactionID int64) error {
	res, err := database.DB.Exec(
		`UPDATE transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND user_id = ? AND status = ?`,
		string(models.StatusCancelled), transactionID, userID, string(models.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("error cancelling transaction %d: %w", transactionID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotPending
	}
	logger.L.Info("Transaction cancelled", "userID", userID, "transactionID", transactionID)
	return nil
}

func (s *transactionServiceImpl) ListTransactions(userID int64) ([]models.Transaction, error) {
	rows, err := database.DB.Query(
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY transaction_date DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for userID %d: %w", userID, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("error scanning transaction row for userID %d: %w", userID, scanErr)
		}
		transactions = append(transactions, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows for userID %d: %w", userID, err)
	}
	return transactions, nil
}

// createAndFinalize persists the transaction and, when it completed
// with a realized saving, increments the owner's cumulative-saved total
// in the same database transaction. Either both writes land or neither.
func (s *transactionServiceImpl) createAndFinalize(tx *models.Transaction) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := insertTransaction(dbTx, tx); err != nil {
		return err
	}

	saving := tx.RealizedSaving()
	if tx.Status == models.StatusCompleted && saving.IsPositive() {
		if err := applySavingIncrement(dbTx, tx.UserID, models.ToCents(saving)); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// persistFailed records the transaction as FAILED without touching the
// savings total. Best effort: called after the finalize unit of work
// already rolled back.
func (s *transactionServiceImpl) persistFailed(tx *models.Transaction) {
	tx.Status = models.StatusFailed
	tx.UpdatedAt = time.Now()
	dbTx, err := database.DB.Begin()
	if err != nil {
		logger.L.Error("Could not record FAILED transaction", "userID", tx.UserID, "error", err)
		return
	}
	defer dbTx.Rollback()
	if err := insertTransaction(dbTx, tx); err != nil {
		logger.L.Error("Could not record FAILED transaction", "userID", tx.UserID, "error", err)
		return
	}
	if err := dbTx.Commit(); err != nil {
		logger.L.Error("Could not record FAILED transaction", "userID", tx.UserID, "error", err)
	}
}

// applySavingIncrement atomically adds cents to the user's cumulative
// total inside the caller's database transaction. The in-database
// arithmetic serializes concurrent increments for the same user.
func applySavingIncrement(dbTx *sql.Tx, userID int64, cents int64) error {
	res, err := dbTx.Exec(
		`UPDATE users SET total_saved_cents = total_saved_cents + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		cents, userID,
	)
	if err != nil {
		return fmt.Errorf("error incrementing savings total for userID %d: %w", userID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

const transactionColumns = `id, reference_id, user_id, amount_cents, description, merchant_name, transaction_type, status, original_amount_cents, rounded_amount_cents, saving_amount_cents, notification_source, bank_reference, transaction_date, created_at, updated_at`

func insertTransaction(dbTx *sql.Tx, tx *models.Transaction) error {
	res, err := dbTx.Exec(
		`INSERT INTO transactions (reference_id, user_id, amount_cents, description, merchant_name, transaction_type, status, original_amount_cents, rounded_amount_cents, saving_amount_cents, notification_source, bank_reference, transaction_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ReferenceID,
		tx.UserID,
		models.ToCents(tx.Amount),
		tx.Description,
		nullString(tx.MerchantName),
		string(tx.TransactionType),
		string(tx.Status),
		nullCents(tx.OriginalAmount),
		nullCents(tx.RoundedAmount),
		nullCents(tx.SavingAmount),
		nullString(tx.NotificationSource),
		nullString(tx.BankReference),
		tx.TransactionDate,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error inserting transaction (ReferenceID: %s): %w", tx.ReferenceID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = id
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var amountCents int64
	var merchant, source, bankRef sql.NullString
	var originalCents, roundedCents, savingCents sql.NullInt64
	var txType, status string

	err := row.Scan(
		&tx.ID, &tx.ReferenceID, &tx.UserID, &amountCents, &tx.Description,
		&merchant, &txType, &status,
		&originalCents, &roundedCents, &savingCents,
		&source, &bankRef,
		&tx.TransactionDate, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount = models.FromCents(amountCents)
	tx.MerchantName = merchant.String
	tx.TransactionType = models.TransactionType(txType)
	tx.Status = models.TransactionStatus(status)
	tx.NotificationSource = source.String
	tx.BankReference = bankRef.String
	if originalCents.Valid {
		d := models.FromCents(originalCents.Int64)
		tx.OriginalAmount = &d
	}
	if roundedCents.Valid {
		d := models.FromCents(roundedCents.Int64)
		tx.RoundedAmount = &d
	}
	if savingCents.Valid {
		d := models.FromCents(savingCents.Int64)
		tx.SavingAmount = &d
	}
	return &tx, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullCents(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return models.ToCents(*d)
}
