package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/models"
	"github.com/username/ahorrito/src/parsers"
)

var (
	// ErrValidation marks synchronously rejected requests; no partial
	// state is written for these.
	ErrValidation = errors.New("validation failed")

	// ErrParseFailed marks a notification whose text yielded no amount.
	ErrParseFailed = errors.New("notification could not be parsed")

	// ErrInsufficientSavings marks a withdrawal larger than the user's
	// accumulated savings total.
	ErrInsufficientSavings = errors.New("withdrawal exceeds accumulated savings")

	// ErrNotPending marks a cancellation attempt on a transaction that
	// is not in the PENDING state.
	ErrNotPending = errors.New("transaction is not pending")
)

// CreateTransactionRequest is the engine's ingestion input, used both
// for explicit submissions and for candidates extracted from
// notifications (the latter carry provenance fields).
type CreateTransactionRequest struct {
	UserID             int64
	Amount             decimal.Decimal
	Description        string
	MerchantName       string
	TransactionType    models.TransactionType
	TransactionDate    *time.Time
	NotificationSource string
	BankReference      string
}

// SweepReport summarizes one pending-reprocessing sweep. A failing
// transaction is marked FAILED and listed here; it never aborts the
// rest of the sweep.
type SweepReport struct {
	UserID       int64   `json:"user_id,omitempty"`
	Scanned      int     `json:"scanned"`
	Completed    []int64 `json:"completed"`
	StillPending []int64 `json:"still_pending"`
	Skipped      []int64 `json:"skipped"`
	Failed       []int64 `json:"failed"`
}

type TransactionService interface {
	CreateTransaction(req CreateTransactionRequest) (*models.Transaction, error)
	IngestRawNotification(userID int64, rawText, bankHint string) (*models.Transaction, *parsers.ParseResult, error)
	SavingDeposit(userID int64, amount decimal.Decimal, description string) (*models.Transaction, error)
	Withdraw(userID int64, amount decimal.Decimal, description string) (*models.Transaction, error)
	CancelTransaction(userID, transactionID int64) error
	ListTransactions(userID int64) ([]models.Transaction, error)
	ProcessPendingForUser(userID int64) (*SweepReport, error)
	ProcessAllPending() (*SweepReport, error)
	InvalidateConfigCache(userID int64)
}
