package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeExpense    TransactionType = "EXPENSE"
	TypeIncome     TransactionType = "INCOME"
	TypeSaving     TransactionType = "SAVING"
	TypeFee        TransactionType = "FEE"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeExpense, TypeIncome, TypeSaving, TypeFee, TypeWithdrawal:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Transaction represents one financial event in the ledger.
// The original/rounded/saving triple is populated only when a saving was
// computed for an EXPENSE; SavingAmount is the realized delta and, for the
// rounding strategy, equals RoundedAmount - OriginalAmount.
type Transaction struct {
	ID                 int64             `json:"id"`
	ReferenceID        string            `json:"reference_id"`
	UserID             int64             `json:"user_id"`
	Amount             decimal.Decimal   `json:"amount"`
	Description        string            `json:"description"`
	MerchantName       string            `json:"merchant_name,omitempty"`
	TransactionType    TransactionType   `json:"transaction_type"`
	Status             TransactionStatus `json:"status"`
	OriginalAmount     *decimal.Decimal  `json:"original_amount,omitempty"`
	RoundedAmount      *decimal.Decimal  `json:"rounded_amount,omitempty"`
	SavingAmount       *decimal.Decimal  `json:"saving_amount,omitempty"`
	NotificationSource string            `json:"notification_source,omitempty"`
	BankReference      string            `json:"bank_reference,omitempty"`
	TransactionDate    time.Time         `json:"transaction_date"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// RealizedSaving returns the computed saving or zero when none was recorded.
func (t *Transaction) RealizedSaving() decimal.Decimal {
	if t.SavingAmount == nil {
		return decimal.Zero
	}
	return *t.SavingAmount
}
