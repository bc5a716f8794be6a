package models

import "github.com/shopspring/decimal"

// ParsedNotification is the transient candidate produced by the
// notification parser. It is never persisted; the ingestion pipeline
// consumes it immediately to construct a Transaction.
type ParsedNotification struct {
	Amount          decimal.Decimal `json:"amount"`
	Merchant        string          `json:"merchant"`
	TransactionType TransactionType `json:"transaction_type"`
	Reference       string          `json:"reference,omitempty"`
	CardLast4       string          `json:"card_last4,omitempty"`
	Phone           string          `json:"phone,omitempty"`
	DateToken       string          `json:"date_token,omitempty"`
	Description     string          `json:"description"`
	Bank            string          `json:"bank"`
}
