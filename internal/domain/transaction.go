package domain

import (
	"time"

	"ledger-sync-server/internal/vclock"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindIncome   TransactionKind = "income"
	KindExpense  TransactionKind = "expense"
	KindTransfer TransactionKind = "transfer"
)

type Transaction struct {
	ID      string          `json:"id"`
	OwnerID string          `json:"owner_id"`
	Kind    TransactionKind `json:"kind"`

	Description string    `json:"description"`
	Category    string    `json:"category"`
	Merchant    string    `json:"merchant,omitempty"`
	Date        time.Time `json:"date"`

	OriginalAmount   decimal.Decimal `json:"original_amount"`
	OriginalCurrency string          `json:"original_currency"`

	ConvertedAmount   decimal.Decimal `json:"converted_amount"`
	ConvertedCurrency string          `json:"converted_currency"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`

	RevaluationHistory []RevaluationEntry `json:"revaluation_history,omitempty"`

	SyncClock      vclock.VectorClock `json:"sync_clock"`
	LastEditDevice string             `json:"last_edit_device"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `json:"is_deleted"`
}

// RevaluationEntry is one line of a transaction's revaluation audit trail,
// appended each time a background job changes the converted amount.
type RevaluationEntry struct {
	JobID      string          `json:"job_id"`
	OldAmount  decimal.Decimal `json:"old_amount"`
	NewAmount  decimal.Decimal `json:"new_amount"`
	Rate       decimal.Decimal `json:"rate"`
	Reason     string          `json:"reason,omitempty"`
	RevaluedAt time.Time       `json:"revalued_at"`
}

type CreateTransactionRequest struct {
	Description string          `json:"description" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,uppercase"`
	Category    string          `json:"category" validate:"required,oneof=food transport entertainment utilities healthcare shopping other salary freelance investment transfer"`
	Kind        TransactionKind `json:"kind" validate:"required,oneof=income expense transfer"`
	Merchant    string          `json:"merchant" validate:"omitempty,max=50"`
	Date        *time.Time      `json:"date"`
	DeviceID    string          `json:"device_id" validate:"required"`
}

type UpdateTransactionRequest struct {
	Description *string          `json:"description" validate:"omitempty,max=100"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    *string          `json:"currency" validate:"omitempty,len=3,uppercase"`
	Category    *string          `json:"category" validate:"omitempty,oneof=food transport entertainment utilities healthcare shopping other salary freelance investment transfer"`
	Kind        *TransactionKind `json:"kind" validate:"omitempty,oneof=income expense transfer"`
	Merchant    *string          `json:"merchant" validate:"omitempty,max=50"`
	Date        *time.Time       `json:"date"`
	DeviceID    string           `json:"device_id" validate:"required"`
}

type TransactionResponse struct {
	ID          string          `json:"id"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Merchant    string          `json:"merchant,omitempty"`
	Date        time.Time       `json:"date"`

	OriginalAmount   decimal.Decimal `json:"original_amount"`
	OriginalCurrency string          `json:"original_currency"`

	ConvertedAmount   decimal.Decimal `json:"converted_amount,omitempty"`
	ConvertedCurrency string          `json:"converted_currency,omitempty"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate,omitempty"`

	// DisplayAmount is the amount in the requester's preferred currency; it
	// falls back to the original amount when no fresh rate is available.
	DisplayAmount   decimal.Decimal `json:"display_amount"`
	DisplayCurrency string          `json:"display_currency"`

	HasOpenConflicts bool `json:"has_open_conflicts,omitempty"`

	LastEditDevice string    `json:"last_edit_device"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type TransactionListResponse struct {
	Transactions []*TransactionResponse `json:"transactions"`
	Pagination   Pagination             `json:"pagination"`
}

type RevaluationHistoryResponse struct {
	CurrentRate decimal.Decimal    `json:"current_rate"`
	History     []RevaluationEntry `json:"history"`
}
