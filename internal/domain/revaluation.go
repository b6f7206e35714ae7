package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// RevaluationJob is one batch recomputation of converted amounts. Counters
// only ever increase while the job is running; a failed job keeps whatever
// partial progress was already persisted.
type RevaluationJob struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	StartDate  *time.Time `json:"start_date,omitempty"`
	Currencies []string   `json:"currencies,omitempty"`
	DryRun     bool       `json:"dry_run"`
	Reason     string     `json:"reason"`

	// TargetCurrency is the owner's preferred currency captured when the
	// job starts running.
	TargetCurrency string `json:"target_currency,omitempty"`

	Status         JobStatus `json:"status"`
	ProcessedCount int       `json:"processed_count"`
	UpdatedCount   int       `json:"updated_count"`
	ErrorCount     int       `json:"error_count"`

	Results []RevaluationResult `json:"results,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RevaluationResult is the per-transaction outcome: the applied change in
// live mode, the would-be change in dry-run mode, or the per-item error.
type RevaluationResult struct {
	TransactionID string          `json:"transaction_id"`
	OldAmount     decimal.Decimal `json:"old_amount"`
	NewAmount     decimal.Decimal `json:"new_amount"`
	Rate          decimal.Decimal `json:"rate"`
	Applied       bool            `json:"applied"`
	Error         string          `json:"error,omitempty"`
}

type RevaluationRequest struct {
	StartDate  *time.Time `json:"start_date"`
	Currencies []string   `json:"currencies" validate:"omitempty,dive,len=3,uppercase"`
	DryRun     bool       `json:"dry_run"`
	Reason     string     `json:"reason" validate:"omitempty,max=255"`
}

type RevaluationJobResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Job     *RevaluationJob `json:"job"`
}
