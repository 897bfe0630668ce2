package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type GuarantorRequest struct {
	ID              string     `json:"id"`
	BookingID       string     `json:"booking_id"`
	UserID          string     `json:"user_id"`
	GuarantorID     string     `json:"guarantor_id"`
	Status          string     `json:"status"` // pending, accepted, rejected
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
}

// GuarantorPoints is one guarantor's current share of a booking's point pool.
type GuarantorPoints struct {
	ID              string          `json:"id"`
	BookingID       string          `json:"booking_id"`
	GuarantorID     string          `json:"guarantor_id"`
	RequestID       string          `json:"request_id"`
	BookingAmount   decimal.Decimal `json:"booking_amount"`
	TotalPoolAmount decimal.Decimal `json:"total_pool_amount"`
	TotalGuarantors int             `json:"total_guarantors"`
	PointsAllocated decimal.Decimal `json:"points_allocated"`
	Status          string          `json:"status"` // active, reversed, cancelled
	ReversalReason  string          `json:"reversal_reason,omitempty"`
	ReversedAt      *time.Time      `json:"reversed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LedgerTask is a queued retry of a ledger operation that failed inline.
type LedgerTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   string     `json:"booking_id"`
	GuarantorID string     `json:"guarantor_id,omitempty"`
	RequestID   string     `json:"request_id,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
