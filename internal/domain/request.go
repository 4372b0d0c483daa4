package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequestKind distinguishes the two funding queues
type RequestKind string

// RequestKind constants
const (
	KindDeposit    RequestKind = "deposit"
	KindWithdrawal RequestKind = "withdrawal"
)

// RequestStatus constants
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// Default queue minimums
var (
	DefaultMinDeposit    = decimal.NewFromInt(100)
	DefaultMinWithdrawal = decimal.NewFromInt(150)
)

// Request is a deposit or withdrawal awaiting, or past, admin review.
// Reference holds the transaction reference of a deposit or the
// destination wallet of a withdrawal.
type Request struct {
	ID              uuid.UUID       `json:"id"`
	Kind            RequestKind     `json:"kind"`
	UserID          uuid.UUID       `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
}

// IsPending checks if the request still awaits a decision
func (r *Request) IsPending() bool {
	return r.Status == RequestPending
}
