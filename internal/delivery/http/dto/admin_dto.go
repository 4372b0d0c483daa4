package dto

import (
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

// UpdateUserRequest holds the fields an admin may change; omitted fields stay
type UpdateUserRequest struct {
	Name    *string          `json:"name,omitempty"`
	Email   *string          `json:"email,omitempty"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// ReasonRequest carries a ban or rejection reason
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// SetPriceRequest sets a price permanently, or for DurationMinutes if set
type SetPriceRequest struct {
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
}

// PendingRequestsOutput lists both funding queues
type PendingRequestsOutput struct {
	Deposits    []*domain.Request `json:"deposits"`
	Withdrawals []*domain.Request `json:"withdrawals"`
}
