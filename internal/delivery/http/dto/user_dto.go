package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

// UserOutput represents user details in API responses
type UserOutput struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Role           string          `json:"role"`
	Balance        decimal.Decimal `json:"balance"`
	IsActive       bool            `json:"is_active"`
	HasBonus       bool            `json:"has_bonus"`
	BonusExpiresAt *time.Time      `json:"bonus_expires_at,omitempty"`
}

// NewUserOutput converts a domain user for output
func NewUserOutput(u *domain.User) *UserOutput {
	return &UserOutput{
		ID:             u.ID.String(),
		Username:       u.Username,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Balance:        u.Balance,
		IsActive:       u.IsActive,
		HasBonus:       u.HasBonus,
		BonusExpiresAt: u.BonusExpiresAt,
	}
}

// OpenPositionRequest represents a new order
type OpenPositionRequest struct {
	Symbol     string           `json:"symbol"`
	Margin     decimal.Decimal  `json:"margin"`
	Leverage   int              `json:"leverage"`
	Direction  string           `json:"direction"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
}

// DepositRequest represents a deposit request
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	TxRef  string          `json:"tx_ref"`
}

// WithdrawalRequest represents a withdrawal request
type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Wallet string          `json:"wallet"`
}
