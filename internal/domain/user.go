package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents an account holder in the ledger
type User struct {
	ID             uuid.UUID       `json:"id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	PasswordHash   string          `json:"-"` // Never expose password hash in JSON
	Role           string          `json:"role"`
	Balance        decimal.Decimal `json:"balance"`
	IsActive       bool            `json:"is_active"`
	BanReason      *string         `json:"ban_reason,omitempty"`
	HasBonus       bool            `json:"has_bonus"`
	BonusExpiresAt *time.Time      `json:"bonus_expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// UserRole constants
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Identity is the authenticated caller as seen by the core
type Identity struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// ApplyDelta returns balance+delta, except that a debit at least as large
// as the balance wipes the account to exactly zero.
func ApplyDelta(balance, delta decimal.Decimal) decimal.Decimal {
	if delta.IsNegative() && delta.Abs().GreaterThanOrEqual(balance) {
		return decimal.Zero
	}
	return balance.Add(delta)
}
