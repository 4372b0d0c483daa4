package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the transactional ledger store every component depends on
type Store interface {
	Users() UserRepository
	Positions() PositionRepository
	Requests() RequestRepository
	Prices() PriceRepository

	// WithinTx runs fn inside a transaction. The Store passed to fn must be
	// used for every read and write that belongs to the transaction.
	// Returning an error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByIDForUpdate retrieves a user and locks it until the transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetAll retrieves all users
	GetAll(ctx context.Context) ([]*User, error)

	// Update updates profile, status, balance and bonus fields
	Update(ctx context.Context, user *User) error

	// UpdateBalance updates user's balance
	UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error

	// GetExpiredBonuses retrieves users whose bonus expired before now
	GetExpiredBonuses(ctx context.Context, now time.Time) ([]*User, error)
}

// PositionRepository defines the interface for position operations
type PositionRepository interface {
	// Save creates a new position
	Save(ctx context.Context, position *Position) error

	// GetByID retrieves a position by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Position, error)

	// GetByUserID retrieves all positions for a user, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Position, error)

	// GetOpenPositions retrieves open positions ordered by open time, then ID
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// GetAll retrieves every position, newest first
	GetAll(ctx context.Context) ([]*Position, error)

	// CloseIfOpen writes the close fields only if the stored position is
	// still open. It reports whether this call performed the transition.
	CloseIfOpen(ctx context.Context, position *Position) (bool, error)
}

// RequestRepository defines the interface for deposit and withdrawal requests
type RequestRepository interface {
	// Save creates a new request
	Save(ctx context.Context, req *Request) error

	// GetByID retrieves a request by kind and ID
	GetByID(ctx context.Context, kind RequestKind, id uuid.UUID) (*Request, error)

	// GetByUserID retrieves a user's requests of a kind, newest first
	GetByUserID(ctx context.Context, kind RequestKind, userID uuid.UUID) ([]*Request, error)

	// GetPending retrieves pending requests of a kind, oldest first
	GetPending(ctx context.Context, kind RequestKind) ([]*Request, error)

	// GetRecent retrieves the most recent requests of a kind
	GetRecent(ctx context.Context, kind RequestKind, limit int) ([]*Request, error)

	// FinalizeIfPending writes the decision only if the stored request is
	// still pending. It reports whether this call performed the transition.
	FinalizeIfPending(ctx context.Context, req *Request) (bool, error)
}

// PriceRepository defines the interface for the price table
type PriceRepository interface {
	// GetAll retrieves the current price of every stored symbol
	GetAll(ctx context.Context) (map[string]decimal.Decimal, error)

	// Upsert stores the current price of a symbol
	Upsert(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error
}
