package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

// UserRepositoryImpl implements the UserRepository interface
type UserRepositoryImpl struct {
	db querier
}

const userColumns = `
	id, username, email, name, password_hash, role, balance,
	is_active, ban_reason, has_bonus, bonus_expires_at, created_at, updated_at
`

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.Balance,
		&user.IsActive,
		&user.BanReason,
		&user.HasBonus,
		&user.BonusExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepositoryImpl) queryUsers(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// Create creates a new user
func (r *UserRepositoryImpl) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			id, username, email, name, password_hash, role, balance,
			is_active, ban_reason, has_bonus, bonus_expires_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Balance,
		user.IsActive,
		user.BanReason,
		user.HasBonus,
		user.BonusExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", translate(err))
	}

	return user, nil
}

// GetByIDForUpdate retrieves a user and holds its row lock until the transaction ends
func (r *UserRepositoryImpl) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", translate(err))
	}

	return user, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepositoryImpl) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", translate(err))
	}

	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translate(err))
	}

	return user, nil
}

// GetAll retrieves all users
func (r *UserRepositoryImpl) GetAll(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`

	users, err := r.queryUsers(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all users: %w", err)
	}

	return users, nil
}

// Update updates profile, status, balance and bonus fields
func (r *UserRepositoryImpl) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET username = $2, email = $3, name = $4, role = $5, balance = $6,
		    is_active = $7, ban_reason = $8, has_bonus = $9, bonus_expires_at = $10,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Name,
		user.Role,
		user.Balance,
		user.IsActive,
		user.BanReason,
		user.HasBonus,
		user.BonusExpiresAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate(err))
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to update user: %w", domain.ErrNotFound)
	}

	return nil
}

// UpdateBalance updates user's balance
func (r *UserRepositoryImpl) UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	query := `
		UPDATE users
		SET balance = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, userID, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed to update balance: %w", domain.ErrNotFound)
	}

	return nil
}

// GetExpiredBonuses retrieves users whose bonus expired before now
func (r *UserRepositoryImpl) GetExpiredBonuses(ctx context.Context, now time.Time) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE has_bonus = TRUE AND bonus_expires_at IS NOT NULL AND bonus_expires_at <= $1
		ORDER BY bonus_expires_at ASC
	`

	users, err := r.queryUsers(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired bonuses: %w", err)
	}

	return users, nil
}
