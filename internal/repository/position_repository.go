package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leverledger/internal/domain"
)

// PositionRepositoryImpl implements the PositionRepository interface
type PositionRepositoryImpl struct {
	db querier
}

const positionColumns = `
	id, user_id, symbol, margin, leverage, entry_price, liquidation_price,
	direction, take_profit, stop_loss, status, opened_at,
	close_price, profit_loss, closed_at, close_reason
`

func scanPosition(row pgx.Row) (*domain.Position, error) {
	position := &domain.Position{}
	err := row.Scan(
		&position.ID,
		&position.UserID,
		&position.Symbol,
		&position.Margin,
		&position.Leverage,
		&position.EntryPrice,
		&position.LiquidationPrice,
		&position.Direction,
		&position.TakeProfit,
		&position.StopLoss,
		&position.Status,
		&position.OpenedAt,
		&position.ClosePrice,
		&position.ProfitLoss,
		&position.ClosedAt,
		&position.CloseReason,
	)
	if err != nil {
		return nil, err
	}
	return position, nil
}

func (r *PositionRepositoryImpl) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.Position, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// Save creates a new position
func (r *PositionRepositoryImpl) Save(ctx context.Context, position *domain.Position) error {
	query := `
		INSERT INTO positions (
			id, user_id, symbol, margin, leverage, entry_price, liquidation_price,
			direction, take_profit, stop_loss, status, opened_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := r.db.Exec(ctx, query,
		position.ID,
		position.UserID,
		position.Symbol,
		position.Margin,
		position.Leverage,
		position.EntryPrice,
		position.LiquidationPrice,
		position.Direction,
		position.TakeProfit,
		position.StopLoss,
		position.Status,
		position.OpenedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save position: %w", translate(err))
	}

	return nil
}

// GetByID retrieves a position by ID
func (r *PositionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	position, err := scanPosition(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get position by ID: %w", translate(err))
	}

	return position, nil
}

// GetByUserID retrieves all positions for a user
func (r *PositionRepositoryImpl) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1
		ORDER BY opened_at DESC, id DESC
	`

	positions, err := r.queryPositions(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions by user ID: %w", err)
	}

	return positions, nil
}

// GetOpenPositions retrieves all open positions across all users in open order
func (r *PositionRepositoryImpl) GetOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = 'open'
		ORDER BY opened_at ASC, id ASC
	`

	positions, err := r.queryPositions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}

	return positions, nil
}

// GetAll retrieves every position
func (r *PositionRepositoryImpl) GetAll(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY opened_at DESC, id DESC
	`

	positions, err := r.queryPositions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}

	return positions, nil
}

// CloseIfOpen performs the open -> terminal transition if nobody else did first
func (r *PositionRepositoryImpl) CloseIfOpen(ctx context.Context, position *domain.Position) (bool, error) {
	query := `
		UPDATE positions
		SET status = $2,
		    close_price = $3,
		    profit_loss = $4,
		    closed_at = $5,
		    close_reason = $6
		WHERE id = $1 AND status = 'open'
	`

	result, err := r.db.Exec(ctx, query,
		position.ID,
		position.Status,
		position.ClosePrice,
		position.ProfitLoss,
		position.ClosedAt,
		position.CloseReason,
	)

	if err != nil {
		return false, fmt.Errorf("failed to close position: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
