package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceRepositoryImpl implements the PriceRepository interface
type PriceRepositoryImpl struct {
	db querier
}

// GetAll retrieves the current price of every stored symbol
func (r *PriceRepositoryImpl) GetAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `
		SELECT symbol, price
		FROM prices
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol string
		var price decimal.Decimal
		if err := rows.Scan(&symbol, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices[symbol] = price
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return prices, nil
}

// Upsert updates or creates the price of a symbol
func (r *PriceRepositoryImpl) Upsert(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO prices (symbol, price, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET
			price = EXCLUDED.price,
			updated_at = EXCLUDED.updated_at
	`, symbol, price, at)

	if err != nil {
		return fmt.Errorf("failed to set price %s: %w", symbol, err)
	}

	return nil
}
