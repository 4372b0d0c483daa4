package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"leverledger/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store on PostgreSQL
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// NewStore creates a new Store backed by the pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithinTx runs fn inside a READ COMMITTED transaction. Row locks taken with
// GetByIDForUpdate and conditional updates serialize competing writers.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if _, inTx := s.db.(pgx.Tx); inTx {
		return fn(ctx, s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Store{pool: s.pool, db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Users returns the user repository bound to this store
func (s *Store) Users() domain.UserRepository {
	return &UserRepositoryImpl{db: s.db}
}

// Positions returns the position repository bound to this store
func (s *Store) Positions() domain.PositionRepository {
	return &PositionRepositoryImpl{db: s.db}
}

// Requests returns the deposit/withdrawal repository bound to this store
func (s *Store) Requests() domain.RequestRepository {
	return &RequestRepositoryImpl{db: s.db}
}

// Prices returns the price table repository bound to this store
func (s *Store) Prices() domain.PriceRepository {
	return &PriceRepositoryImpl{db: s.db}
}

// translate maps driver errors onto ledger errors
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}
