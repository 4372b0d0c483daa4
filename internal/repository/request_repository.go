package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leverledger/internal/domain"
)

// RequestRepositoryImpl implements the RequestRepository interface over
// the deposits and withdrawals tables
type RequestRepositoryImpl struct {
	db querier
}

// requestTable returns the table and reference column of a queue
func requestTable(kind domain.RequestKind) (table, refColumn string, err error) {
	switch kind {
	case domain.KindDeposit:
		return "deposits", "tx_ref", nil
	case domain.KindWithdrawal:
		return "withdrawals", "wallet", nil
	}
	return "", "", fmt.Errorf("unknown request kind %q", kind)
}

func selectRequests(kind domain.RequestKind) (string, error) {
	table, ref, err := requestTable(kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`
		SELECT id, user_id, amount, %s, status, rejection_reason, created_at, decided_at
		FROM %s
	`, ref, table), nil
}

func scanRequest(kind domain.RequestKind, row pgx.Row) (*domain.Request, error) {
	req := &domain.Request{Kind: kind}
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.Amount,
		&req.Reference,
		&req.Status,
		&req.RejectionReason,
		&req.CreatedAt,
		&req.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *RequestRepositoryImpl) queryRequests(ctx context.Context, kind domain.RequestKind, clause string, args ...any) ([]*domain.Request, error) {
	base, err := selectRequests(kind)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, base+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*domain.Request
	for rows.Next() {
		req, err := scanRequest(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		reqs = append(reqs, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s requests: %w", kind, err)
	}

	return reqs, nil
}

// Save creates a new request
func (r *RequestRepositoryImpl) Save(ctx context.Context, req *domain.Request) error {
	table, ref, err := requestTable(req.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, amount, %s, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, table, ref)

	_, err = r.db.Exec(ctx, query,
		req.ID,
		req.UserID,
		req.Amount,
		req.Reference,
		req.Status,
		req.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save %s: %w", req.Kind, translate(err))
	}

	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepositoryImpl) GetByID(ctx context.Context, kind domain.RequestKind, id uuid.UUID) (*domain.Request, error) {
	base, err := selectRequests(kind)
	if err != nil {
		return nil, err
	}

	req, err := scanRequest(kind, r.db.QueryRow(ctx, base+` WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s by ID: %w", kind, translate(err))
	}

	return req, nil
}

// GetByUserID retrieves a user's requests
func (r *RequestRepositoryImpl) GetByUserID(ctx context.Context, kind domain.RequestKind, userID uuid.UUID) ([]*domain.Request, error) {
	reqs, err := r.queryRequests(ctx, kind, ` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s requests by user: %w", kind, err)
	}
	return reqs, nil
}

// GetPending retrieves requests awaiting review
func (r *RequestRepositoryImpl) GetPending(ctx context.Context, kind domain.RequestKind) ([]*domain.Request, error) {
	reqs, err := r.queryRequests(ctx, kind, ` WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending %s requests: %w", kind, err)
	}
	return reqs, nil
}

// GetRecent retrieves the most recent requests
func (r *RequestRepositoryImpl) GetRecent(ctx context.Context, kind domain.RequestKind, limit int) ([]*domain.Request, error) {
	reqs, err := r.queryRequests(ctx, kind, ` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent %s requests: %w", kind, err)
	}
	return reqs, nil
}

// FinalizeIfPending records the decision if the request is still pending
func (r *RequestRepositoryImpl) FinalizeIfPending(ctx context.Context, req *domain.Request) (bool, error) {
	table, _, err := requestTable(req.Kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, rejection_reason = $3, decided_at = $4
		WHERE id = $1 AND status = 'pending'
	`, table)

	result, err := r.db.Exec(ctx, query, req.ID, req.Status, req.RejectionReason, req.DecidedAt)
	if err != nil {
		return false, fmt.Errorf("failed to finalize %s: %w", req.Kind, err)
	}

	return result.RowsAffected() == 1, nil
}
