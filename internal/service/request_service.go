package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
)

// QueuePolicy holds the minimum amounts accepted by the funding queues
type QueuePolicy struct {
	MinDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal
}

// DefaultQueuePolicy is 100 for deposits and 150 for withdrawals
func DefaultQueuePolicy() QueuePolicy {
	return QueuePolicy{
		MinDeposit:    domain.DefaultMinDeposit,
		MinWithdrawal: domain.DefaultMinWithdrawal,
	}
}

// RequestService runs the deposit and withdrawal queues
type RequestService struct {
	store    domain.Store
	balances *BalanceService
	policy   QueuePolicy
	notifier Notifier
	metrics  *infra.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewRequestService creates a new RequestService. notifier may be nil.
func NewRequestService(store domain.Store, balances *BalanceService, policy QueuePolicy, notifier Notifier, metrics *infra.Metrics, log zerolog.Logger) *RequestService {
	return &RequestService{
		store:    store,
		balances: balances,
		policy:   policy,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

func (s *RequestService) newRequest(kind domain.RequestKind, userID uuid.UUID, amount decimal.Decimal, reference string) *domain.Request {
	return &domain.Request{
		ID:        uuid.New(),
		Kind:      kind,
		UserID:    userID,
		Amount:    amount.Round(domain.MoneyDecimals),
		Reference: strings.TrimSpace(reference),
		Status:    domain.RequestPending,
		CreatedAt: s.now(),
	}
}

// RequestDeposit queues a deposit. The balance is credited on approval.
func (s *RequestService) RequestDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txRef string) (*domain.Request, error) {
	if amount.LessThan(s.policy.MinDeposit) {
		return nil, fmt.Errorf("minimum deposit is %s: %w", s.policy.MinDeposit, domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(txRef) == "" {
		return nil, fmt.Errorf("transaction reference is required: %w", domain.ErrInvalidInput)
	}

	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	req := s.newRequest(domain.KindDeposit, userID, amount, txRef)
	if err := s.store.Requests().Save(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save deposit: %w", err)
	}

	s.log.Info().Str("request_id", req.ID.String()).Str("user_id", userID.String()).Str("amount", req.Amount.String()).Msg("deposit requested")
	notifyRequestQueued(ctx, s.notifier, s.log, req)
	return req, nil
}

// RequestWithdrawal queues a withdrawal and reserves the amount right away.
// The eligibility check, the record and the debit share one transaction.
func (s *RequestService) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, wallet string) (*domain.Request, error) {
	if amount.LessThan(s.policy.MinWithdrawal) {
		return nil, fmt.Errorf("minimum withdrawal is %s: %w", s.policy.MinWithdrawal, domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(wallet) == "" {
		return nil, fmt.Errorf("wallet address is required: %w", domain.ErrInvalidInput)
	}

	req := s.newRequest(domain.KindWithdrawal, userID, amount, wallet)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}
		if err := s.balances.CheckWithdrawal(user, req.Amount); err != nil {
			return err
		}
		if err := tx.Requests().Save(ctx, req); err != nil {
			return fmt.Errorf("failed to save withdrawal: %w", err)
		}
		_, err = s.balances.adjustInTx(ctx, tx, userID, req.Amount.Neg())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("request_id", req.ID.String()).Str("user_id", userID.String()).Str("amount", req.Amount.String()).Msg("withdrawal requested")
	notifyRequestQueued(ctx, s.notifier, s.log, req)
	return req, nil
}

// ApproveDeposit credits the deposit and marks it approved
func (s *RequestService) ApproveDeposit(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.Request, error) {
	return s.decide(ctx, actor, domain.KindDeposit, id, domain.RequestApproved, "", true)
}

// RejectDeposit marks the deposit rejected without touching the balance
func (s *RequestService) RejectDeposit(ctx context.Context, actor domain.Identity, id uuid.UUID, reason string) (*domain.Request, error) {
	return s.decide(ctx, actor, domain.KindDeposit, id, domain.RequestRejected, reason, false)
}

// ApproveWithdrawal marks the withdrawal approved. Its funds were already
// reserved when it was requested.
func (s *RequestService) ApproveWithdrawal(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.Request, error) {
	return s.decide(ctx, actor, domain.KindWithdrawal, id, domain.RequestApproved, "", false)
}

// RejectWithdrawal refunds the reserved amount and marks it rejected
func (s *RequestService) RejectWithdrawal(ctx context.Context, actor domain.Identity, id uuid.UUID, reason string) (*domain.Request, error) {
	return s.decide(ctx, actor, domain.KindWithdrawal, id, domain.RequestRejected, reason, true)
}

// decide moves a pending request to status and, if credit is set, credits
// its amount back to the owner in the same transaction
func (s *RequestService) decide(ctx context.Context, actor domain.Identity, kind domain.RequestKind, id uuid.UUID, status, reason string, credit bool) (*domain.Request, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%s decisions require an admin: %w", kind, domain.ErrUnauthorized)
	}

	var req *domain.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		var err error
		req, err = tx.Requests().GetByID(ctx, kind, id)
		if err != nil {
			return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
		}
		if !req.IsPending() {
			return fmt.Errorf("%s %s is %s: %w", kind, id, req.Status, domain.ErrAlreadyFinalized)
		}

		decidedAt := s.now()
		req.Status = status
		req.DecidedAt = &decidedAt
		if status == domain.RequestRejected {
			reason = strings.TrimSpace(reason)
			if reason == "" {
				reason = "No reason provided"
			}
			req.RejectionReason = &reason
		}

		ok, err := tx.Requests().FinalizeIfPending(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to finalize %s %s: %w", kind, id, err)
		}
		if !ok {
			return fmt.Errorf("%s %s: %w", kind, id, domain.ErrAlreadyFinalized)
		}

		if credit {
			if _, err := s.balances.adjustInTx(ctx, tx, req.UserID, req.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRequestDecided(string(kind), status)
	s.log.Info().
		Str("request_id", id.String()).
		Str("kind", string(kind)).
		Str("status", status).
		Str("amount", req.Amount.String()).
		Str("admin_id", actor.UserID.String()).
		Msg("request decided")

	return req, nil
}

// ListPending returns pending requests of a kind, oldest first
func (s *RequestService) ListPending(ctx context.Context, actor domain.Identity, kind domain.RequestKind) ([]*domain.Request, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("listing %s requests requires an admin: %w", kind, domain.ErrUnauthorized)
	}
	reqs, err := s.store.Requests().GetPending(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending %s requests: %w", kind, err)
	}
	return reqs, nil
}

// ListForUser returns a user's requests of a kind, newest first
func (s *RequestService) ListForUser(ctx context.Context, userID uuid.UUID, kind domain.RequestKind) ([]*domain.Request, error) {
	reqs, err := s.store.Requests().GetByUserID(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s requests: %w", kind, err)
	}
	return reqs, nil
}
