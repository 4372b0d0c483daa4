package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
)

// BonusPolicy configures the promotional credit granted at registration
type BonusPolicy struct {
	Amount   decimal.Decimal
	ValidFor time.Duration
}

// DefaultBonusPolicy is 50 for 12 hours
func DefaultBonusPolicy() BonusPolicy {
	return BonusPolicy{Amount: decimal.NewFromInt(50), ValidFor: 12 * time.Hour}
}

// BalanceService owns every mutation of user balances
type BalanceService struct {
	store     domain.Store
	scheduler domain.Scheduler
	bonus     BonusPolicy
	metrics   *infra.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(store domain.Store, scheduler domain.Scheduler, bonus BonusPolicy, metrics *infra.Metrics, log zerolog.Logger) *BalanceService {
	return &BalanceService{
		store:     store,
		scheduler: scheduler,
		bonus:     bonus,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

// Adjust applies delta to the user's balance and returns the new balance.
// A debit that meets or exceeds the balance leaves exactly zero.
func (s *BalanceService) Adjust(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		var err error
		balance, err = s.adjustInTx(ctx, tx, userID, delta)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// adjustInTx is the single read-modify-write path for balances. The caller
// must be inside tx so the user row stays locked until commit.
func (s *BalanceService) adjustInTx(ctx context.Context, tx domain.Store, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	user, err := tx.Users().GetByIDForUpdate(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	balance := domain.ApplyDelta(user.Balance, delta)
	if err := tx.Users().UpdateBalance(ctx, userID, balance); err != nil {
		return decimal.Zero, err
	}

	switch {
	case delta.IsNegative() && balance.IsZero() && !user.Balance.Add(delta).IsZero():
		s.metrics.ObserveAdjustment("clamped")
	case delta.IsNegative():
		s.metrics.ObserveAdjustment("debit")
	default:
		s.metrics.ObserveAdjustment("credit")
	}

	return balance, nil
}

// GrantBonus credits the promotional amount and schedules its expiry
func (s *BalanceService) GrantBonus(ctx context.Context, userID uuid.UUID) error {
	expiresAt := s.now().Add(s.bonus.ValidFor)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}
		user.Balance = domain.ApplyDelta(user.Balance, s.bonus.Amount)
		user.HasBonus = true
		user.BonusExpiresAt = &expiresAt
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return err
	}

	s.scheduler.ScheduleAfter(s.bonus.ValidFor, func(ctx context.Context) {
		if err := s.ExpireBonus(ctx, userID); err != nil {
			s.log.Error().Err(err).Str("user_id", userID.String()).Msg("bonus expiry failed")
		}
	})

	s.log.Info().
		Str("user_id", userID.String()).
		Str("amount", s.bonus.Amount.String()).
		Time("expires_at", expiresAt).
		Msg("bonus granted")
	return nil
}

// ExpireBonus withdraws an outstanding bonus if the balance still covers it
// and clears the bonus flag either way
func (s *BalanceService) ExpireBonus(ctx context.Context, userID uuid.UUID) error {
	var debited bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}
		if !user.HasBonus {
			return nil
		}

		if user.Balance.GreaterThanOrEqual(s.bonus.Amount) {
			user.Balance = domain.ApplyDelta(user.Balance, s.bonus.Amount.Neg())
			debited = true
		}
		user.HasBonus = false
		user.BonusExpiresAt = nil
		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID.String()).Bool("debited", debited).Msg("bonus expired")
	return nil
}

// ReapExpiredBonuses expires bonuses whose deadline passed without a
// scheduled expiry, e.g. after a restart
func (s *BalanceService) ReapExpiredBonuses(ctx context.Context) error {
	users, err := s.store.Users().GetExpiredBonuses(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list expired bonuses: %w", err)
	}

	for _, user := range users {
		if err := s.ExpireBonus(ctx, user.ID); err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID.String()).Msg("bonus reap failed")
		}
	}
	return nil
}

// CheckWithdrawal enforces the balance rules of a withdrawal on a user's
// current state. While a bonus is outstanding the bonus amount stays locked
// in the account. Queue minimums are checked by the request queue.
func (s *BalanceService) CheckWithdrawal(user *domain.User, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("withdrawal must be positive: %w", domain.ErrInvalidAmount)
	}
	if amount.GreaterThan(user.Balance) {
		return fmt.Errorf("withdrawal of %s exceeds balance %s: %w", amount, user.Balance, domain.ErrInsufficientBalance)
	}
	if user.HasBonus {
		if !user.Balance.GreaterThan(s.bonus.Amount) {
			return fmt.Errorf("balance must exceed the %s bonus before withdrawing: %w", s.bonus.Amount, domain.ErrInsufficientBalance)
		}
		if limit := user.Balance.Sub(s.bonus.Amount); amount.GreaterThan(limit) {
			return fmt.Errorf("withdrawal of %s exceeds %s available while bonus is active: %w", amount, limit, domain.ErrInsufficientBalance)
		}
	}
	return nil
}
