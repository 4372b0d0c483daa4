package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

// Sizes of the admin overview lists
const (
	RecentActivityLimit = 10
	DashboardRecentSize = 5
)

// ActivityItem is one entry of a user's recent history
type ActivityItem struct {
	Kind   string          `json:"kind"` // deposit, withdrawal or trade
	ID     uuid.UUID       `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
	Symbol string          `json:"symbol,omitempty"`
	At     time.Time       `json:"at"`
}

// UserDetail is the admin view of one account
type UserDetail struct {
	User      *domain.User       `json:"user"`
	Positions []*domain.Position `json:"positions"`
	Activity  []ActivityItem     `json:"activity"`
}

// Dashboard is the admin overview of the platform
type Dashboard struct {
	UserCount         int                `json:"user_count"`
	TotalBalance      decimal.Decimal    `json:"total_balance"`
	RecentDeposits    []*domain.Request  `json:"recent_deposits"`
	RecentWithdrawals []*domain.Request  `json:"recent_withdrawals"`
	OpenPositions     []*domain.Position `json:"open_positions"`
}

// UpdateUserInput holds the profile fields an admin may change.
// Nil fields are left as they are.
type UpdateUserInput struct {
	Name    *string
	Email   *string
	Balance *decimal.Decimal
}

// AdminService manages accounts on behalf of administrators
type AdminService struct {
	store    domain.Store
	balances *BalanceService
	log      zerolog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(store domain.Store, balances *BalanceService, log zerolog.Logger) *AdminService {
	return &AdminService{
		store:    store,
		balances: balances,
		log:      log,
	}
}

func requireAdmin(actor domain.Identity) error {
	if !actor.IsAdmin {
		return fmt.Errorf("admin access required: %w", domain.ErrUnauthorized)
	}
	return nil
}

// BanUser deactivates an account. Banned users cannot log in.
func (s *AdminService) BanUser(ctx context.Context, actor domain.Identity, userID uuid.UUID, reason string) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("ban reason is required: %w", domain.ErrInvalidInput)
	}

	return s.updateUser(ctx, userID, func(user *domain.User) error {
		if user.IsAdmin() {
			return fmt.Errorf("admins cannot be banned: %w", domain.ErrInvalidInput)
		}
		user.IsActive = false
		user.BanReason = &reason
		return nil
	})
}

// UnbanUser reactivates an account
func (s *AdminService) UnbanUser(ctx context.Context, actor domain.Identity, userID uuid.UUID) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	return s.updateUser(ctx, userID, func(user *domain.User) error {
		user.IsActive = true
		user.BanReason = nil
		return nil
	})
}

// UpdateUser changes profile fields. A balance change is applied as an
// adjustment so it shares the locking of every other balance mutation.
func (s *AdminService) UpdateUser(ctx context.Context, actor domain.Identity, userID uuid.UUID, in UpdateUserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if in.Balance != nil && in.Balance.IsNegative() {
		return nil, fmt.Errorf("balance cannot be negative: %w", domain.ErrInvalidAmount)
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("email %q: %w", email, domain.ErrInvalidInput)
		}
		in.Email = &email
	}

	var updated *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}

		if in.Balance != nil {
			delta := in.Balance.Sub(user.Balance)
			if user.Balance, err = s.balances.adjustInTx(ctx, tx, userID, delta); err != nil {
				return err
			}
		}

		if in.Email != nil && *in.Email != strings.ToLower(user.Email) {
			other, err := tx.Users().GetByEmail(ctx, *in.Email)
			switch {
			case err == nil && other.ID != user.ID:
				return fmt.Errorf("email %s: %w", *in.Email, domain.ErrAlreadyExists)
			case err != nil && !errors.Is(err, domain.ErrNotFound):
				return err
			}
			user.Email = *in.Email
		}
		if in.Name != nil {
			user.Name = strings.TrimSpace(*in.Name)
		}

		if err := tx.Users().Update(ctx, user); err != nil {
			return fmt.Errorf("failed to update user %s: %w", userID, err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", userID.String()).Str("admin_id", actor.UserID.String()).Msg("user updated")
	return updated, nil
}

func (s *AdminService) updateUser(ctx context.Context, userID uuid.UUID, mutate func(*domain.User) error) (*domain.User, error) {
	var updated *domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}
		if err := mutate(user); err != nil {
			return err
		}
		if err := tx.Users().Update(ctx, user); err != nil {
			return fmt.Errorf("failed to update user %s: %w", userID, err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", userID.String()).Bool("active", updated.IsActive).Msg("user status changed")
	return updated, nil
}

// UserDetail returns an account with its positions and recent activity
func (s *AdminService) UserDetail(ctx context.Context, actor domain.Identity, userID uuid.UUID) (*UserDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	positions, err := s.store.Positions().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	deposits, err := s.store.Requests().GetByUserID(ctx, domain.KindDeposit, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposits: %w", err)
	}
	withdrawals, err := s.store.Requests().GetByUserID(ctx, domain.KindWithdrawal, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawals: %w", err)
	}

	return &UserDetail{
		User:      user,
		Positions: positions,
		Activity:  recentActivity(positions, append(deposits, withdrawals...), RecentActivityLimit),
	}, nil
}

func recentActivity(positions []*domain.Position, requests []*domain.Request, limit int) []ActivityItem {
	items := make([]ActivityItem, 0, len(positions)+len(requests))
	for _, req := range requests {
		items = append(items, ActivityItem{
			Kind:   string(req.Kind),
			ID:     req.ID,
			Amount: req.Amount,
			Status: req.Status,
			At:     req.CreatedAt,
		})
	}
	for _, p := range positions {
		items = append(items, ActivityItem{
			Kind:   "trade",
			ID:     p.ID,
			Amount: p.Margin,
			Status: p.Status,
			Symbol: p.Symbol,
			At:     p.OpenedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].At.After(items[j].At)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Dashboard returns the platform overview
func (s *AdminService) Dashboard(ctx context.Context, actor domain.Identity) (*Dashboard, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	users, err := s.store.Users().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	deposits, err := s.store.Requests().GetRecent(ctx, domain.KindDeposit, DashboardRecentSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent deposits: %w", err)
	}
	withdrawals, err := s.store.Requests().GetRecent(ctx, domain.KindWithdrawal, DashboardRecentSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent withdrawals: %w", err)
	}
	open, err := s.store.Positions().GetOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open positions: %w", err)
	}

	d := &Dashboard{
		RecentDeposits:    deposits,
		RecentWithdrawals: withdrawals,
		OpenPositions:     open,
	}
	for _, user := range users {
		if user.IsAdmin() {
			continue
		}
		d.UserCount++
		d.TotalBalance = d.TotalBalance.Add(user.Balance)
	}
	return d, nil
}
