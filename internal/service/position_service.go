package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
)

// OpenPositionInput holds the caller's order
type OpenPositionInput struct {
	UserID     uuid.UUID
	Symbol     string
	Margin     decimal.Decimal
	Leverage   int
	Direction  string
	TakeProfit *decimal.Decimal
	StopLoss   *decimal.Decimal
}

// PositionView is a position as shown to its owner, with live figures for
// positions that are still open
type PositionView struct {
	*domain.Position
	CurrentPrice          *decimal.Decimal `json:"current_price,omitempty"`
	CurrentProfitLoss     *decimal.Decimal `json:"current_profit_loss,omitempty"`
	PriceChangePercentage *decimal.Decimal `json:"price_change_percentage,omitempty"`
}

// PositionService opens and closes leveraged positions
type PositionService struct {
	store       domain.Store
	prices      *PriceService
	balances    *BalanceService
	instruments domain.InstrumentSet
	notifier    Notifier
	metrics     *infra.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// NewPositionService creates a new PositionService. notifier may be nil.
func NewPositionService(
	store domain.Store,
	prices *PriceService,
	balances *BalanceService,
	instruments domain.InstrumentSet,
	notifier Notifier,
	metrics *infra.Metrics,
	log zerolog.Logger,
) *PositionService {
	return &PositionService{
		store:       store,
		prices:      prices,
		balances:    balances,
		instruments: instruments,
		notifier:    notifier,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

// Open validates the order, prices it at the current price and debits the
// margin. The position and the debit commit together or not at all.
func (s *PositionService) Open(ctx context.Context, in OpenPositionInput) (*domain.Position, error) {
	inst, ok := s.instruments.Lookup(in.Symbol)
	if !ok {
		return nil, fmt.Errorf("symbol %q: %w", in.Symbol, domain.ErrUnsupportedInstrument)
	}
	margin := in.Margin.Round(domain.MoneyDecimals)
	if !margin.IsPositive() {
		return nil, fmt.Errorf("margin %s must be at least 0.01: %w", in.Margin, domain.ErrInvalidAmount)
	}
	if in.Leverage < 1 {
		return nil, fmt.Errorf("leverage must be at least 1: %w", domain.ErrInvalidAmount)
	}
	if !domain.ValidDirection(in.Direction) {
		return nil, fmt.Errorf("direction %q: %w", in.Direction, domain.ErrInvalidDirection)
	}
	if (in.TakeProfit != nil && !in.TakeProfit.IsPositive()) || (in.StopLoss != nil && !in.StopLoss.IsPositive()) {
		return nil, fmt.Errorf("take profit and stop loss must be positive: %w", domain.ErrInvalidPrice)
	}

	leverage := s.instruments.ClampLeverage(inst.Symbol, in.Leverage)

	entry, err := s.prices.Get(ctx, inst.Symbol)
	if err != nil {
		return nil, err
	}
	if !entry.IsPositive() {
		return nil, fmt.Errorf("entry price %s for %s: %w", entry, inst.Symbol, domain.ErrInvalidPrice)
	}

	position := &domain.Position{
		ID:               uuid.New(),
		UserID:           in.UserID,
		Symbol:           inst.Symbol,
		Margin:           margin,
		Leverage:         leverage,
		EntryPrice:       entry,
		LiquidationPrice: domain.LiquidationPrice(entry, leverage, in.Direction),
		Direction:        in.Direction,
		TakeProfit:       in.TakeProfit,
		StopLoss:         in.StopLoss,
		Status:           domain.StatusOpen,
		OpenedAt:         s.now(),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		user, err := tx.Users().GetByIDForUpdate(ctx, in.UserID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", in.UserID, err)
		}
		if position.Margin.GreaterThan(user.Balance) {
			return fmt.Errorf("margin %s exceeds balance %s: %w", position.Margin, user.Balance, domain.ErrInsufficientBalance)
		}
		if err := tx.Positions().Save(ctx, position); err != nil {
			return fmt.Errorf("failed to save position: %w", err)
		}
		_, err = s.balances.adjustInTx(ctx, tx, in.UserID, position.Margin.Neg())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePositionOpened(position.Symbol, position.Direction)
	s.log.Info().
		Str("position_id", position.ID.String()).
		Str("user_id", position.UserID.String()).
		Str("symbol", position.Symbol).
		Str("direction", position.Direction).
		Int("leverage", position.Leverage).
		Str("entry", entry.String()).
		Str("liquidation", position.LiquidationPrice.String()).
		Msg("position opened")

	return position, nil
}

// Close settles an open position at closePrice and credits the resulting
// profit/loss. Only one close of a position can succeed; later attempts
// return ErrAlreadyFinalized.
func (s *PositionService) Close(ctx context.Context, positionID uuid.UUID, closePrice decimal.Decimal, reason string) (decimal.Decimal, error) {
	if !domain.ValidCloseReason(reason) {
		return decimal.Zero, fmt.Errorf("close reason %q: %w", reason, domain.ErrInvalidInput)
	}
	if !closePrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("close price %s: %w", closePrice, domain.ErrInvalidPrice)
	}

	var position *domain.Position
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		var err error
		position, err = tx.Positions().GetByID(ctx, positionID)
		if err != nil {
			return fmt.Errorf("failed to load position %s: %w", positionID, err)
		}
		if !position.IsOpen() {
			return fmt.Errorf("position %s is %s: %w", positionID, position.Status, domain.ErrAlreadyFinalized)
		}

		profitLoss := position.ProfitLossAt(closePrice)
		closedAt := s.now()
		position.Status = domain.StatusForReason(reason)
		position.ClosePrice = &closePrice
		position.ProfitLoss = &profitLoss
		position.ClosedAt = &closedAt
		position.CloseReason = &reason

		closed, err := tx.Positions().CloseIfOpen(ctx, position)
		if err != nil {
			return fmt.Errorf("failed to close position %s: %w", positionID, err)
		}
		if !closed {
			return fmt.Errorf("position %s: %w", positionID, domain.ErrAlreadyFinalized)
		}

		_, err = s.balances.adjustInTx(ctx, tx, position.UserID, profitLoss)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.metrics.ObservePositionClosed(reason)
	s.log.Info().
		Str("position_id", position.ID.String()).
		Str("symbol", position.Symbol).
		Str("reason", reason).
		Str("entry", position.EntryPrice.String()).
		Str("close", closePrice.String()).
		Str("profit_loss", position.ProfitLoss.String()).
		Msg("position closed")

	if reason == domain.CloseReasonLiquidation {
		notifyLiquidation(ctx, s.notifier, s.log, position)
	}
	return *position.ProfitLoss, nil
}

// CloseForUser closes a position manually at the current price. Users may
// only close their own positions; admins may close any.
func (s *PositionService) CloseForUser(ctx context.Context, actor domain.Identity, positionID uuid.UUID) (decimal.Decimal, error) {
	position, err := s.store.Positions().GetByID(ctx, positionID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load position %s: %w", positionID, err)
	}
	if position.UserID != actor.UserID && !actor.IsAdmin {
		return decimal.Zero, fmt.Errorf("position %s: %w", positionID, domain.ErrNotFound)
	}
	if !position.IsOpen() {
		return decimal.Zero, fmt.Errorf("position %s is %s: %w", positionID, position.Status, domain.ErrAlreadyFinalized)
	}

	price, err := s.prices.Get(ctx, position.Symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Close(ctx, positionID, price, domain.CloseReasonManual)
}

// EvaluateTriggers closes position if price hits its take-profit, stop-loss
// or liquidation level. It reports whether this call closed the position.
func (s *PositionService) EvaluateTriggers(ctx context.Context, position *domain.Position, price decimal.Decimal) (bool, error) {
	if !position.IsOpen() {
		return false, nil
	}
	reason, hit := position.CheckTriggers(price)
	if !hit {
		return false, nil
	}

	if _, err := s.Close(ctx, position.ID, price, reason); err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListForUser returns the user's positions, newest first. Open positions are
// checked against their triggers first and carry live profit/loss figures.
func (s *PositionService) ListForUser(ctx context.Context, userID uuid.UUID) ([]PositionView, error) {
	positions, err := s.store.Positions().GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	prices := s.prices.List(ctx)
	views := make([]PositionView, 0, len(positions))
	for _, position := range positions {
		view := PositionView{Position: position}
		price, ok := prices[position.Symbol]
		if !ok || !position.IsOpen() {
			views = append(views, view)
			continue
		}

		closed, err := s.EvaluateTriggers(ctx, position, price)
		if err != nil {
			s.log.Error().Err(err).Str("position_id", position.ID.String()).Msg("trigger evaluation failed")
		}
		if closed {
			if reloaded, err := s.store.Positions().GetByID(ctx, position.ID); err == nil {
				view.Position = reloaded
			}
			views = append(views, view)
			continue
		}

		current := position.ProfitLossAt(price)
		change := position.PriceChange(price).Mul(decimal.NewFromInt(100)).Round(domain.MoneyDecimals)
		view.CurrentPrice = &price
		view.CurrentProfitLoss = &current
		view.PriceChangePercentage = &change
		views = append(views, view)
	}

	return views, nil
}

// ListAll returns every position, newest first
func (s *PositionService) ListAll(ctx context.Context) ([]*domain.Position, error) {
	positions, err := s.store.Positions().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return positions, nil
}
