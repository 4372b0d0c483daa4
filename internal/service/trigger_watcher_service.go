package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
)

// TriggerWatcherService settles take-profit, stop-loss and liquidation on a
// fixed interval, independent of read traffic
type TriggerWatcherService struct {
	store     domain.Store
	prices    *PriceService
	positions *PositionService
	metrics   *infra.Metrics
	log       zerolog.Logger
}

// NewTriggerWatcherService creates a new TriggerWatcherService
func NewTriggerWatcherService(
	store domain.Store,
	prices *PriceService,
	positions *PositionService,
	metrics *infra.Metrics,
	log zerolog.Logger,
) *TriggerWatcherService {
	return &TriggerWatcherService{
		store:     store,
		prices:    prices,
		positions: positions,
		metrics:   metrics,
		log:       log,
	}
}

// CheckPositions evaluates every open position against the current price,
// oldest first, and returns how many it closed
func (s *TriggerWatcherService) CheckPositions(ctx context.Context) (int, error) {
	started := time.Now()

	positions, err := s.store.Positions().GetOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get open positions: %w", err)
	}
	defer func() {
		s.metrics.ObserveWatcherPass(time.Since(started).Seconds(), len(positions))
	}()

	if len(positions) == 0 {
		return 0, nil
	}

	prices := s.prices.List(ctx)

	closed := 0
	for _, position := range positions {
		if err := ctx.Err(); err != nil {
			return closed, err
		}

		price, ok := prices[position.Symbol]
		if !ok {
			s.log.Warn().Str("symbol", position.Symbol).Msg("price not found, skipping")
			continue
		}

		hit, err := s.positions.EvaluateTriggers(ctx, position, price)
		if err != nil {
			s.log.Error().Err(err).Str("position_id", position.ID.String()).Msg("failed to settle position")
			continue
		}
		if hit {
			closed++
		}
	}

	s.log.Debug().Int("open", len(positions)).Int("closed", closed).Msg("trigger watcher pass")
	return closed, nil
}
