package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
)

// overrideTolerance is how close the current price must be to an override
// target for the scheduled revert to restore the original
var overrideTolerance = decimal.RequireFromString("0.01")

// PriceService holds the current price of every supported instrument.
// Reads are served from memory; every write also goes to the store.
type PriceService struct {
	store       domain.Store
	instruments domain.InstrumentSet
	scheduler   domain.Scheduler
	snapshot    domain.PriceSnapshotStore
	metrics     *infra.Metrics
	log         zerolog.Logger
	now         func() time.Time

	mu     sync.Mutex
	prices map[string]decimal.Decimal
	// pinned counts pending temporary overrides per symbol; the feed does
	// not overwrite a pinned symbol
	pinned map[string]int
}

// NewPriceService creates a new PriceService. snapshot may be nil.
func NewPriceService(
	store domain.Store,
	instruments domain.InstrumentSet,
	scheduler domain.Scheduler,
	snapshot domain.PriceSnapshotStore,
	metrics *infra.Metrics,
	log zerolog.Logger,
) *PriceService {
	return &PriceService{
		store:       store,
		instruments: instruments,
		scheduler:   scheduler,
		snapshot:    snapshot,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
		prices:      make(map[string]decimal.Decimal),
		pinned:      make(map[string]int),
	}
}

// Load fills the cache from the store. Supported symbols missing there are
// seeded from the snapshot if one is configured, else from reference prices.
func (s *PriceService) Load(ctx context.Context) error {
	stored, err := s.store.Prices().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load prices: %w", err)
	}

	var snapshot map[string]decimal.Decimal
	if s.snapshot != nil {
		snapshot, err = s.snapshot.LoadPrices(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("price snapshot unavailable, seeding from reference prices")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range s.instruments.Instruments() {
		if price, ok := stored[inst.Symbol]; ok && price.IsPositive() {
			s.prices[inst.Symbol] = price
			continue
		}

		price := inst.SeedPrice
		if cached, ok := snapshot[inst.Symbol]; ok && cached.IsPositive() {
			price = cached
		}
		if err := s.store.Prices().Upsert(ctx, inst.Symbol, price, s.now()); err != nil {
			return fmt.Errorf("failed to seed price for %s: %w", inst.Symbol, err)
		}
		s.prices[inst.Symbol] = price
	}

	s.log.Info().Int("symbols", len(s.prices)).Msg("prices loaded")
	return nil
}

func (s *PriceService) supported(symbol string) (string, error) {
	inst, ok := s.instruments.Lookup(symbol)
	if !ok {
		return "", fmt.Errorf("symbol %q: %w", symbol, domain.ErrUnsupportedInstrument)
	}
	return inst.Symbol, nil
}

// Get returns the current price of symbol
func (s *PriceService) Get(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol, err := s.supported(symbol)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s: %w", symbol, domain.ErrNotFound)
	}
	return price, nil
}

// List returns a copy of every current price keyed by symbol
func (s *PriceService) List(ctx context.Context) map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := make(map[string]decimal.Decimal, len(s.prices))
	for symbol, price := range s.prices {
		prices[symbol] = price
	}
	return prices
}

// SetPermanent overwrites the current price of symbol
func (s *PriceService) SetPermanent(ctx context.Context, symbol string, price decimal.Decimal) error {
	symbol, err := s.supported(symbol)
	if err != nil {
		return err
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s for %s: %w", price, symbol, domain.ErrInvalidPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(ctx, symbol, price)
}

func (s *PriceService) setLocked(ctx context.Context, symbol string, price decimal.Decimal) error {
	if err := s.store.Prices().Upsert(ctx, symbol, price, s.now()); err != nil {
		return fmt.Errorf("failed to store price for %s: %w", symbol, err)
	}
	s.prices[symbol] = price
	return nil
}

// SetTemporary sets symbol to price and schedules a revert to the previous
// price after d. The revert is skipped if the price moved away from the
// override in the meantime.
func (s *PriceService) SetTemporary(ctx context.Context, symbol string, price decimal.Decimal, d time.Duration) error {
	symbol, err := s.supported(symbol)
	if err != nil {
		return err
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s for %s: %w", price, symbol, domain.ErrInvalidPrice)
	}
	if d <= 0 {
		return fmt.Errorf("override duration must be positive: %w", domain.ErrInvalidAmount)
	}

	s.mu.Lock()
	original, ok := s.prices[symbol]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no price for %s: %w", symbol, domain.ErrNotFound)
	}
	if err := s.setLocked(ctx, symbol, price); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pinned[symbol]++
	s.mu.Unlock()

	s.scheduler.ScheduleAfter(d, func(ctx context.Context) {
		s.revert(ctx, symbol, original, price)
	})

	s.log.Info().
		Str("symbol", symbol).
		Str("original", original.String()).
		Str("override", price.String()).
		Dur("duration", d).
		Msg("temporary price override set")
	return nil
}

func (s *PriceService) revert(ctx context.Context, symbol string, original, target decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pinned[symbol] > 0 {
		s.pinned[symbol]--
	}

	current := s.prices[symbol]
	if !current.Sub(target).Abs().LessThan(overrideTolerance) {
		s.metrics.ObserveOverrideCheck("kept")
		s.log.Info().
			Str("symbol", symbol).
			Str("current", current.String()).
			Str("override", target.String()).
			Msg("price changed since override, not reverting")
		return
	}

	if err := s.setLocked(ctx, symbol, original); err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("price revert failed")
		return
	}
	s.metrics.ObserveOverrideCheck("reverted")
	s.log.Info().Str("symbol", symbol).Str("price", original.String()).Msg("price override reverted")
}

// Refresh pulls prices from feed and applies them to every symbol without
// a pending override. On failure the last known prices keep being served.
func (s *PriceService) Refresh(ctx context.Context, feed domain.PriceFeed) error {
	prices, err := feed.FetchPrices(ctx, s.instruments.Instruments())
	if err != nil {
		if !errors.Is(err, ErrMissingPrices) {
			s.metrics.ObserveFeedFailure()
			return fmt.Errorf("failed to refresh prices: %w", err)
		}
		s.log.Warn().Err(err).Msg("partial price refresh")
	}

	s.mu.Lock()
	updated := 0
	for symbol, price := range prices {
		symbol, err := s.supported(symbol)
		if err != nil || !price.IsPositive() || s.pinned[symbol] > 0 {
			continue
		}
		if err := s.setLocked(ctx, symbol, price); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("failed to apply feed price")
			continue
		}
		updated++
	}
	s.mu.Unlock()

	if s.snapshot != nil && updated > 0 {
		if err := s.snapshot.SavePrices(ctx, s.List(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("failed to save price snapshot")
		}
	}

	s.log.Debug().Int("updated", updated).Msg("prices refreshed")
	return nil
}
