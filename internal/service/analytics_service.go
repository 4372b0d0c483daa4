package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
)

// DefaultLeaderboardSize is used when the caller asks for no limit
const DefaultLeaderboardSize = 10

var hundred = decimal.NewFromInt(100)

// PositionAnalysis aggregates the whole position ledger
type PositionAnalysis struct {
	TotalPositions      int             `json:"total_positions"`
	OpenPositions       int             `json:"open_positions"`
	ClosedPositions     int             `json:"closed_positions"`
	LiquidatedPositions int             `json:"liquidated_positions"`
	LongPositions       int             `json:"long_positions"`
	ShortPositions      int             `json:"short_positions"`
	LongPercentage      decimal.Decimal `json:"long_percentage"`
	ShortPercentage     decimal.Decimal `json:"short_percentage"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
	TotalLoss           decimal.Decimal `json:"total_loss"`
	NetProfitLoss       decimal.Decimal `json:"net_profit_loss"`
	SymbolCounts        map[string]int  `json:"symbol_counts"`
	AverageLeverage     decimal.Decimal `json:"average_leverage"`
	TotalVolume         decimal.Decimal `json:"total_volume"`
}

// LeaderboardEntry ranks one trader by realized results
type LeaderboardEntry struct {
	UserID          uuid.UUID       `json:"user_id"`
	Username        string          `json:"username"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	WinRate         decimal.Decimal `json:"win_rate"`
	AverageLeverage decimal.Decimal `json:"average_leverage"`
	ROI             decimal.Decimal `json:"roi"`
	TradeCount      int             `json:"trade_count"`
	LargestProfit   decimal.Decimal `json:"largest_profit"`
}

// AnalyticsService is a read-only projection over the ledger
type AnalyticsService struct {
	store domain.Store
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(store domain.Store) *AnalyticsService {
	return &AnalyticsService{store: store}
}

func percentage(part, total int, places int32) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(places)
}

// PositionAnalysis computes the aggregate statistics of every position
func (s *AnalyticsService) PositionAnalysis(ctx context.Context) (*PositionAnalysis, error) {
	positions, err := s.store.Positions().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return analyzePositions(positions), nil
}

func analyzePositions(positions []*domain.Position) *PositionAnalysis {
	a := &PositionAnalysis{
		TotalPositions: len(positions),
		SymbolCounts:   make(map[string]int),
	}

	leverageSum := 0
	for _, p := range positions {
		switch p.Status {
		case domain.StatusOpen:
			a.OpenPositions++
		case domain.StatusClosed:
			a.ClosedPositions++
		case domain.StatusLiquidated:
			a.LiquidatedPositions++
		}

		if p.IsLong() {
			a.LongPositions++
		} else {
			a.ShortPositions++
		}

		a.SymbolCounts[p.Symbol]++
		leverageSum += p.Leverage
		a.TotalVolume = a.TotalVolume.Add(p.Margin)

		if p.IsOpen() || p.ProfitLoss == nil {
			continue
		}
		if p.ProfitLoss.IsPositive() {
			a.TotalProfit = a.TotalProfit.Add(*p.ProfitLoss)
		} else {
			a.TotalLoss = a.TotalLoss.Add(p.ProfitLoss.Abs())
		}
	}

	a.LongPercentage = percentage(a.LongPositions, a.TotalPositions, 1)
	a.ShortPercentage = percentage(a.ShortPositions, a.TotalPositions, 1)
	if a.TotalPositions > 0 {
		a.AverageLeverage = decimal.NewFromInt(int64(leverageSum)).
			Div(decimal.NewFromInt(int64(a.TotalPositions))).
			Round(domain.MoneyDecimals)
	}
	a.TotalProfit = a.TotalProfit.Round(domain.MoneyDecimals)
	a.TotalLoss = a.TotalLoss.Round(domain.MoneyDecimals)
	a.NetProfitLoss = a.TotalProfit.Sub(a.TotalLoss)
	a.TotalVolume = a.TotalVolume.Round(domain.MoneyDecimals)

	return a
}

// Leaderboard ranks non-admin users with at least one settled position by
// ROI and returns the top limit entries. Settled means closed or liquidated,
// so liquidations count toward trade count and win rate.
func (s *AnalyticsService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}

	users, err := s.store.Users().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	positions, err := s.store.Positions().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	return rankTraders(users, positions, limit), nil
}

func rankTraders(users []*domain.User, positions []*domain.Position, limit int) []LeaderboardEntry {
	settled := make(map[uuid.UUID][]*domain.Position)
	for _, p := range positions {
		if p.IsOpen() || p.ProfitLoss == nil {
			continue
		}
		settled[p.UserID] = append(settled[p.UserID], p)
	}

	entries := make([]LeaderboardEntry, 0, len(settled))
	for _, user := range users {
		trades := settled[user.ID]
		if user.IsAdmin() || len(trades) == 0 {
			continue
		}

		entry := LeaderboardEntry{
			UserID:        user.ID,
			Username:      user.Username,
			TradeCount:    len(trades),
			LargestProfit: *trades[0].ProfitLoss,
		}

		wins, leverageSum := 0, 0
		totalMargin := decimal.Zero
		for _, p := range trades {
			entry.TotalProfit = entry.TotalProfit.Add(*p.ProfitLoss)
			totalMargin = totalMargin.Add(p.Margin)
			leverageSum += p.Leverage
			if p.ProfitLoss.IsPositive() {
				wins++
			}
			if p.ProfitLoss.GreaterThan(entry.LargestProfit) {
				entry.LargestProfit = *p.ProfitLoss
			}
		}

		entry.WinRate = percentage(wins, len(trades), domain.MoneyDecimals)
		entry.AverageLeverage = decimal.NewFromInt(int64(leverageSum)).
			Div(decimal.NewFromInt(int64(len(trades)))).
			Round(domain.MoneyDecimals)
		if totalMargin.IsPositive() {
			entry.ROI = entry.TotalProfit.Div(totalMargin).Mul(hundred).Round(domain.MoneyDecimals)
		}
		entry.TotalProfit = entry.TotalProfit.Round(domain.MoneyDecimals)

		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ROI.Equal(entries[j].ROI) {
			return entries[i].ROI.GreaterThan(entries[j].ROI)
		}
		return entries[i].Username < entries[j].Username
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
