package http

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"leverledger/internal/service"
)

// MarketHandler serves public market data
type MarketHandler struct {
	prices    *service.PriceService
	analytics *service.AnalyticsService
}

// NewMarketHandler creates a new MarketHandler
func NewMarketHandler(prices *service.PriceService, analytics *service.AnalyticsService) *MarketHandler {
	return &MarketHandler{
		prices:    prices,
		analytics: analytics,
	}
}

// GetPrices returns the current price of every supported symbol
// GET /api/prices
func (h *MarketHandler) GetPrices(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	return SuccessResponse(c, h.prices.List(ctx))
}

// GetLeaderboard returns the top traders by ROI
// GET /api/leaderboard?limit=10
func (h *MarketHandler) GetLeaderboard(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return BadRequestResponse(c, "Invalid limit")
		}
		limit = n
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	board, err := h.analytics.Leaderboard(ctx, limit)
	if err != nil {
		return DomainErrorResponse(c, "Failed to build leaderboard", err)
	}

	return SuccessResponse(c, map[string]interface{}{
		"leaderboard": board,
		"count":       len(board),
	})
}
