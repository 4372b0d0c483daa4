package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position represents a leveraged margin position
type Position struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	Symbol           string           `json:"symbol"`
	Margin           decimal.Decimal  `json:"margin"`
	Leverage         int              `json:"leverage"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	LiquidationPrice decimal.Decimal  `json:"liquidation_price"`
	Direction        string           `json:"direction"`
	TakeProfit       *decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss         *decimal.Decimal `json:"stop_loss,omitempty"`
	Status           string           `json:"status"`
	OpenedAt         time.Time        `json:"opened_at"`
	ClosePrice       *decimal.Decimal `json:"close_price,omitempty"`
	ProfitLoss       *decimal.Decimal `json:"profit_loss,omitempty"` // collateral returned plus leveraged gain or loss
	ClosedAt         *time.Time       `json:"closed_at,omitempty"`
	CloseReason      *string          `json:"close_reason,omitempty"`
}

// Direction constants
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// PositionStatus constants
const (
	StatusOpen       = "open"
	StatusClosed     = "closed"
	StatusLiquidated = "liquidated"
)

// CloseReason constants (how the position was closed)
const (
	CloseReasonManual      = "manual"
	CloseReasonTakeProfit  = "take_profit"
	CloseReasonStopLoss    = "stop_loss"
	CloseReasonLiquidation = "liquidation"
)

// Rounding applied to derived prices and money
const (
	PriceDecimals = 8
	MoneyDecimals = 2
)

// ValidDirection reports whether d names a position direction
func ValidDirection(d string) bool {
	return d == DirectionLong || d == DirectionShort
}

// ValidCloseReason reports whether r names a close reason
func ValidCloseReason(r string) bool {
	switch r {
	case CloseReasonManual, CloseReasonTakeProfit, CloseReasonStopLoss, CloseReasonLiquidation:
		return true
	}
	return false
}

// LiquidationPrice is the price at which the margin is exhausted
func LiquidationPrice(entry decimal.Decimal, leverage int, direction string) decimal.Decimal {
	step := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(leverage)))
	if direction == DirectionLong {
		return entry.Mul(decimal.NewFromInt(1).Sub(step)).Round(PriceDecimals)
	}
	return entry.Mul(decimal.NewFromInt(1).Add(step)).Round(PriceDecimals)
}

// IsLong checks if the position is a long position
func (p *Position) IsLong() bool {
	return p.Direction == DirectionLong
}

// IsOpen checks if the position can still be closed
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// PriceChange returns the signed fractional move from entry in the
// position's favour. Zero entry yields zero.
func (p *Position) PriceChange(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	diff := price.Sub(p.EntryPrice)
	if !p.IsLong() {
		diff = p.EntryPrice.Sub(price)
	}
	return diff.Div(p.EntryPrice)
}

// ProfitLossAt returns margin + margin*leverage*pct rounded to cents.
// It can be negative; the balance floor is applied when it is credited.
func (p *Position) ProfitLossAt(price decimal.Decimal) decimal.Decimal {
	lev := decimal.NewFromInt(int64(p.Leverage))
	return p.Margin.Add(p.Margin.Mul(lev).Mul(p.PriceChange(price))).Round(MoneyDecimals)
}

// CheckTriggers checks take-profit, stop-loss and liquidation in that order
// and returns the reason the position should close at price
func (p *Position) CheckTriggers(price decimal.Decimal) (reason string, hit bool) {
	if p.IsLong() {
		if p.TakeProfit != nil && price.GreaterThanOrEqual(*p.TakeProfit) {
			return CloseReasonTakeProfit, true
		}
		if p.StopLoss != nil && price.LessThanOrEqual(*p.StopLoss) {
			return CloseReasonStopLoss, true
		}
		if price.LessThanOrEqual(p.LiquidationPrice) {
			return CloseReasonLiquidation, true
		}
		return "", false
	}

	if p.TakeProfit != nil && price.LessThanOrEqual(*p.TakeProfit) {
		return CloseReasonTakeProfit, true
	}
	if p.StopLoss != nil && price.GreaterThanOrEqual(*p.StopLoss) {
		return CloseReasonStopLoss, true
	}
	if price.GreaterThanOrEqual(p.LiquidationPrice) {
		return CloseReasonLiquidation, true
	}
	return "", false
}

// StatusForReason maps a close reason to the terminal status it produces
func StatusForReason(reason string) string {
	if reason == CloseReasonLiquidation {
		return StatusLiquidated
	}
	return StatusClosed
}
