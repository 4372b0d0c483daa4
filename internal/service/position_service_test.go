package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"leverledger/internal/domain"
)

func openLong(t *testing.T, f *fixture, userID uuid.UUID, symbol, margin string, leverage int) *domain.Position {
	t.Helper()
	position, err := f.positions.Open(context.Background(), OpenPositionInput{
		UserID:    userID,
		Symbol:    symbol,
		Margin:    dec(margin),
		Leverage:  leverage,
		Direction: domain.DirectionLong,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return position
}

func TestOpenDebitsMarginAtCurrentPrice(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "1000")
	f.setPrice(t, "BTC", "60000")

	position := openLong(t, f, user.ID, "btc", "100", 10)

	if position.Symbol != "BTC" || position.Status != domain.StatusOpen {
		t.Errorf("got %s %s, want BTC open", position.Symbol, position.Status)
	}
	assertDecimal(t, "entry", position.EntryPrice, "60000")
	assertDecimal(t, "liquidation", position.LiquidationPrice, "54000")
	assertDecimal(t, "balance", f.balance(t, user.ID), "900")
}

func TestOpenRejectsInvalidOrders(t *testing.T) {
	tests := []struct {
		name    string
		in      OpenPositionInput
		wantErr error
	}{
		{"unsupported symbol", OpenPositionInput{Symbol: "XRP", Margin: dec("10"), Leverage: 5, Direction: "long"}, domain.ErrUnsupportedInstrument},
		{"zero margin", OpenPositionInput{Symbol: "BTC", Margin: dec("0"), Leverage: 5, Direction: "long"}, domain.ErrInvalidAmount},
		{"margin rounds to zero", OpenPositionInput{Symbol: "BTC", Margin: dec("0.004"), Leverage: 5, Direction: "long"}, domain.ErrInvalidAmount},
		{"zero leverage", OpenPositionInput{Symbol: "BTC", Margin: dec("10"), Leverage: 0, Direction: "long"}, domain.ErrInvalidAmount},
		{"bad direction", OpenPositionInput{Symbol: "BTC", Margin: dec("10"), Leverage: 5, Direction: "up"}, domain.ErrInvalidDirection},
		{"margin over balance", OpenPositionInput{Symbol: "BTC", Margin: dec("100.01"), Leverage: 5, Direction: "short"}, domain.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user := f.addUser(t, "alice", "100")
			tt.in.UserID = user.ID

			_, err := f.positions.Open(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			assertDecimal(t, "balance", f.balance(t, user.ID), "100")

			positions, _ := f.store.Positions().GetByUserID(context.Background(), user.ID)
			if len(positions) != 0 {
				t.Errorf("got %d positions after failed open, want 0", len(positions))
			}
		})
	}
}

func TestOpenClampsLeverage(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "1000")

	btc := openLong(t, f, user.ID, "BTC", "10", 9999)
	eth := openLong(t, f, user.ID, "ETH", "10", 9999)

	if btc.Leverage != 500 {
		t.Errorf("BTC: got leverage %d, want 500", btc.Leverage)
	}
	if eth.Leverage != 250 {
		t.Errorf("ETH: got leverage %d, want 250", eth.Leverage)
	}
}

func TestCloseLongTenTimesLeverage(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "1000")
	f.setPrice(t, "BTC", "60000")
	position := openLong(t, f, user.ID, "BTC", "100", 10)

	f.setPrice(t, "BTC", "61200")
	pl, err := f.positions.CloseForUser(context.Background(), domain.Identity{UserID: user.ID}, position.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	assertDecimal(t, "profit/loss", pl, "120.00")
	assertDecimal(t, "balance", f.balance(t, user.ID), "1020")

	stored, _ := f.store.Positions().GetByID(context.Background(), position.ID)
	if stored.Status != domain.StatusClosed || *stored.CloseReason != domain.CloseReasonManual {
		t.Errorf("got %s/%s, want closed/manual", stored.Status, *stored.CloseReason)
	}
}

func TestCloseAtEntryReturnsMargin(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "500")

	for _, direction := range []string{domain.DirectionLong, domain.DirectionShort} {
		position, err := f.positions.Open(context.Background(), OpenPositionInput{
			UserID: user.ID, Symbol: "SOL", Margin: dec("75.5"), Leverage: 20, Direction: direction,
		})
		if err != nil {
			t.Fatalf("open %s: %v", direction, err)
		}
		pl, err := f.positions.Close(context.Background(), position.ID, position.EntryPrice, domain.CloseReasonManual)
		if err != nil {
			t.Fatalf("close %s: %v", direction, err)
		}
		assertDecimal(t, direction+" profit/loss", pl, "75.5")
	}
	assertDecimal(t, "balance", f.balance(t, user.ID), "500")
}

func TestSecondCloseDoesNotCreditAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "alice", "1000")
	position := openLong(t, f, user.ID, "ETH", "100", 5)

	if _, err := f.positions.Close(ctx, position.ID, dec("3300"), domain.CloseReasonManual); err != nil {
		t.Fatalf("first close: %v", err)
	}
	after := f.balance(t, user.ID)

	if _, err := f.positions.Close(ctx, position.ID, dec("3300"), domain.CloseReasonManual); !errors.Is(err, domain.ErrAlreadyFinalized) {
		t.Fatalf("second close: got %v, want ErrAlreadyFinalized", err)
	}
	assertDecimal(t, "balance", f.balance(t, user.ID), after.String())
}

func TestConcurrentClosesSettleOnce(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "1000")
	position := openLong(t, f, user.ID, "ETH", "100", 5)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.positions.Close(context.Background(), position.ID, dec("3000"), domain.CloseReasonManual)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, domain.ErrAlreadyFinalized):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("got %d successful closes, want 1", wins)
	}
	assertDecimal(t, "balance", f.balance(t, user.ID), "1000")
}

func TestLossBeyondMarginWipesBalance(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "100")
	f.setPrice(t, "BTC", "60000")
	position := openLong(t, f, user.ID, "BTC", "100", 10)

	pl, err := f.positions.Close(context.Background(), position.ID, dec("50000"), domain.CloseReasonManual)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	assertDecimal(t, "profit/loss", pl, "-66.67")
	assertDecimal(t, "balance", f.balance(t, user.ID), "0")
}

func TestCloseForUserHidesOtherUsersPositions(t *testing.T) {
	f := newFixture(t)
	owner := f.addUser(t, "alice", "1000")
	other := f.addUser(t, "bob", "1000")
	position := openLong(t, f, owner.ID, "ETH", "100", 5)

	_, err := f.positions.CloseForUser(context.Background(), domain.Identity{UserID: other.ID}, position.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	if _, err := f.positions.CloseForUser(context.Background(), adminActor, position.ID); err != nil {
		t.Fatalf("admin close: %v", err)
	}
}

func TestEvaluateTriggers(t *testing.T) {
	tests := []struct {
		name       string
		direction  string
		takeProfit *string
		stopLoss   *string
		price      string
		wantStatus string
		wantReason string
	}{
		{"long take profit", "long", strPtr("66000"), strPtr("58000"), "66000", domain.StatusClosed, domain.CloseReasonTakeProfit},
		{"long stop loss", "long", strPtr("66000"), strPtr("58000"), "57000", domain.StatusClosed, domain.CloseReasonStopLoss},
		{"short take profit", "short", strPtr("55000"), strPtr("62000"), "54000", domain.StatusClosed, domain.CloseReasonTakeProfit},
		{"short stop loss", "short", strPtr("55000"), strPtr("62000"), "62000", domain.StatusClosed, domain.CloseReasonStopLoss},
		{"long liquidation", "long", nil, nil, "54000", domain.StatusLiquidated, domain.CloseReasonLiquidation},
		{"no trigger", "long", strPtr("66000"), strPtr("58000"), "61000", domain.StatusOpen, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			user := f.addUser(t, "alice", "1000")
			f.setPrice(t, "BTC", "60000")

			in := OpenPositionInput{UserID: user.ID, Symbol: "BTC", Margin: dec("100"), Leverage: 10, Direction: tt.direction}
			if tt.takeProfit != nil {
				in.TakeProfit = decPtr(*tt.takeProfit)
			}
			if tt.stopLoss != nil {
				in.StopLoss = decPtr(*tt.stopLoss)
			}
			position, err := f.positions.Open(ctx, in)
			if err != nil {
				t.Fatalf("open: %v", err)
			}

			closed, err := f.positions.EvaluateTriggers(ctx, position, dec(tt.price))
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if closed != (tt.wantStatus != domain.StatusOpen) {
				t.Errorf("got closed=%v for status %s", closed, tt.wantStatus)
			}

			stored, _ := f.store.Positions().GetByID(ctx, position.ID)
			if stored.Status != tt.wantStatus {
				t.Errorf("got status %s, want %s", stored.Status, tt.wantStatus)
			}
			if tt.wantReason != "" && (stored.CloseReason == nil || *stored.CloseReason != tt.wantReason) {
				t.Errorf("got reason %v, want %s", stored.CloseReason, tt.wantReason)
			}
			wantAlerts := 0
			if tt.wantReason == domain.CloseReasonLiquidation {
				wantAlerts = 1
			}
			if len(f.notes.liquidations) != wantAlerts {
				t.Errorf("got %d liquidation alerts, want %d", len(f.notes.liquidations), wantAlerts)
			}
		})
	}
}

func strPtr(s string) *string {
	return &s
}

func TestListForUserShowsLiveFigures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "alice", "1000")
	f.setPrice(t, "BTC", "60000")
	f.setPrice(t, "ETH", "3000")

	open := openLong(t, f, user.ID, "BTC", "100", 10)
	hit, err := f.positions.Open(ctx, OpenPositionInput{
		UserID: user.ID, Symbol: "ETH", Margin: dec("50"), Leverage: 2,
		Direction: domain.DirectionLong, TakeProfit: decPtr("3100"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	f.setPrice(t, "BTC", "61200")
	f.setPrice(t, "ETH", "3150")

	views, err := f.positions.ListForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d views, want 2", len(views))
	}

	for _, v := range views {
		switch v.ID {
		case open.ID:
			if v.CurrentProfitLoss == nil || v.PriceChangePercentage == nil {
				t.Fatalf("open position has no live figures")
			}
			assertDecimal(t, "current profit/loss", *v.CurrentProfitLoss, "120")
			assertDecimal(t, "price change %", *v.PriceChangePercentage, "2")
		case hit.ID:
			if v.Status != domain.StatusClosed || v.CurrentProfitLoss != nil {
				t.Errorf("take-profit position: got status %s with live figures %v", v.Status, v.CurrentProfitLoss)
			}
		}
	}
}
