package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"leverledger/internal/domain"
)

func TestAdjustClampsAtZero(t *testing.T) {
	tests := []struct {
		name  string
		delta string
		want  string
	}{
		{"credit", "25", "125"},
		{"partial debit", "-40", "60"},
		{"exact debit", "-100", "0"},
		{"debit beyond balance", "-150.55", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user := f.addUser(t, "alice", "100")

			got, err := f.balances.Adjust(context.Background(), user.ID, dec(tt.delta))
			if err != nil {
				t.Fatalf("adjust: %v", err)
			}
			assertDecimal(t, "returned balance", got, tt.want)
			assertDecimal(t, "stored balance", f.balance(t, user.ID), tt.want)
		})
	}
}

func TestAdjustCountsClampedDebits(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "100")

	if _, err := f.balances.Adjust(context.Background(), user.ID, dec("-500")); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got := testutil.ToFloat64(f.metrics.BalanceAdjustments.WithLabelValues("clamped")); got != 1 {
		t.Errorf("got %v clamped adjustments, want 1", got)
	}
}

func TestAdjustUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.balances.Adjust(context.Background(), uuid.New(), dec("10"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestConcurrentAdjustLosesNoUpdates(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "alice", "1000")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		delta := dec("3")
		if i%2 == 1 {
			delta = dec("-1")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.balances.Adjust(context.Background(), user.ID, delta); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("adjust: %v", err)
	}
	assertDecimal(t, "balance", f.balance(t, user.ID), "1050")
}

func TestBonusExpiresWhenUnused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "alice", "0")

	if err := f.balances.GrantBonus(ctx, user.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	got, _ := f.store.Users().GetByID(ctx, user.ID)
	assertDecimal(t, "balance after grant", got.Balance, "50")
	if !got.HasBonus || got.BonusExpiresAt == nil {
		t.Fatalf("bonus flag not set: %+v", got)
	}
	if f.sched.Len() != 1 || f.sched.delay[0] != 12*time.Hour {
		t.Fatalf("expected one expiry scheduled after 12h, got %v", f.sched.delay)
	}

	f.sched.RunAll(ctx)

	got, _ = f.store.Users().GetByID(ctx, user.ID)
	assertDecimal(t, "balance after expiry", got.Balance, "0")
	if got.HasBonus || got.BonusExpiresAt != nil {
		t.Errorf("bonus flag still set after expiry")
	}
}

func TestBonusExpiryKeepsConsumedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "alice", "0")

	if err := f.balances.GrantBonus(ctx, user.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := f.balances.Adjust(ctx, user.ID, dec("-30")); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	f.sched.RunAll(ctx)

	got, _ := f.store.Users().GetByID(ctx, user.ID)
	assertDecimal(t, "balance", got.Balance, "20")
	if got.HasBonus {
		t.Errorf("bonus flag still set")
	}

	// a second expiry is a no-op
	if err := f.balances.ExpireBonus(ctx, user.ID); err != nil {
		t.Fatalf("expire again: %v", err)
	}
	assertDecimal(t, "balance after second expiry", f.balance(t, user.ID), "20")
}

func TestReapExpiredBonuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.addUser(t, "alice", "100")

	if err := f.balances.GrantBonus(ctx, user.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := f.balances.ReapExpiredBonuses(ctx); err != nil {
		t.Fatalf("reap: %v", err)
	}
	assertDecimal(t, "balance before deadline", f.balance(t, user.ID), "150")

	f.clock.Advance(13 * time.Hour)
	if err := f.balances.ReapExpiredBonuses(ctx); err != nil {
		t.Fatalf("reap: %v", err)
	}
	assertDecimal(t, "balance after deadline", f.balance(t, user.ID), "100")
}

func TestCheckWithdrawal(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		balance  string
		hasBonus bool
		amount   string
		wantErr  error
	}{
		{"within balance", "500", false, "200", nil},
		{"whole balance", "500", false, "500", nil},
		{"over balance", "500", false, "501", domain.ErrInsufficientBalance},
		{"zero amount", "500", false, "0", domain.ErrInvalidAmount},
		{"bonus balance not above bonus", "50", true, "10", domain.ErrInsufficientBalance},
		{"bonus cap exceeded", "80", true, "40", domain.ErrInsufficientBalance},
		{"bonus cap respected", "80", true, "25", nil},
		{"bonus cap exact", "80", true, "30", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &domain.User{Balance: dec(tt.balance), HasBonus: tt.hasBonus}
			err := f.balances.CheckWithdrawal(user, dec(tt.amount))
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
