package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
	"leverledger/internal/repository/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// manualScheduler queues tasks until the test fires them
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func(ctx context.Context)
	delay []time.Duration
}

func (m *manualScheduler) ScheduleAfter(d time.Duration, task func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	m.delay = append(m.delay, d)
}

func (m *manualScheduler) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunAll fires every queued task in scheduling order
func (m *manualScheduler) RunAll(ctx context.Context) {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks, m.delay = nil, nil
	m.mu.Unlock()

	for _, task := range tasks {
		task(ctx)
	}
}

// clock hands out strictly increasing times
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier keeps every alert it is asked to send
type recordingNotifier struct {
	mu           sync.Mutex
	requests     []domain.Request
	liquidations []domain.Position
}

func (n *recordingNotifier) SendRequestQueued(_ context.Context, req domain.Request) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return nil
}

func (n *recordingNotifier) SendLiquidation(_ context.Context, p domain.Position) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.liquidations = append(n.liquidations, p)
	return nil
}

type fixture struct {
	store     *memory.Store
	notes     *recordingNotifier
	sched     *manualScheduler
	clock     *clock
	metrics   *infra.Metrics
	balances  *BalanceService
	prices    *PriceService
	positions *PositionService
	requests  *RequestService
	analytics *AnalyticsService
	auth      *AuthService
	admin     *AdminService
	watcher   *TriggerWatcherService
}

var adminActor = domain.Identity{UserID: uuid.New(), IsAdmin: true}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zerolog.Nop()
	f := &fixture{
		store:   memory.NewStore(),
		sched:   &manualScheduler{},
		notes:   &recordingNotifier{},
		clock:   newClock(),
		metrics: infra.NewMetrics(prometheus.NewRegistry()),
	}
	instruments := domain.ReferenceInstrumentSet(nil)

	f.balances = NewBalanceService(f.store, f.sched, DefaultBonusPolicy(), f.metrics, log)
	f.balances.now = f.clock.Now
	f.prices = NewPriceService(f.store, instruments, f.sched, nil, f.metrics, log)
	f.positions = NewPositionService(f.store, f.prices, f.balances, instruments, f.notes, f.metrics, log)
	f.positions.now = f.clock.Now
	f.requests = NewRequestService(f.store, f.balances, DefaultQueuePolicy(), f.notes, f.metrics, log)
	f.requests.now = f.clock.Now
	f.analytics = NewAnalyticsService(f.store)
	f.auth = NewAuthService(f.store, f.balances, log)
	f.admin = NewAdminService(f.store, f.balances, log)
	f.watcher = NewTriggerWatcherService(f.store, f.prices, f.positions, f.metrics, log)

	if err := f.prices.Load(context.Background()); err != nil {
		t.Fatalf("load prices: %v", err)
	}
	return f
}

func (f *fixture) addUser(t *testing.T, username, balance string) *domain.User {
	t.Helper()
	now := f.clock.Now()
	user := &domain.User{
		ID:        uuid.New(),
		Username:  username,
		Email:     username + "@example.com",
		Name:      username,
		Role:      domain.RoleUser,
		Balance:   dec(balance),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	user, err := f.store.Users().GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return user.Balance
}

func (f *fixture) setPrice(t *testing.T, symbol, price string) {
	t.Helper()
	if err := f.prices.SetPermanent(context.Background(), symbol, dec(price)); err != nil {
		t.Fatalf("set price %s: %v", symbol, err)
	}
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", name, got, want)
	}
}
