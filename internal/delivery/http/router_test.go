package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"leverledger/internal/domain"
	"leverledger/internal/infra"
	"leverledger/internal/middleware"
	"leverledger/internal/repository/memory"
	"leverledger/internal/service"
)

// idleScheduler drops delayed tasks; bonus expiry is not under test here
type idleScheduler struct{}

func (idleScheduler) ScheduleAfter(time.Duration, func(ctx context.Context)) {}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	e     *echo.Echo
	store *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := zerolog.Nop()
	store := memory.NewStore()
	metrics := infra.NewMetrics(prometheus.NewRegistry())
	instruments := domain.ReferenceInstrumentSet(nil)

	balances := service.NewBalanceService(store, idleScheduler{}, service.DefaultBonusPolicy(), metrics, log)
	prices := service.NewPriceService(store, instruments, idleScheduler{}, nil, metrics, log)
	positions := service.NewPositionService(store, prices, balances, instruments, nil, metrics, log)
	requests := service.NewRequestService(store, balances, service.DefaultQueuePolicy(), nil, metrics, log)
	analytics := service.NewAnalyticsService(store)
	auth := service.NewAuthService(store, balances, log)
	admin := service.NewAdminService(store, balances, log)

	ctx := context.Background()
	if err := prices.Load(ctx); err != nil {
		t.Fatalf("load prices: %v", err)
	}
	if err := auth.EnsureAdmin(ctx, "admin", "admin-secret"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	jwt, err := middleware.NewJWTManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}

	e := echo.New()
	SetupRoutes(e, &RouterConfig{
		AuthHandler:   NewAuthHandler(auth, jwt, false),
		UserHandler:   NewUserHandler(store.Users(), positions, requests),
		AdminHandler:  NewAdminHandler(admin, requests, prices, positions, analytics),
		MarketHandler: NewMarketHandler(prices, analytics),
		JWT:           jwt,
	})
	return &testServer{e: e, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d (%s)", username, code, env.Message)
	}
	var out struct {
		Token string `json:"token"`
	}
	decode(t, env, &out)
	return out.Token
}

func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	if code != http.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", username, code, env.Message)
	}
	return s.login(t, username, "secret123")
}

func (s *testServer) balance(t *testing.T, token string) decimal.Decimal {
	t.Helper()
	code, env := s.do(t, http.MethodGet, "/api/user/me", token, nil)
	if code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	var me struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decode(t, env, &me)
	return me.Balance
}

func TestAccessControl(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"public prices", http.MethodGet, "/api/prices", "", http.StatusOK},
		{"public leaderboard", http.MethodGet, "/api/leaderboard", "", http.StatusOK},
		{"me without token", http.MethodGet, "/api/user/me", "", http.StatusUnauthorized},
		{"me with bad token", http.MethodGet, "/api/user/me", "garbage", http.StatusUnauthorized},
		{"me with token", http.MethodGet, "/api/user/me", user, http.StatusOK},
		{"admin as user", http.MethodGet, "/api/admin/dashboard", user, http.StatusForbidden},
		{"admin with bad id", http.MethodGet, "/api/admin/users/nope", s.login(t, "admin", "admin-secret"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, tt.path, tt.token, nil)
			if code != tt.want {
				t.Errorf("status %d, want %d (%s)", code, tt.want, env.Message)
			}
		})
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	code, env := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong-password",
	})
	if code != http.StatusUnauthorized || env.Status != "error" {
		t.Errorf("got %d %q, want 401 error", code, env.Status)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	code, _ := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "secret123",
	})
	if code != http.StatusConflict {
		t.Errorf("duplicate username: status %d, want 409", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob",
		"email":    "not-an-email",
		"password": "secret123",
	})
	if code != http.StatusBadRequest {
		t.Errorf("bad email: status %d, want 400", code)
	}
}

func TestTradeRoundTrip(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")
	admin := s.login(t, "admin", "admin-secret")

	if got := s.balance(t, user); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("balance after sign-up %s, want 50", got)
	}

	code, env := s.do(t, http.MethodPost, "/api/user/positions", user, map[string]interface{}{
		"symbol":    "BTC",
		"margin":    "10",
		"leverage":  10,
		"direction": "long",
	})
	if code != http.StatusCreated {
		t.Fatalf("open: status %d (%s)", code, env.Message)
	}
	var position domain.Position
	decode(t, env, &position)
	if !position.LiquidationPrice.Equal(decimal.NewFromInt(55800)) {
		t.Errorf("liquidation price %s, want 55800", position.LiquidationPrice)
	}

	code, env = s.do(t, http.MethodPost, "/api/admin/prices", admin, map[string]interface{}{
		"symbol": "BTC",
		"price":  "65100",
	})
	if code != http.StatusOK {
		t.Fatalf("set price: status %d (%s)", code, env.Message)
	}

	code, env = s.do(t, http.MethodPost, "/api/user/positions/"+position.ID.String()+"/close", user, nil)
	if code != http.StatusOK {
		t.Fatalf("close: status %d (%s)", code, env.Message)
	}
	var closed struct {
		ProfitLoss decimal.Decimal `json:"profit_loss"`
	}
	decode(t, env, &closed)
	if !closed.ProfitLoss.Equal(decimal.NewFromInt(15)) {
		t.Errorf("profit/loss %s, want 15", closed.ProfitLoss)
	}
	if got := s.balance(t, user); !got.Equal(decimal.NewFromInt(55)) {
		t.Errorf("balance after close %s, want 55", got)
	}

	code, _ = s.do(t, http.MethodPost, "/api/user/positions/"+position.ID.String()+"/close", user, nil)
	if code != http.StatusConflict {
		t.Errorf("second close: status %d, want 409", code)
	}

	code, env = s.do(t, http.MethodGet, "/api/leaderboard", "", nil)
	if code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", code)
	}
	var board struct {
		Count int `json:"count"`
	}
	decode(t, env, &board)
	if board.Count != 1 {
		t.Errorf("leaderboard count %d, want 1", board.Count)
	}
}

func TestOpenPositionErrors(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"unknown symbol", map[string]interface{}{"symbol": "XRP", "margin": "10", "leverage": 2, "direction": "long"}, http.StatusBadRequest},
		{"bad direction", map[string]interface{}{"symbol": "BTC", "margin": "10", "leverage": 2, "direction": "up"}, http.StatusBadRequest},
		{"over balance", map[string]interface{}{"symbol": "BTC", "margin": "500", "leverage": 2, "direction": "long"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, http.MethodPost, "/api/user/positions", user, tt.body)
			if code != tt.want {
				t.Errorf("status %d, want %d (%s)", code, tt.want, env.Message)
			}
		})
	}

	code, _ := s.do(t, http.MethodPost, "/api/user/positions/00000000-0000-0000-0000-000000000001/close", user, nil)
	if code != http.StatusNotFound {
		t.Errorf("close unknown position: status %d, want 404", code)
	}
}

func TestFundingQueues(t *testing.T) {
	s := newTestServer(t)
	user := s.register(t, "alice")
	admin := s.login(t, "admin", "admin-secret")

	code, env := s.do(t, http.MethodPost, "/api/user/deposits", user, map[string]string{
		"amount": "50",
		"tx_ref": "0xabc",
	})
	if code != http.StatusBadRequest {
		t.Errorf("deposit under minimum: status %d, want 400 (%s)", code, env.Message)
	}

	code, env = s.do(t, http.MethodPost, "/api/user/deposits", user, map[string]string{
		"amount": "200",
		"tx_ref": "0xabc",
	})
	if code != http.StatusCreated {
		t.Fatalf("deposit: status %d (%s)", code, env.Message)
	}
	var deposit domain.Request
	decode(t, env, &deposit)

	code, env = s.do(t, http.MethodGet, "/api/admin/requests", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("pending: status %d", code)
	}
	var pending struct {
		Deposits    []domain.Request `json:"deposits"`
		Withdrawals []domain.Request `json:"withdrawals"`
	}
	decode(t, env, &pending)
	if len(pending.Deposits) != 1 || len(pending.Withdrawals) != 0 {
		t.Fatalf("pending %d deposits, %d withdrawals; want 1, 0", len(pending.Deposits), len(pending.Withdrawals))
	}

	path := "/api/admin/deposits/" + deposit.ID.String() + "/approve"
	if code, env = s.do(t, http.MethodPost, path, admin, nil); code != http.StatusOK {
		t.Fatalf("approve: status %d (%s)", code, env.Message)
	}
	if code, _ = s.do(t, http.MethodPost, path, admin, nil); code != http.StatusConflict {
		t.Errorf("second approve: status %d, want 409", code)
	}
	if got := s.balance(t, user); !got.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("balance after deposit %s, want 250", got)
	}

	code, env = s.do(t, http.MethodPost, "/api/user/withdrawals", user, map[string]string{
		"amount": "150",
		"wallet": "TXyz",
	})
	if code != http.StatusCreated {
		t.Fatalf("withdrawal: status %d (%s)", code, env.Message)
	}
	var withdrawal domain.Request
	decode(t, env, &withdrawal)
	if got := s.balance(t, user); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance after withdrawal request %s, want 100", got)
	}

	code, env = s.do(t, http.MethodPost, "/api/admin/withdrawals/"+withdrawal.ID.String()+"/reject", admin, map[string]string{
		"reason": "wallet mismatch",
	})
	if code != http.StatusOK {
		t.Fatalf("reject: status %d (%s)", code, env.Message)
	}
	if got := s.balance(t, user); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("balance after refund %s, want 250", got)
	}

	code, env = s.do(t, http.MethodGet, "/api/user/withdrawals", user, nil)
	if code != http.StatusOK {
		t.Fatalf("list withdrawals: status %d", code)
	}
	var listed struct {
		Requests []domain.Request `json:"requests"`
	}
	decode(t, env, &listed)
	if len(listed.Requests) != 1 || listed.Requests[0].Status != domain.RequestRejected {
		t.Errorf("withdrawals %+v, want one rejected", listed.Requests)
	}
}

func TestAdminUserManagement(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")
	admin := s.login(t, "admin", "admin-secret")

	user, err := s.store.Users().GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	base := "/api/admin/users/" + user.ID.String()

	code, env := s.do(t, http.MethodPut, base, admin, map[string]interface{}{"balance": "1000"})
	if code != http.StatusOK {
		t.Fatalf("update: status %d (%s)", code, env.Message)
	}

	if code, _ = s.do(t, http.MethodPost, base+"/ban", admin, map[string]string{}); code != http.StatusBadRequest {
		t.Errorf("ban without reason: status %d, want 400", code)
	}
	if code, _ = s.do(t, http.MethodPost, base+"/ban", admin, map[string]string{"reason": "abuse"}); code != http.StatusOK {
		t.Fatalf("ban: status %d", code)
	}

	code, _ = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice",
		"password": "secret123",
	})
	if code != http.StatusUnauthorized {
		t.Errorf("banned login: status %d, want 401", code)
	}

	if code, _ = s.do(t, http.MethodPost, base+"/unban", admin, nil); code != http.StatusOK {
		t.Fatalf("unban: status %d", code)
	}
	if got := s.balance(t, s.login(t, "alice", "secret123")); !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance %s, want 1000", got)
	}

	code, env = s.do(t, http.MethodGet, "/api/admin/dashboard", admin, nil)
	if code != http.StatusOK {
		t.Fatalf("dashboard: status %d", code)
	}
	var dashboard service.Dashboard
	decode(t, env, &dashboard)
	if dashboard.UserCount != 1 || !dashboard.TotalBalance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("dashboard users %d balance %s, want 1 and 1000", dashboard.UserCount, dashboard.TotalBalance)
	}
}

func TestSetPriceDuration(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin-secret")

	code, _ := s.do(t, http.MethodPost, "/api/admin/prices", admin, map[string]interface{}{
		"symbol":           "ETH",
		"price":            "3100",
		"duration_minutes": 90,
	})
	if code != http.StatusBadRequest {
		t.Errorf("90 minute override: status %d, want 400", code)
	}

	code, env := s.do(t, http.MethodPost, "/api/admin/prices", admin, map[string]interface{}{
		"symbol":           "ETH",
		"price":            "3100",
		"duration_minutes": 5,
	})
	if code != http.StatusOK {
		t.Fatalf("temporary override: status %d (%s)", code, env.Message)
	}
	var prices map[string]decimal.Decimal
	decode(t, env, &prices)
	if !prices["ETH"].Equal(decimal.NewFromInt(3100)) {
		t.Errorf("ETH %s, want 3100", prices["ETH"])
	}

	code, _ = s.do(t, http.MethodPost, "/api/admin/prices", admin, map[string]interface{}{
		"symbol": "XRP",
		"price":  "1",
	})
	if code != http.StatusBadRequest {
		t.Errorf("unknown symbol: status %d, want 400", code)
	}
}
