package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"leverledger/configs"
	"leverledger/internal/adapter/telegram"
	"leverledger/internal/database"
	delivery "leverledger/internal/delivery/http"
	"leverledger/internal/domain"
	"leverledger/internal/infra"
	"leverledger/internal/middleware"
	"leverledger/internal/repository"
	"leverledger/internal/repository/memory"
	"leverledger/internal/service"
)

// devJWTSecret signs tokens when JWT_SECRET is unset outside production
const devJWTSecret = "leverledger-development-secret"

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := configs.Load()
	log := infra.NewLogger("leverledger", cfg.Log.Level, cfg.Server.Env)
	if envErr != nil {
		log.Debug().Msg(".env file not found, using environment variables")
	}

	ctx := context.Background()

	// Storage
	store, pool := openStore(ctx, cfg, log)
	if pool != nil {
		defer pool.Close()
	}

	var snapshot domain.PriceSnapshotStore
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without price snapshot")
		} else {
			redisClient = client
			defer redisClient.Close()
			snapshot = infra.NewRedisPriceSnapshot(client)
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(registry)

	notifier := telegram.NewNotificationService(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.TimeZone)
	if !notifier.Enabled() {
		log.Info().Msg("telegram alerts disabled")
	}

	// Services
	scheduler := infra.NewScheduler(log.With().Str("component", "scheduler").Logger())
	instruments := domain.ReferenceInstrumentSet(cfg.Market.SupportedSymbols)
	if len(instruments.Symbols()) == 0 {
		log.Fatal().Strs("symbols", cfg.Market.SupportedSymbols).Msg("no supported symbols configured")
	}

	balances := service.NewBalanceService(store, scheduler, service.BonusPolicy{
		Amount:   cfg.Bonus.Amount,
		ValidFor: cfg.Bonus.ValidFor,
	}, metrics, log)
	prices := service.NewPriceService(store, instruments, scheduler, snapshot, metrics, log)
	positions := service.NewPositionService(store, prices, balances, instruments, notifier, metrics, log)
	requests := service.NewRequestService(store, balances, service.QueuePolicy{
		MinDeposit:    cfg.Queue.MinDeposit,
		MinWithdrawal: cfg.Queue.MinWithdrawal,
	}, notifier, metrics, log)
	analytics := service.NewAnalyticsService(store)
	auth := service.NewAuthService(store, balances, log)
	admin := service.NewAdminService(store, balances, log)
	watcher := service.NewTriggerWatcherService(store, prices, positions, metrics, log)

	if err := prices.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load prices")
	}
	if cfg.Auth.AdminPassword == "" {
		log.Warn().Msg("ADMIN_PASSWORD not set, no admin account bootstrapped")
	} else if err := auth.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap admin account")
	}

	feed, err := service.NewCoinGeckoFeed(cfg.Market.PriceFeedURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create price feed")
	}

	// Recurring jobs
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"price-feed", cfg.Market.FeedInterval, func(ctx context.Context) error {
			return prices.Refresh(ctx, feed)
		}},
		{"trigger-watcher", cfg.Market.WatcherInterval, func(ctx context.Context) error {
			_, err := watcher.CheckPositions(ctx)
			return err
		}},
		{"bonus-reaper", cfg.Market.ReaperInterval, balances.ReapExpiredBonuses},
	}
	for _, job := range jobs {
		if err := scheduler.Every(job.spec, job.name, job.run); err != nil {
			log.Fatal().Err(err).Str("job", job.name).Msg("failed to register job")
		}
	}
	scheduler.Start()
	defer scheduler.Stop(10 * time.Second)

	// API server
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("JWT_SECRET is required in production")
		}
		log.Warn().Msg("JWT_SECRET not set, using development secret")
		secret = devJWTSecret
	}
	jwt, err := middleware.NewJWTManager(secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token manager")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	delivery.SetupRoutes(e, &delivery.RouterConfig{
		AuthHandler:   delivery.NewAuthHandler(auth, jwt, cfg.IsProduction()),
		UserHandler:   delivery.NewUserHandler(store.Users(), positions, requests),
		AdminHandler:  delivery.NewAdminHandler(admin, requests, prices, positions, analytics),
		MarketHandler: delivery.NewMarketHandler(prices, analytics),
		JWT:           jwt,
	})

	// Ops server
	ops := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.MetricsPort),
		Handler:      opsRouter(registry, pool, redisClient),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Strs("symbols", instruments.Symbols()).Msg("API server starting")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()
	go func() {
		log.Info().Str("addr", ops.Addr).Msg("ops server starting")
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server forced to shutdown")
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}

// openStore connects to PostgreSQL when DATABASE_URL is set and falls back
// to the in-memory store otherwise
func openStore(ctx context.Context, cfg *configs.Config, log zerolog.Logger) (domain.Store, *pgxpool.Pool) {
	if cfg.Database.URL == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("DATABASE_URL is required in production")
		}
		log.Warn().Msg("DATABASE_URL not set, using in-memory store; data is lost on exit")
		return memory.NewStore(), nil
	}

	pool, err := infra.NewDatabase(ctx, cfg.Database.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.RunMigrations(ctx, pool, log); err != nil {
		pool.Close()
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	return repository.NewStore(pool), pool
}

func opsRouter(registry *prometheus.Registry, pool *pgxpool.Pool, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(10 * time.Second))

	r.Get("/health", handleHealth(pool, redisClient))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

func handleHealth(pool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		check := func(ping func(context.Context) error) string {
			if ping == nil {
				return "disabled"
			}
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				return "unhealthy"
			}
			return "healthy"
		}

		var dbPing, redisPing func(context.Context) error
		if pool != nil {
			dbPing = pool.Ping
		}
		if redisClient != nil {
			redisPing = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
		dbStatus := check(dbPing)
		redisStatus := check(redisPing)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"database":%q,"redis":%q,"timestamp":%q}`,
			http.StatusText(status), dbStatus, redisStatus, time.Now().UTC().Format(time.RFC3339))
	}
}
