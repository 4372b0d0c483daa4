package configs

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Market   MarketConfig
	Bonus    BonusConfig
	Queue    QueueConfig
	Telegram TelegramConfig
	Log      LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        string
	MetricsPort string
	Env         string
}

// DatabaseConfig holds database configuration. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration. An empty URL disables the price
// snapshot.
type RedisConfig struct {
	URL string
}

// AuthConfig holds session and bootstrap admin settings
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	AdminUsername string
	AdminPassword string
}

// MarketConfig holds price feed and watcher settings. Intervals are cron
// specs with a seconds field.
type MarketConfig struct {
	PriceFeedURL     string
	FeedInterval     string
	WatcherInterval  string
	ReaperInterval   string
	SupportedSymbols []string
}

// BonusConfig holds the sign-up bonus policy
type BonusConfig struct {
	Amount   decimal.Decimal
	ValidFor time.Duration
}

// QueueConfig holds the funding queue minimums
type QueueConfig struct {
	MinDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal
}

// TelegramConfig holds operator alert settings. Alerts are off unless both
// the token and the chat id are set.
type TelegramConfig struct {
	APIURL   string
	BotToken string
	ChatID   string
	TimeZone string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// IsProduction reports whether the service runs with production defaults
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			MetricsPort: getEnv("METRICS_PORT", "9090"),
			Env:         getEnv("GO_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
		Market: MarketConfig{
			PriceFeedURL:     getEnv("PRICE_FEED_URL", "https://api.coingecko.com/api/v3"),
			FeedInterval:     getEnv("FEED_INTERVAL", "0 */1 * * * *"),
			WatcherInterval:  getEnv("WATCHER_INTERVAL", "*/10 * * * * *"),
			ReaperInterval:   getEnv("BONUS_REAPER_INTERVAL", "0 */5 * * * *"),
			SupportedSymbols: getEnvList("SUPPORTED_SYMBOLS"),
		},
		Bonus: BonusConfig{
			Amount:   getEnvDecimal("BONUS_AMOUNT", decimal.NewFromInt(50)),
			ValidFor: getEnvDuration("BONUS_VALID_FOR", 12*time.Hour),
		},
		Queue: QueueConfig{
			MinDeposit:    getEnvDecimal("MIN_DEPOSIT", decimal.NewFromInt(100)),
			MinWithdrawal: getEnvDecimal("MIN_WITHDRAWAL", decimal.NewFromInt(150)),
		},
		Telegram: TelegramConfig{
			APIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			TimeZone: getEnv("TZ", "UTC"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if d, err := decimal.NewFromString(os.Getenv(key)); err == nil && !d.IsNegative() {
		return d
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
