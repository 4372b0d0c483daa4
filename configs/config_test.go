package configs

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "BONUS_AMOUNT", "BONUS_VALID_FOR", "MIN_WITHDRAWAL", "SUPPORTED_SYMBOLS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Server.Port != "8080" {
		t.Errorf("port: got %s, want 8080", cfg.Server.Port)
	}
	if cfg.Database.URL != "" {
		t.Errorf("database url: got %q, want empty", cfg.Database.URL)
	}
	if !cfg.Bonus.Amount.Equal(decimal.NewFromInt(50)) || cfg.Bonus.ValidFor != 12*time.Hour {
		t.Errorf("bonus: got %s for %s, want 50 for 12h", cfg.Bonus.Amount, cfg.Bonus.ValidFor)
	}
	if !cfg.Queue.MinWithdrawal.Equal(decimal.NewFromInt(150)) {
		t.Errorf("min withdrawal: got %s, want 150", cfg.Queue.MinWithdrawal)
	}
	if cfg.Market.SupportedSymbols != nil {
		t.Errorf("symbols: got %v, want none", cfg.Market.SupportedSymbols)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BONUS_AMOUNT", "25.5")
	t.Setenv("BONUS_VALID_FOR", "30m")
	t.Setenv("MIN_DEPOSIT", "-1")
	t.Setenv("SUPPORTED_SYMBOLS", " btc, eth ,,sol")

	cfg := Load()
	if !cfg.Bonus.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("bonus amount: got %s, want 25.5", cfg.Bonus.Amount)
	}
	if cfg.Bonus.ValidFor != 30*time.Minute {
		t.Errorf("bonus validity: got %s, want 30m", cfg.Bonus.ValidFor)
	}
	if !cfg.Queue.MinDeposit.Equal(decimal.NewFromInt(100)) {
		t.Errorf("negative minimum should fall back: got %s", cfg.Queue.MinDeposit)
	}
	want := []string{"btc", "eth", "sol"}
	if len(cfg.Market.SupportedSymbols) != len(want) {
		t.Fatalf("symbols: got %v, want %v", cfg.Market.SupportedSymbols, want)
	}
	for i := range want {
		if cfg.Market.SupportedSymbols[i] != want[i] {
			t.Errorf("symbol %d: got %s, want %s", i, cfg.Market.SupportedSymbols[i], want[i])
		}
	}
}
