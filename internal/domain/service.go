package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Scheduler runs deferred tasks. Tasks must re-validate state before acting.
type Scheduler interface {
	ScheduleAfter(d time.Duration, task func(ctx context.Context))
}

// PriceFeed supplies market prices from an external source
type PriceFeed interface {
	FetchPrices(ctx context.Context, instruments []Instrument) (map[string]decimal.Decimal, error)
}

// PriceSnapshotStore keeps the last known prices outside the process
type PriceSnapshotStore interface {
	SavePrices(ctx context.Context, prices map[string]decimal.Decimal) error
	LoadPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// AuthProvider verifies credentials. The core only consumes the identity.
type AuthProvider interface {
	VerifyCredentials(ctx context.Context, username, secret string) (Identity, error)
}
