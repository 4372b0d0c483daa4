package service

import (
	"context"

	"github.com/rs/zerolog"

	"leverledger/internal/domain"
)

// Notifier delivers operator alerts. A failed alert never undoes the
// ledger change it reports.
type Notifier interface {
	SendRequestQueued(ctx context.Context, req domain.Request) error
	SendLiquidation(ctx context.Context, p domain.Position) error
}

func notifyRequestQueued(ctx context.Context, n Notifier, log zerolog.Logger, req *domain.Request) {
	if n == nil {
		return
	}
	if err := n.SendRequestQueued(ctx, *req); err != nil {
		log.Warn().Err(err).Str("request_id", req.ID.String()).Msg("failed to send request alert")
	}
}

func notifyLiquidation(ctx context.Context, n Notifier, log zerolog.Logger, p *domain.Position) {
	if n == nil {
		return
	}
	if err := n.SendLiquidation(ctx, *p); err != nil {
		log.Warn().Err(err).Str("position_id", p.ID.String()).Msg("failed to send liquidation alert")
	}
}
