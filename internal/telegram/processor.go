package telegram

import (
	"context"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/rs/zerolog"

	"orbnews/internal/metrics"
	"orbnews/internal/queue"
)

// Processor drops duplicate updates and updates from anyone but the admin.
type Processor struct {
	Base          ext.BaseProcessor
	Dedupe        *queue.UpdateDeduplicator
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	AllowedUserID int64
}

func (p Processor) ProcessUpdate(d *ext.Dispatcher, b *gotgbot.Bot, ctx *ext.Context) error {
	if p.Metrics != nil {
		p.Metrics.UpdatesTotal.Inc()
	}
	if !allowedSender(p.AllowedUserID, senderID(ctx)) {
		return nil
	}
	if p.Dedupe != nil {
		first, err := p.Dedupe.MarkFirst(context.Background(), ctx.UpdateId)
		if err != nil {
			p.Logger.Error().Err(err).Int64("update_id", ctx.UpdateId).Msg("failed to dedupe update")
		} else if !first {
			return nil
		}
	}
	return p.Base.ProcessUpdate(d, b, ctx)
}

func allowedSender(allowed, sender int64) bool {
	return allowed == 0 || sender == allowed
}

func senderID(ctx *ext.Context) int64 {
	if ctx == nil || ctx.EffectiveUser == nil {
		return 0
	}
	return ctx.EffectiveUser.Id
}
