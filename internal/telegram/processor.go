package telegram

import (
	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/rs/zerolog"

	"chatrecall/internal/metrics"
)

type Processor struct {
	Base    ext.BaseProcessor
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

func (p Processor) ProcessUpdate(d *ext.Dispatcher, b *gotgbot.Bot, ctx *ext.Context) error {
	if p.Metrics != nil {
		p.Metrics.TelegramUpdates.Inc()
	}
	if ctx.EffectiveChat != nil {
		p.Logger.Debug().Int64("update_id", ctx.UpdateId).Int64("chat_id", ctx.EffectiveChat.Id).Msg("telegram update")
	}
	return p.Base.ProcessUpdate(d, b, ctx)
}
