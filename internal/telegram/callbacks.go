package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

func (s *Service) onCallback(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx == nil || ctx.CallbackQuery == nil {
		return nil
	}
	if ctx.CallbackQuery.From.Id != s.adminUserID {
		s.answerCallback(b, ctx, "Admin only.", true)
		return nil
	}

	data := strings.TrimSpace(ctx.CallbackQuery.Data)
	s.answerCallback(b, ctx, "", false)

	switch data {
	case cbMenu:
		return s.editOrReplyCallback(ctx, b, "orbnews admin", mainMenuKeyboard())

	case cbHelp:
		return s.editOrReplyCallback(ctx, b, helpText(), backToMenuKeyboard())

	case cbStats:
		text, err := s.statsText(context.Background())
		if err != nil {
			s.answerCallback(b, ctx, "Failed to load cache stats.", true)
			return nil
		}
		return s.editOrReplyCallback(ctx, b, text, backToMenuKeyboard())

	case cbModels:
		text := modelsText(s.newsroom.Models(), s.newsroom.Reliability(), s.now())
		return s.editOrReplyCallback(ctx, b, text, backToMenuKeyboard())

	case cbProbe:
		return s.editOrReplyCallback(ctx, b, s.runProbe(), backToMenuKeyboard())

	default:
		s.answerCallback(b, ctx, fmt.Sprintf("Unknown action: %s", data), true)
		return nil
	}
}

func (s *Service) answerCallback(b *gotgbot.Bot, ctx *ext.Context, text string, alert bool) {
	if ctx == nil || ctx.CallbackQuery == nil {
		return
	}
	opts := &gotgbot.AnswerCallbackQueryOpts{ShowAlert: alert}
	if text != "" {
		opts.Text = text
	}
	_, _ = b.AnswerCallbackQuery(ctx.CallbackQuery.Id, opts)
}

func (s *Service) editOrReplyCallback(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx != nil && ctx.CallbackQuery != nil && ctx.CallbackQuery.Message != nil {
		opts := &gotgbot.EditMessageTextOpts{}
		if markup != nil {
			opts.ReplyMarkup = *markup
		}
		_, _, err := ctx.CallbackQuery.Message.EditText(b, text, opts)
		if err == nil {
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
			return nil
		}
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}
