package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"orbnews/internal/story"
)

var errBadDays = errors.New("days must be a non-negative integer")

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	return s.reply(ctx, b, helpText())
}

func (s *Service) menu(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	return s.replyWithMarkup(ctx, b, "orbnews admin", mainMenuKeyboard())
}

func (s *Service) stats(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	text, err := s.statsText(context.Background())
	if err != nil {
		return s.reply(ctx, b, "Failed to load cache stats.")
	}
	return s.replyWithMarkup(ctx, b, text, backToMenuKeyboard())
}

func (s *Service) clear(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) || ctx.EffectiveMessage == nil {
		return nil
	}
	days, err := parseDays(commandRemainder(ctx.EffectiveMessage.GetText()))
	if err != nil {
		return s.reply(ctx, b, "Usage: /clear [days], days defaults to "+strconv.Itoa(story.RetentionDays))
	}

	deleted, err := s.newsroom.ClearOldStories(context.Background(), days)
	if err != nil {
		s.logger.Error().Err(err).Int("days", days).Msg("clear old stories failed")
		return s.reply(ctx, b, "Failed to clear stories.")
	}
	s.logger.Info().Int64("deleted", deleted).Int("days", days).Int64("user_id", senderID(ctx)).Msg("stories cleared from telegram")
	return s.reply(ctx, b, clearText(deleted, days))
}

func (s *Service) models(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	return s.replyWithMarkup(ctx, b, modelsText(s.newsroom.Models(), s.newsroom.Reliability(), s.now()), backToMenuKeyboard())
}

func (s *Service) probe(b *gotgbot.Bot, ctx *ext.Context) error {
	if !s.requireAdmin(b, ctx) {
		return nil
	}
	_ = s.reply(ctx, b, "Probing generators...")
	return s.replyWithMarkup(ctx, b, s.runProbe(), backToMenuKeyboard())
}

func (s *Service) runProbe() string {
	probeCtx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
	defer cancel()
	report := s.newsroom.RefreshReliability(probeCtx)
	return modelsText(s.newsroom.Models(), report, s.now())
}

func (s *Service) statsText(ctx context.Context) (string, error) {
	st, err := s.newsroom.GetCacheStats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("cache stats failed")
		return "", err
	}
	return statsText(st, s.now()), nil
}

// requireAdmin allows only the configured admin in a private chat.
func (s *Service) requireAdmin(b *gotgbot.Bot, ctx *ext.Context) bool {
	if ctx.EffectiveChat == nil || ctx.EffectiveUser == nil {
		return false
	}
	if s.adminUserID == 0 || ctx.EffectiveUser.Id != s.adminUserID {
		s.logger.Warn().Int64("user_id", ctx.EffectiveUser.Id).Msg("rejected non-admin command")
		return false
	}
	if ctx.EffectiveChat.Type != "private" {
		_ = s.reply(ctx, b, "Run admin commands in a private chat.")
		return false
	}
	return true
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func commandRemainder(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseDays(raw string) (int, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "d")
	if raw == "" {
		return story.RetentionDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("%w: %q", errBadDays, raw)
	}
	return days, nil
}
