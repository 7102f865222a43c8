package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/dustin/go-humanize"

	"orbnews/internal/reliability"
	"orbnews/internal/story"
)

const (
	cbPrefix = "orb:"

	cbMenu   = cbPrefix + "menu"
	cbStats  = cbPrefix + "stats"
	cbModels = cbPrefix + "models"
	cbProbe  = cbPrefix + "probe"
	cbHelp   = cbPrefix + "help"
)

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"/menu - admin menu",
		"/stats - story cache statistics",
		"/clear [days] - delete stories older than days (default " + fmt.Sprint(story.RetentionDays) + ")",
		"/models - generator reliability from the last probe",
		"/probe - re-run the reliability probe",
		"/help",
	}, "\n")
}

func statsText(st story.Stats, now time.Time) string {
	if st.TotalStories == 0 {
		return "Story cache is empty."
	}
	lines := []string{
		fmt.Sprintf("Stories: %s", humanize.Comma(st.TotalStories)),
		fmt.Sprintf("Categories: %d, epochs: %d, models: %d, languages: %d",
			st.DistinctCategories, st.DistinctEpochs, st.DistinctModels, st.DistinctLanguages),
	}
	if len(st.Categories) > 0 {
		lines = append(lines, "", "By category:")
		for _, c := range st.Categories {
			lines = append(lines, fmt.Sprintf("- %s: %s (%s)", c.Category, humanize.Comma(c.Count), strings.Join(c.Models, ", ")))
		}
	}
	if len(st.MostAccessed) > 0 {
		lines = append(lines, "", "Most served:")
		for _, s := range st.MostAccessed {
			lines = append(lines, fmt.Sprintf("- %s (%s plays)", s.Headline, humanize.Comma(s.AccessCount)))
		}
	}
	if len(st.MostRecent) > 0 {
		lines = append(lines, "", "Newest:")
		for _, s := range st.MostRecent {
			lines = append(lines, fmt.Sprintf("- %s, %s", s.Headline, humanize.RelTime(s.CreatedAt, now, "ago", "from now")))
		}
	}
	return strings.Join(lines, "\n")
}

func modelsText(ids []string, report reliability.Report, now time.Time) string {
	if report.CheckedAt.IsZero() {
		lines := []string{"Generators (not probed yet):"}
		for _, id := range ids {
			lines = append(lines, "- "+id)
		}
		return strings.Join(lines, "\n")
	}

	lines := []string{fmt.Sprintf("Last probe %s", humanize.RelTime(report.CheckedAt, now, "ago", "from now"))}
	for _, r := range report.Results {
		mark := "down"
		if r.Reliable {
			mark = "ok"
		}
		line := fmt.Sprintf("- %s [%s]", r.DisplayName, mark)
		if r.Error != "" {
			line += ": " + r.Error
		}
		lines = append(lines, line)
	}
	if len(report.Reliable) == 0 {
		lines = append(lines, "", "No reliable generator, requests are served by the fallback story.")
	} else {
		lines = append(lines, "", "Order: "+strings.Join(report.Reliable, " > "))
	}
	return strings.Join(lines, "\n")
}

func clearText(deleted int64, days int) string {
	if deleted == 0 {
		return "Nothing to clear."
	}
	return fmt.Sprintf("Cleared %s stories older than %d days.", humanize.Comma(deleted), days)
}

func mainMenuKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{
			{Text: "Cache stats", CallbackData: cbStats},
			{Text: "Generators", CallbackData: cbModels},
		},
		{
			{Text: "Probe now", CallbackData: cbProbe},
			{Text: "Help", CallbackData: cbHelp},
		},
	}}
}

func backToMenuKeyboard() *gotgbot.InlineKeyboardMarkup {
	return &gotgbot.InlineKeyboardMarkup{InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
		{{Text: "Back to menu", CallbackData: cbMenu}},
	}}
}

func (s *Service) replyWithMarkup(ctx *ext.Context, b *gotgbot.Bot, text string, markup *gotgbot.InlineKeyboardMarkup) error {
	if ctx == nil || ctx.EffectiveChat == nil {
		return nil
	}
	opts := &gotgbot.SendMessageOpts{}
	if markup != nil {
		opts.ReplyMarkup = *markup
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, opts)
	return err
}
