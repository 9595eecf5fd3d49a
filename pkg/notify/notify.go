// Package notify delivers bet alerts to Telegram.
package notify

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/statedge/betengine/pkg/bets"
	"github.com/statedge/betengine/pkg/tracker"
)

// Notifier delivers one alert. Delivery failures must not propagate into the
// tracking path; implementations log and move on.
type Notifier interface {
	Notify(a *tracker.Alert)
}

// LogNotifier writes alerts to the process log. It is the fallback when no
// Telegram credentials are configured.
type LogNotifier struct{}

func (LogNotifier) Notify(a *tracker.Alert) {
	log.Printf("[notify] %s %s: %s %s %.0f%% (%s)",
		a.Type, a.Stage, a.SubjectName, a.StatType, a.Progress, a.Status)
}

// Telegram sends alerts to a single chat via the Bot API.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryDelay time.Duration
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	return &Telegram{
		bot:        bot,
		chatID:     chatIDInt,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Notify formats and sends the alert. Sends run in the caller's goroutine
// with linear-backoff retry; a final failure is logged, never returned.
func (t *Telegram) Notify(a *tracker.Alert) {
	msg := tgbotapi.NewMessage(t.chatID, formatAlert(a))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return
		} else {
			lastErr = err
		}
		time.Sleep(t.retryDelay * time.Duration(i+1))
	}
	log.Printf("[notify] telegram send failed after %d retries: %v", t.maxRetries, lastErr)
}

// formatAlert renders one alert as a Telegram MarkdownV2 message.
func formatAlert(a *tracker.Alert) string {
	subject := escapeMarkdownV2(a.SubjectName)
	line := escapeMarkdownV2(fmt.Sprintf("%.1f %s", a.TargetValue, a.StatType))

	switch a.Type {
	case tracker.AlertPregame:
		return fmt.Sprintf("⏰ *Game starting soon*\n%s — %s\n%s",
			subject, line, escapeMarkdownV2(strings.ReplaceAll(a.Stage, "_", " ")))

	case tracker.AlertSettlement:
		var head string
		switch a.Status {
		case bets.StatusWon:
			head = fmt.Sprintf("✅ *Bet won* \\+%s units", escapeMarkdownV2(a.Payout.StringFixed(2)))
		case bets.StatusPush:
			head = "↔️ *Bet pushed* stake refunded"
		default:
			head = "❌ *Bet lost*"
		}
		return fmt.Sprintf("%s\n%s — %s\nFinal: %s",
			head, subject, line,
			escapeMarkdownV2(fmt.Sprintf("%.0f of %.1f", a.CurrentValue, a.TargetValue)))

	default: // milestone
		return fmt.Sprintf("📊 *%d%% there* \\(%s\\)\n%s — %s\nNow: %s",
			a.Threshold, escapeMarkdownV2(a.Stage), subject, line,
			escapeMarkdownV2(fmt.Sprintf("%.0f of %.1f", a.CurrentValue, a.TargetValue)))
	}
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
