// Package notify delivers alert notifications via the Telegram Bot API.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/calder-health/biosense/internal/models"
)

// Telegram sends alert notifications to a single chat.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(t.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// SendAlerts sends one message summarizing the given alerts. No-op on an
// empty slice.
func (t *Telegram) SendAlerts(alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return t.sendMarkdownV2(formatAlerts(alerts))
}

// SendError sends an analysis error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (t *Telegram) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Analysis error*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return t.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (t *Telegram) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Analysis recovered* after %d consecutive failure\\(s\\)", failureCount)
	return t.sendMarkdownV2(text)
}

// formatAlerts formats alerts into a Telegram MarkdownV2 message.
func formatAlerts(alerts []models.Alert) string {
	message := "🩺 *Biomarker Alerts*\n\n"

	dateStr := escapeMarkdownV2(alerts[0].CreatedAt.Format("2006-01-02 15:04:05"))
	message += fmt.Sprintf("📅 Detected: %s\n\n", dateStr)

	for i, alert := range alerts {
		message += fmt.Sprintf("%d\\. *%s*\n", i+1, escapeMarkdownV2(alert.Title))

		valueStr := escapeMarkdownV2(fmt.Sprintf("%.1f", alert.Anomaly.Value))
		rangeStr := escapeMarkdownV2(fmt.Sprintf("%.1f - %.1f",
			alert.Anomaly.ExpectedRange.Low, alert.Anomaly.ExpectedRange.High))
		message += fmt.Sprintf("   Value: %s \\(expected %s\\)\n", valueStr, rangeStr)

		if alert.Recommendation != "" {
			message += fmt.Sprintf("   💡 %s\n", escapeMarkdownV2(alert.Recommendation))
		}

		message += "\n"
	}

	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
