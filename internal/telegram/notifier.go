// Package telegram sends mug-opportunity notifications via the Telegram Bot
// API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/homiewrecker/hawkeye/internal/models"
	"github.com/homiewrecker/hawkeye/internal/scout"
	"github.com/homiewrecker/hawkeye/internal/storage"
)

// Notifier pushes juicy-band verdicts for watched targets, with a per-target
// cooldown so a patrol loop does not spam the chat.
type Notifier struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	storage        *storage.Storage
	maxRetries     int
	retryDelayBase time.Duration
	cooldown       time.Duration
}

// NewNotifier creates a Telegram notifier.
func NewNotifier(botToken, chatID string, st *storage.Storage, maxRetries int, retryDelayBase, cooldown time.Duration) (*Notifier, error) {
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

	return &Notifier{
		bot:            bot,
		chatID:         chatIDInt,
		storage:        st,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		cooldown:       cooldown,
	}, nil
}

// NotifyJuicy sends a notification for a juicy verdict unless the target was
// already notified about inside the cooldown window. Returns whether a
// message was sent.
func (n *Notifier) NotifyJuicy(res scout.Result) (bool, error) {
	last, err := n.storage.LastNotified(res.Verdict.TargetID)
	if err != nil {
		return false, err
	}
	if !last.IsZero() && time.Since(last) < n.cooldown {
		return false, nil
	}

	if err := n.sendMarkdownV2(formatVerdict(res)); err != nil {
		return false, err
	}

	record := &models.Notification{
		ID:       uuid.New().String(),
		TargetID: res.Verdict.TargetID,
		Score:    res.Verdict.Score,
		Band:     res.Verdict.Band,
		SentAt:   time.Now(),
	}
	if err := n.storage.AddNotification(record); err != nil {
		return true, err
	}
	return true, nil
}

// SendError sends a patrol error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (n *Notifier) SendError(patrolErr error) error {
	text := fmt.Sprintf("⚠️ *Patrol error*\n`%s`", escapeMarkdownV2(patrolErr.Error()))
	return n.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (n *Notifier) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Patrol recovered* after %d consecutive failure\\(s\\)", failureCount)
	return n.sendMarkdownV2(text)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (n *Notifier) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if _, err := n.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(n.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", n.maxRetries, lastErr)
}

// formatVerdict formats a scored target into a Telegram MarkdownV2 message.
func formatVerdict(res scout.Result) string {
	v := res.Verdict
	f := res.Features

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 *Juicy target* %s scored *%d*\n\n", escapeMarkdownV2(v.TargetID), v.Score)

	status := "offline"
	switch {
	case f.Hospitalized:
		status = "in hospital"
	case f.Traveling:
		status = "traveling"
	case f.Online:
		status = "online"
	}
	fmt.Fprintf(&b, "• Status: %s, last action %s min ago\n", escapeMarkdownV2(status), escapeMarkdownV2(strconv.Itoa(f.LastActionMinutes)))

	if f.HasBazaar {
		fmt.Fprintf(&b, "• Bazaar list value: %s\n", escapeMarkdownV2(fmt.Sprintf("$%d", f.BazaarValue)))
	}
	if f.PersonalSamples > 0 {
		fmt.Fprintf(&b, "• Your history: %d mugs, mean %s\n", f.PersonalSamples, escapeMarkdownV2(fmt.Sprintf("$%.0f", f.PersonalMean)))
	}
	fmt.Fprintf(&b, "• Detected: %s\n", escapeMarkdownV2(v.ScoredAt.Format("2006-01-02 15:04:05")))

	return b.String()
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
