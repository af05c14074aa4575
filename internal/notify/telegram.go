// Package notify pushes operator alerts for noteworthy session events to
// Telegram. Send-only: no commands are accepted over the bot.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/shopreply/internal/bus"
)

// sender is the subset of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards cycle failures and restart recoveries to a
// single operator chat.
type TelegramNotifier struct {
	token  string
	chatID int64
	logger *slog.Logger
	bot    sender
}

func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) *TelegramNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		logger: logger,
	}
}

// Run subscribes to alert-worthy topics and relays them until ctx is
// cancelled. Blocks; run in its own goroutine.
func (n *TelegramNotifier) Run(ctx context.Context, b *bus.Bus) error {
	if n.bot == nil {
		bot, err := tgbotapi.NewBotAPI(n.token)
		if err != nil {
			return fmt.Errorf("telegram init failed: %w", err)
		}
		n.bot = bot
		n.logger.Info("telegram notifier started", "user", bot.Self.UserName)
	}

	failed := b.Subscribe(bus.TopicCycleFailed)
	restored := b.Subscribe(bus.TopicSessionRestored)
	defer b.Unsubscribe(failed)
	defer b.Unsubscribe(restored)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-failed.Ch():
			if !ok {
				return nil
			}
			if ce, ok := ev.Payload.(bus.CycleEvent); ok {
				n.send(formatCycleFailure(ce))
			}
		case ev, ok := <-restored.Ch():
			if !ok {
				return nil
			}
			if se, ok := ev.Payload.(bus.SessionEvent); ok {
				n.send(formatRestore(se))
			}
		}
	}
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn("telegram send failed", "error", err)
	}
}

func formatCycleFailure(ev bus.CycleEvent) string {
	return fmt.Sprintf("⚠️ cycle failed\naccount: %s\nsession: %s\n%s",
		ev.AccountRef, ev.SessionID, ev.Error)
}

func formatRestore(ev bus.SessionEvent) string {
	return fmt.Sprintf("♻️ session restored after restart\naccount: %s\nsession: %s",
		ev.AccountRef, ev.SessionID)
}
