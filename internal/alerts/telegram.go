package alerts

import (
	"context"
	"fmt"
)

// MessageSender is the part of the Bot API client the sender needs
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramSender delivers alerts to their destination chat
type TelegramSender struct {
	client MessageSender
}

// NewTelegramSender creates a new Telegram sender
func NewTelegramSender(client MessageSender) *TelegramSender {
	return &TelegramSender{client: client}
}

func (s *TelegramSender) Name() string { return "telegram" }

// Send posts the alert text to alert.Destination
func (s *TelegramSender) Send(ctx context.Context, alert *Alert) error {
	if alert.Destination == "" {
		return fmt.Errorf("no destination for %s alert", alert.Kind)
	}
	if err := s.client.SendMessage(ctx, alert.Destination, alert.Text); err != nil {
		return fmt.Errorf("telegram send to %s: %w", alert.Destination, err)
	}
	return nil
}
