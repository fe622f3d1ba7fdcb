package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender mirrors alerts to a Discord webhook
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordSender creates a new Discord sender
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *DiscordSender) Name() string { return "discord" }

// Send sends the alert to Discord
func (s *DiscordSender) Send(ctx context.Context, alert *Alert) error {
	webhookPayload := map[string]interface{}{
		"embeds": []interface{}{buildEmbed(alert)},
	}

	body, err := json.Marshal(webhookPayload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func buildEmbed(alert *Alert) map[string]interface{} {
	var title string
	var color int
	switch alert.Kind {
	case KindEscalation:
		title = "🎯 Fast consensus"
		color = 0xFF0000
	case KindGrowth:
		title = fmt.Sprintf("🚀 %dx from first reading", alert.Multiplier)
		color = 0x00C853
	default:
		title = "📡 Quorum reached"
		color = 0x0099FF
	}

	fields := []map[string]interface{}{
		{
			"name":   "Contract",
			"value":  fmt.Sprintf("`%s`", alert.ContractID),
			"inline": false,
		},
		{
			"name":   "Chart",
			"value":  "https://dexscreener.com/solana/" + alert.ContractID,
			"inline": false,
		},
	}

	return map[string]interface{}{
		"title":       title,
		"description": truncate(alert.Text, 2000),
		"color":       color,
		"fields":      fields,
		"footer": map[string]interface{}{
			"text": fmt.Sprintf("tokenradar • %s • %s", alert.Kind, alert.ID),
		},
		"timestamp": alert.CreatedAt.Format(time.RFC3339),
	}
}
