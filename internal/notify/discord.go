package notify

import (
	"context"
	"net/http"
)

var discordColors = map[Severity]int{
	SeverityInfo:     0x2ecc71,
	SeverityWarning:  0xf1c40f,
	SeverityCritical: 0xe74c3c,
}

// DiscordSender delivers notifications through a Discord webhook as a
// single embed coloured by severity.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Send posts msg to the webhook. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"embeds": []discordEmbed{{
			Title:       "[" + msg.Severity.String() + "] " + msg.Title,
			Description: msg.Body,
			Color:       discordColors[msg.Severity],
		}},
	}
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, payload)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }
