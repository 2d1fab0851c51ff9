package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"autolingo/internal/config"
	"autolingo/internal/httpclient"
)

// DiscordProvider sends notifications via Discord webhooks
type DiscordProvider struct {
	config config.Discord
	client *http.Client
}

// NewDiscordProvider creates a new Discord notification provider
func NewDiscordProvider(cfg config.Discord) *DiscordProvider {
	return &DiscordProvider{
		config: cfg,
		client: httpclient.NewTraceClient("discord", 30*time.Second),
	}
}

// Name returns the provider name
func (d *DiscordProvider) Name() string {
	return "discord"
}

// Send sends a notification to Discord
func (d *DiscordProvider) Send(ctx context.Context, event Event) error {
	if d.config.WebhookURL == "" {
		return nil
	}
	return d.sendWebhook(ctx, d.buildPayload(event))
}

// Test sends a test notification
func (d *DiscordProvider) Test(ctx context.Context) error {
	if d.config.WebhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	event := Event{
		Type:      "test",
		Title:     "Test Notification",
		Message:   "This is a test notification from Autolingo. If you see this, Discord notifications are working!",
		Timestamp: time.Now(),
	}
	return d.sendWebhook(ctx, d.buildPayload(event))
}

// SetConfig updates the Discord configuration
func (d *DiscordProvider) SetConfig(cfg config.Discord) {
	d.config = cfg
}

func (d *DiscordProvider) buildPayload(event Event) discordWebhookPayload {
	embed := discordEmbed{
		Title:       event.Title,
		Description: event.Message,
		Color:       colorForEvent(event.Type),
		Timestamp:   event.Timestamp.Format(time.RFC3339),
		Footer: &discordEmbedFooter{
			Text: "Autolingo",
		},
	}

	for name, value := range event.Fields {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   name,
			Value:  value,
			Inline: true,
		})
	}

	payload := discordWebhookPayload{
		Username:  d.config.Username,
		AvatarURL: d.config.AvatarURL,
		Embeds:    []discordEmbed{embed},
	}
	if payload.Username == "" {
		payload.Username = "Autolingo"
	}
	return payload
}

func colorForEvent(eventType EventType) int {
	switch eventType {
	case EventTrackChanged, EventScheduler:
		return 0x00FF00 // Green
	case EventNewEpisode, EventUpdatedEpisode:
		return 0x0099FF // Blue
	case EventSystemError:
		return 0xFF0000 // Red
	default:
		return 0x808080 // Gray
	}
}

func (d *DiscordProvider) sendWebhook(ctx context.Context, payload discordWebhookPayload) error {
	return sendJSONRequest(ctx, d.client, "POST", d.config.WebhookURL, payload)
}

// Discord webhook payload structures
type discordWebhookPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content,omitempty"`
	Embeds    []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}
