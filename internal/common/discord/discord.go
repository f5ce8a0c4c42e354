package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

type WebhookMessage struct {
	Content string  `json:"content"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Client posts feed sync failures to a Discord webhook. An empty URL makes every call a no-op.
type Client struct {
	webhookURL string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

func (c *Client) SendMessage(ctx context.Context, msg WebhookMessage) error {
	if !c.Enabled() {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}

// NotifySyncFailure reports a composite sync that recorded at least one feed error.
func (c *Client) NotifySyncFailure(ctx context.Context, result models.SyncResult) error {
	if result.Success || !c.Enabled() {
		return nil
	}

	severity := "WARN"
	if result.DelayCount == 0 && result.VehicleCount == 0 && result.AlertCount == 0 {
		severity = "ERROR"
	}

	embed := Embed{
		Title:       fmt.Sprintf("GTFS-RT sync failed (%d of 3 feeds)", len(result.Errors)),
		Description: strings.Join(result.Errors, "\n"),
		Color:       getColorForLevel(severity),
		Timestamp:   c.now(),
		Fields: []Field{
			{Name: "Trip updates", Value: fmt.Sprint(result.DelayCount), Inline: true},
			{Name: "Vehicle positions", Value: fmt.Sprint(result.VehicleCount), Inline: true},
			{Name: "Service alerts", Value: fmt.Sprint(result.AlertCount), Inline: true},
			{Name: "Duration", Value: fmt.Sprintf("%dms", result.TotalDurationMillis), Inline: true},
		},
	}

	return c.SendMessage(ctx, WebhookMessage{Embeds: []Embed{embed}})
}

func getColorForLevel(level string) int {
	switch level {
	case "ERROR":
		return 0xFF0000 // Red
	case "WARN":
		return 0xFFA500 // Orange
	default:
		return 0x808080 // Gray
	}
}
