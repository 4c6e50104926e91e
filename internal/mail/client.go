// Package mail implements the transactional alert mail capability.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oversift/trustwatch/internal/trust"
)

// Config controls the mail provider client.
type Config struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// Client delivers alert email through the provider's POST /messages API.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// SendAlert renders and submits one critical-event alert.
func (c *Client) SendAlert(ctx context.Context, alert trust.Alert) error {
	msg := message{
		From:    c.cfg.From,
		To:      alert.Recipient,
		Subject: fmt.Sprintf("[trustwatch] %s: %s %s", alert.Company.DisplayName, alert.Event.Type, alert.Event.Key),
		Text:    renderBody(alert),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call mail provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("mail provider returned status %d", resp.StatusCode)
	}
	return nil
}

func renderBody(alert trust.Alert) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "A %s change was detected for %s (%s).\n\n", alert.Event.Severity, alert.Company.DisplayName, alert.Company.Domain)
	fmt.Fprintf(&b, "Claim: %s (%s)\nEvent: %s\nDetected: %s\nSource: %s\n",
		alert.Event.Key, alert.Event.ClaimType, alert.Event.Type,
		alert.Event.DetectedAt.Format(time.RFC3339), alert.Event.SourceURL)
	if alert.Event.OldSnippet != "" {
		fmt.Fprintf(&b, "\nPreviously:\n  %s\n", alert.Event.OldSnippet)
	}
	if alert.Event.NewSnippet != "" {
		fmt.Fprintf(&b, "\nNow:\n  %s\n", alert.Event.NewSnippet)
	}
	return b.String()
}
