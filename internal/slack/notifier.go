// Package slack pages flagged emergencies to the human dispatcher channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/extract"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Notifier struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewNotifier(token, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// SetAPIURL overrides the Slack endpoint for tests.
func (n *Notifier) SetAPIURL(url string) {
	n.apiURL = url
}

// PostEscalation posts an emergency-flagged call to the dispatcher channel
// so a human can call the driver back immediately.
func (n *Notifier) PostEscalation(ctx context.Context, callID string, sum extract.Summary, driverName, loadNumber string) error {
	text := formatEscalation(callID, sum, driverName, loadNumber)

	body, err := json.Marshal(map[string]any{
		"channel": n.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "The agent has ended the call. A human dispatcher must call the driver back.",
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	n.logger.Info("posted escalation to slack", "ts", slackResp.TS, "call_id", callID)
	return nil
}

func formatEscalation(callID string, sum extract.Summary, driverName, loadNumber string) string {
	var b strings.Builder
	b.WriteString(":rotating_light: *Emergency flagged on a driver check-in call*\n")
	if driverName != "" {
		fmt.Fprintf(&b, "*Driver:* %s\n", driverName)
	}
	if loadNumber != "" {
		fmt.Fprintf(&b, "*Load:* %s\n", loadNumber)
	}
	fmt.Fprintf(&b, "*Call:* `%s`\n", callID)
	if sum.EmergencyType != "" {
		fmt.Fprintf(&b, "*Type:* %s\n", sum.EmergencyType)
	} else {
		b.WriteString("*Type:* not captured\n")
	}
	if sum.EmergencyLocation != "" {
		fmt.Fprintf(&b, "*Location:* %s\n", sum.EmergencyLocation)
	} else {
		b.WriteString("*Location:* not captured\n")
	}
	return b.String()
}
