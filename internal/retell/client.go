// Package retell is a minimal client for the Retell telephony API. The
// platform owns call origination, audio I/O, and turn delivery; this client
// only places calls and is otherwise a black box.
package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.retellai.com"

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL points the client at a different API endpoint, used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// WebCall is the result of creating a browser-based test call.
type WebCall struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
}

type phoneCallRequest struct {
	AgentID    string            `json:"agent_id"`
	FromNumber string            `json:"from_number"`
	ToNumber   string            `json:"to_number"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type webCallRequest struct {
	AgentID  string            `json:"agent_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreatePhoneCall originates an outbound PSTN call and returns the platform
// call ID, which keys all later orchestration for that call.
func (c *Client) CreatePhoneCall(ctx context.Context, agentID, fromNumber, toNumber string, metadata map[string]string) (string, error) {
	var resp struct {
		CallID string `json:"call_id"`
	}
	err := c.post(ctx, "/v2/create-phone-call", phoneCallRequest{
		AgentID:    agentID,
		FromNumber: fromNumber,
		ToNumber:   toNumber,
		Metadata:   metadata,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.CallID == "" {
		return "", fmt.Errorf("create phone call: empty call_id in response")
	}
	return resp.CallID, nil
}

// CreateWebCall creates a browser test call and returns the call ID plus the
// access token the frontend needs to join it.
func (c *Client) CreateWebCall(ctx context.Context, agentID string, metadata map[string]string) (*WebCall, error) {
	var resp WebCall
	err := c.post(ctx, "/v2/create-web-call", webCallRequest{
		AgentID:  agentID,
		Metadata: metadata,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.CallID == "" {
		return nil, fmt.Errorf("create web call: empty call_id in response")
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
