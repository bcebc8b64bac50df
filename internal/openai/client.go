package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the client at a different API endpoint, used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a function-calling tool definition in the chat completions format.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is the function invocation chosen by the model. Arguments is the
// raw JSON argument object.
type ToolCall struct {
	Name      string
	Arguments string
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a plain chat completion and returns the assistant text.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	resp, err := c.do(ctx, request{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.0,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools forces the model to answer through one of the given
// tools and returns the chosen call.
func (c *Client) CompleteWithTools(ctx context.Context, messages []Message, tools []Tool, temperature float64) (*ToolCall, error) {
	resp, err := c.do(ctx, request{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		ToolChoice:  "required",
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response choices")
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, fmt.Errorf("no tool call in response")
	}
	return &ToolCall{
		Name:      calls[0].Function.Name,
		Arguments: calls[0].Function.Arguments,
	}, nil
}

func (c *Client) do(ctx context.Context, reqBody request) (*response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("api error %d: %s — %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}
