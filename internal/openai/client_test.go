package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Driving"}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	got, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Driving" {
		t.Errorf("expected Driving, got %q", got)
	}
}

func TestCompleteWithTools_ReturnsToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.ToolChoice != "required" {
			t.Errorf("expected tool_choice required, got %q", req.ToolChoice)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "handle_routine_checkin" {
			t.Errorf("unexpected tools: %+v", req.Tools)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"tool_calls": []map[string]any{
							{"function": map[string]any{
								"name":      "handle_routine_checkin",
								"arguments": `{"response_text":"Where are you now?"}`,
							}},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	tools := []Tool{{
		Type: "function",
		Function: ToolFunction{
			Name:       "handle_routine_checkin",
			Parameters: map[string]any{"type": "object"},
		},
	}}

	call, err := c.CompleteWithTools(context.Background(), []Message{{Role: "user", Content: "hi"}}, tools, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Name != "handle_routine_checkin" {
		t.Errorf("expected tool name handle_routine_checkin, got %q", call.Name)
	}

	var args map[string]string
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		t.Fatalf("arguments are not valid JSON: %v", err)
	}
	if args["response_text"] != "Where are you now?" {
		t.Errorf("unexpected arguments: %q", call.Arguments)
	}
}

func TestCompleteWithTools_NoToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "just text"}, "finish_reason": "stop"},
			},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	_, err := c.CompleteWithTools(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, 0.3)
	if err == nil {
		t.Fatal("expected error when response has no tool call")
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}}, 100)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}
