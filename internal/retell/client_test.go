package retell

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreatePhoneCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/create-phone-call" {
			t.Errorf("expected /v2/create-phone-call, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key_test" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}

		var req phoneCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.ToNumber != "+14155550123" {
			t.Errorf("expected to_number +14155550123, got %q", req.ToNumber)
		}
		if req.Metadata["driver_name"] != "Mike" {
			t.Errorf("expected driver_name metadata, got %+v", req.Metadata)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"call_id": "call_abc123"})
	}))
	defer server.Close()

	c := NewClient("key_test")
	c.SetBaseURL(server.URL)

	callID, err := c.CreatePhoneCall(context.Background(), "agent_1", "+14155550100", "+14155550123", map[string]string{
		"driver_name": "Mike",
		"load_number": "7891-B",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if callID != "call_abc123" {
		t.Errorf("expected call_abc123, got %q", callID)
	}
}

func TestCreatePhoneCall_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid to_number"})
	}))
	defer server.Close()

	c := NewClient("key_test")
	c.SetBaseURL(server.URL)

	_, err := c.CreatePhoneCall(context.Background(), "agent_1", "+1", "bogus", nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestCreateWebCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/create-web-call" {
			t.Errorf("expected /v2/create-web-call, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"call_id":      "call_web_1",
			"access_token": "tok_xyz",
		})
	}))
	defer server.Close()

	c := NewClient("key_test")
	c.SetBaseURL(server.URL)

	wc, err := c.CreateWebCall(context.Background(), "agent_1", map[string]string{"driver_name": "Sam"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wc.CallID != "call_web_1" || wc.AccessToken != "tok_xyz" {
		t.Errorf("unexpected web call: %+v", wc)
	}
}

func TestCreateWebCall_EmptyCallID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	c := NewClient("key_test")
	c.SetBaseURL(server.URL)

	_, err := c.CreateWebCall(context.Background(), "agent_1", nil)
	if err == nil {
		t.Fatal("expected error for missing call_id")
	}
}
