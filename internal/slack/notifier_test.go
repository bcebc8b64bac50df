package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/extract"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostEscalation(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"ok":true,"ts":"1724800000.000100"}`))
	}))
	defer srv.Close()

	n := NewNotifier("xoxb-test", "#dispatch-escalations", testLogger())
	n.SetAPIURL(srv.URL)

	sum := extract.Summary{
		CallOutcome:       extract.OutcomeEmergency,
		EmergencyType:     extract.EmergencyBreakdown,
		EmergencyLocation: "I-15 North, Mile Marker 123",
		EscalationStatus:  extract.EscalationFlagged,
	}
	err := n.PostEscalation(context.Background(), "call_abc", sum, "Mike", "7891-B")
	if err != nil {
		t.Fatalf("PostEscalation failed: %v", err)
	}

	if auth != "Bearer xoxb-test" {
		t.Errorf("unexpected auth header: %q", auth)
	}
	if got["channel"] != "#dispatch-escalations" {
		t.Errorf("unexpected channel: %v", got["channel"])
	}
	text, _ := got["text"].(string)
	for _, want := range []string{"Mike", "7891-B", "call_abc", "Breakdown", "Mile Marker 123"} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
}

func TestPostEscalation_MissingFieldsStillPosts(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"ok":true,"ts":"1"}`))
	}))
	defer srv.Close()

	n := NewNotifier("xoxb-test", "#dispatch-escalations", testLogger())
	n.SetAPIURL(srv.URL)

	// A garbled emergency call can finish with neither field captured; the
	// page still goes out.
	err := n.PostEscalation(context.Background(), "call_abc", extract.Summary{
		CallOutcome:      extract.OutcomeEmergency,
		EscalationStatus: extract.EscalationFlagged,
	}, "", "")
	if err != nil {
		t.Fatalf("PostEscalation failed: %v", err)
	}
	text, _ := got["text"].(string)
	if !strings.Contains(text, "not captured") {
		t.Errorf("missing fields must be called out:\n%s", text)
	}
}

func TestPostEscalation_SlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	n := NewNotifier("xoxb-test", "#nope", testLogger())
	n.SetAPIURL(srv.URL)

	err := n.PostEscalation(context.Background(), "call_abc", extract.Summary{}, "Mike", "7891-B")
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected slack error, got %v", err)
	}
}
