package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/events"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/extract"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

type fakeSummarizer struct {
	sum     extract.Summary
	err     error
	gotFlag bool
	turns   []session.Turn
}

func (f *fakeSummarizer) Extract(_ context.Context, turns []session.Turn, flag bool) (extract.Summary, error) {
	f.turns = turns
	f.gotFlag = flag
	return f.sum, f.err
}

type fakeRecorder struct {
	callID string
	turns  []session.Turn
	sum    extract.Summary
	err    error
}

func (f *fakeRecorder) FinalizeCall(_ context.Context, callID string, turns []session.Turn, sum extract.Summary) error {
	f.callID = callID
	f.turns = turns
	f.sum = sum
	return f.err
}

type fakePublisher struct {
	published []string
	payloads  []any
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.published = append(f.published, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

type fakeNotifier struct {
	posted bool
	callID string
	sum    extract.Summary
}

func (f *fakeNotifier) PostEscalation(_ context.Context, callID string, sum extract.Summary, _, _ string) error {
	f.posted = true
	f.callID = callID
	f.sum = sum
	return nil
}

func TestFinalize_RoutineCall(t *testing.T) {
	sessions := session.NewStore()
	c := sessions.Create("call_1", "Mike", "+14155550123", "7891-B", policy.Default(2))
	c.Lock()
	c.AppendTurn(session.SpeakerAgent, "Hi Mike, quick status check.")
	c.AppendTurn(session.SpeakerDriver, "Driving on I-10 near Indio, ETA tomorrow 8am.")
	c.Unlock()

	sm := &fakeSummarizer{sum: extract.Summary{
		CallOutcome:     extract.OutcomeInTransit,
		DriverStatus:    extract.StatusDriving,
		CurrentLocation: "I-10 near Indio, CA",
		ETA:             "Tomorrow, 8:00 AM",
	}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	not := &fakeNotifier{}

	f := NewFinalizer(sessions, sm, rec, pub, not, discardLogger())
	f.Finalize(context.Background(), "call_1", nil)

	if sm.gotFlag {
		t.Error("routine call must extract with the emergency flag unset")
	}
	if len(sm.turns) != 2 {
		t.Errorf("expected the session's own turn log, got %d turns", len(sm.turns))
	}
	if rec.callID != "call_1" || rec.sum.CallOutcome != extract.OutcomeInTransit {
		t.Errorf("persisted record mismatch: %q %+v", rec.callID, rec.sum)
	}
	if len(pub.published) != 1 || pub.published[0] != events.SubjectCallCompleted {
		t.Errorf("expected only a completed event, got %v", pub.published)
	}
	if not.posted {
		t.Error("routine call must not page the dispatcher channel")
	}
	if _, ok := sessions.Get("call_1"); ok {
		t.Error("finalized session must be removed from the store")
	}
}

func TestFinalize_EmergencyEscalates(t *testing.T) {
	sessions := session.NewStore()
	c := sessions.Create("call_1", "Mike", "+14155550123", "7891-B", policy.Default(2))
	c.Lock()
	c.EmergencyFlag = true
	c.AppendTurn(session.SpeakerDriver, "Blowout on I-15 North, mile marker 123.")
	c.Unlock()

	sm := &fakeSummarizer{sum: extract.Summary{
		CallOutcome:       extract.OutcomeEmergency,
		EmergencyType:     extract.EmergencyBreakdown,
		EmergencyLocation: "I-15 North, Mile Marker 123",
		EscalationStatus:  extract.EscalationFlagged,
	}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	not := &fakeNotifier{}

	f := NewFinalizer(sessions, sm, rec, pub, not, discardLogger())
	f.Finalize(context.Background(), "call_1", nil)

	if !sm.gotFlag {
		t.Error("extraction must run in the emergency shape")
	}
	if len(pub.published) != 2 || pub.published[1] != events.SubjectEscalation {
		t.Fatalf("expected completed + escalation events, got %v", pub.published)
	}
	sig, ok := pub.payloads[1].(events.EscalationSignal)
	if !ok {
		t.Fatalf("escalation payload has wrong type: %T", pub.payloads[1])
	}
	if sig.EmergencyType != extract.EmergencyBreakdown || sig.LoadNumber != "7891-B" {
		t.Errorf("escalation signal mismatch: %+v", sig)
	}
	if !not.posted || not.callID != "call_1" {
		t.Error("emergency must page the dispatcher channel")
	}
}

func TestFinalize_PlatformTranscriptPreferred(t *testing.T) {
	sessions := session.NewStore()
	c := sessions.Create("call_1", "Mike", "+14155550123", "7891-B", policy.Default(2))
	c.Lock()
	c.AppendTurn(session.SpeakerAgent, "local line")
	c.Unlock()

	platform := []session.Turn{
		{Speaker: session.SpeakerAgent, Text: "platform line one"},
		{Speaker: session.SpeakerDriver, Text: "platform line two"},
	}

	sm := &fakeSummarizer{}
	rec := &fakeRecorder{}
	f := NewFinalizer(sessions, sm, rec, nil, nil, discardLogger())
	f.Finalize(context.Background(), "call_1", platform)

	if len(rec.turns) != 2 || rec.turns[0].Text != "platform line one" {
		t.Errorf("platform transcript must replace the local log: %+v", rec.turns)
	}
}

func TestFinalize_ExtractionFailureStoresPartial(t *testing.T) {
	sessions := session.NewStore()
	sessions.Create("call_1", "Mike", "+14155550123", "7891-B", policy.Default(2))

	sm := &fakeSummarizer{
		sum: extract.Summary{CallOutcome: extract.OutcomeInTransit},
		err: errors.New("upstream 500"),
	}
	rec := &fakeRecorder{}
	f := NewFinalizer(sessions, sm, rec, nil, nil, discardLogger())
	f.Finalize(context.Background(), "call_1", nil)

	if rec.callID != "call_1" {
		t.Fatal("record must be written even when extraction fails")
	}
	if rec.sum.CallOutcome != extract.OutcomeInTransit {
		t.Errorf("partial summary must be persisted as-is: %+v", rec.sum)
	}
	if _, ok := sessions.Get("call_1"); ok {
		t.Error("session must be torn down regardless of extraction outcome")
	}
}

func TestFinalize_UnknownCallIgnored(t *testing.T) {
	sessions := session.NewStore()
	sm := &fakeSummarizer{}
	rec := &fakeRecorder{}

	f := NewFinalizer(sessions, sm, rec, nil, nil, discardLogger())
	f.Finalize(context.Background(), "call_ghost", nil)

	if rec.callID != "" {
		t.Error("unknown call_id must not produce a record")
	}
}

func TestFinalize_NilPublisherAndNotifierTolerated(t *testing.T) {
	sessions := session.NewStore()
	c := sessions.Create("call_1", "Mike", "+14155550123", "7891-B", policy.Default(2))
	c.Lock()
	c.EmergencyFlag = true
	c.Unlock()

	f := NewFinalizer(sessions, &fakeSummarizer{}, &fakeRecorder{}, nil, nil, discardLogger())
	// Must not panic.
	f.Finalize(context.Background(), "call_1", nil)
}
