package dialog

import (
	"context"
	"log/slog"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/events"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/extract"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// Summarizer produces the structured summary for a finished call.
type Summarizer interface {
	Extract(ctx context.Context, turns []session.Turn, emergencyFlag bool) (extract.Summary, error)
}

// Recorder persists the finished call as one logical record.
type Recorder interface {
	FinalizeCall(ctx context.Context, callID string, transcript []session.Turn, sum extract.Summary) error
}

// Publisher announces call completion and escalation on the event bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier pushes flagged emergencies to a human dispatcher channel.
type Notifier interface {
	PostEscalation(ctx context.Context, callID string, sum extract.Summary, driverName, loadNumber string) error
}

// Finalizer runs the end-of-call pipeline: terminal phase, extraction,
// persistence, events, escalation, session teardown.
type Finalizer struct {
	sessions   *session.Store
	summarizer Summarizer
	recorder   Recorder
	publisher  Publisher
	notifier   Notifier
	logger     *slog.Logger
}

// NewFinalizer wires the end-of-call pipeline. publisher and notifier may be
// nil; the pipeline then skips those steps.
func NewFinalizer(sessions *session.Store, summarizer Summarizer, recorder Recorder, publisher Publisher, notifier Notifier, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		sessions:   sessions,
		summarizer: summarizer,
		recorder:   recorder,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger,
	}
}

// Finalize completes a call. platformTranscript, when the telephony
// platform supplied one, replaces the locally accumulated turn log;
// otherwise the session's own log is used. Unknown call_ids are logged and
// ignored so a duplicate end event cannot disturb anything.
func (f *Finalizer) Finalize(ctx context.Context, callID string, platformTranscript []session.Turn) {
	c, ok := f.sessions.Get(callID)
	if !ok {
		f.logger.Info("end event for unknown call, ignoring", "call_id", callID)
		return
	}

	c.Lock()
	c.Phase = session.PhaseEnded
	turns := c.TurnsCopy()
	emergency := c.EmergencyFlag
	driverName := c.DriverName
	loadNumber := c.LoadNumber
	c.Unlock()

	if len(platformTranscript) > 0 {
		turns = platformTranscript
	}

	sum, err := f.summarizer.Extract(ctx, turns, emergency)
	if err != nil {
		// Partial or empty summaries are stored rather than failing the call.
		f.logger.Error("extraction failed, storing partial summary", "call_id", callID, "error", err)
	}

	if err := f.recorder.FinalizeCall(ctx, callID, turns, sum); err != nil {
		f.logger.Error("failed to persist call record", "call_id", callID, "error", err)
	}

	if f.publisher != nil {
		if err := f.publisher.Publish(events.SubjectCallCompleted, map[string]any{
			"call_id":     callID,
			"driver_name": driverName,
			"load_number": loadNumber,
			"emergency":   emergency,
			"summary":     sum,
		}); err != nil {
			f.logger.Error("failed to publish call completed", "call_id", callID, "error", err)
		}

		if emergency {
			if err := f.publisher.Publish(events.SubjectEscalation, events.EscalationSignal{
				CallID:            callID,
				DriverName:        driverName,
				LoadNumber:        loadNumber,
				EmergencyType:     sum.EmergencyType,
				EmergencyLocation: sum.EmergencyLocation,
			}); err != nil {
				f.logger.Error("failed to publish escalation", "call_id", callID, "error", err)
			}
		}
	}

	if emergency && f.notifier != nil {
		if err := f.notifier.PostEscalation(ctx, callID, sum, driverName, loadNumber); err != nil {
			f.logger.Error("failed to notify dispatcher channel", "call_id", callID, "error", err)
		}
	}

	f.sessions.Delete(callID)
	f.logger.Info("call finalized",
		"call_id", callID,
		"turns", len(turns),
		"emergency", emergency,
		"outcome", sum.CallOutcome,
	)
}
