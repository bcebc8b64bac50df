// Package extract produces the closed-vocabulary structured summary for a
// finished call. The shape is chosen by the emergency flag recorded live
// during the call, never re-derived from transcript text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// Closed vocabularies. A value outside its set is treated as missing, not
// stored verbatim.
const (
	OutcomeInTransit = "In-Transit Update"
	OutcomeArrival   = "Arrival Confirmation"
	OutcomeEmergency = "Emergency Detected"

	StatusDriving = "Driving"
	StatusDelayed = "Delayed"
	StatusArrived = "Arrived"

	EmergencyAccident  = "Accident"
	EmergencyBreakdown = "Breakdown"
	EmergencyMedical   = "Medical"
	EmergencyOther     = "Other"

	EscalationFlagged = "Escalation Flagged"
)

// Summary is the tagged union over the two call shapes. Exactly one shape
// is populated per call; fields outside the active shape are absent so
// consumers can tell "not collected" from "not applicable".
type Summary struct {
	CallOutcome       string `json:"call_outcome,omitempty"`
	DriverStatus      string `json:"driver_status,omitempty"`
	CurrentLocation   string `json:"current_location,omitempty"`
	ETA               string `json:"eta,omitempty"`
	EmergencyType     string `json:"emergency_type,omitempty"`
	EmergencyLocation string `json:"emergency_location,omitempty"`
	EscalationStatus  string `json:"escalation_status,omitempty"`
}

// IsEmergency reports which shape the summary carries.
func (s Summary) IsEmergency() bool {
	return s.CallOutcome == OutcomeEmergency
}

// FieldSpec describes one constrained extraction request. Allowed is nil
// for free-text fields.
type FieldSpec struct {
	Name     string
	Allowed  []string
	Question string
}

// Classifier answers one constrained extraction question against a
// transcript. Implementations return "" when the field cannot be
// determined. It is a capability interface so the extractor itself stays
// deterministic and unit-testable.
type Classifier interface {
	Classify(ctx context.Context, transcript string, spec FieldSpec) (string, error)
}

type Extractor struct {
	classifier Classifier
	logger     *slog.Logger
}

func New(classifier Classifier, logger *slog.Logger) *Extractor {
	return &Extractor{classifier: classifier, logger: logger}
}

// Extract runs the per-field constrained extraction over the transcript.
// Fields that cannot be determined are omitted; a partial summary is never
// an error. Enum fields are validated against their closed sets.
func (e *Extractor) Extract(ctx context.Context, turns []session.Turn, emergencyFlag bool) (Summary, error) {
	transcript := FormatTranscript(turns)

	if emergencyFlag {
		return e.extractEmergency(ctx, transcript)
	}
	return e.extractRoutine(ctx, transcript)
}

func (e *Extractor) extractRoutine(ctx context.Context, transcript string) (Summary, error) {
	sum := Summary{}

	outcome, err := e.field(ctx, transcript, FieldSpec{
		Name:     "call_outcome",
		Allowed:  []string{OutcomeInTransit, OutcomeArrival},
		Question: "Is this call an in-transit update or an arrival confirmation?",
	})
	if err != nil {
		return sum, err
	}
	sum.CallOutcome = outcome

	status, err := e.field(ctx, transcript, FieldSpec{
		Name:     "driver_status",
		Allowed:  []string{StatusDriving, StatusDelayed, StatusArrived},
		Question: "What is the driver's current status?",
	})
	if err != nil {
		return sum, err
	}
	sum.DriverStatus = status

	loc, err := e.field(ctx, transcript, FieldSpec{
		Name:     "current_location",
		Question: "What current location did the driver state? Answer with the location only.",
	})
	if err != nil {
		return sum, err
	}
	sum.CurrentLocation = loc

	eta, err := e.field(ctx, transcript, FieldSpec{
		Name:     "eta",
		Question: "What estimated arrival time did the driver give? Answer with the time only.",
	})
	if err != nil {
		return sum, err
	}
	sum.ETA = eta

	return sum, nil
}

func (e *Extractor) extractEmergency(ctx context.Context, transcript string) (Summary, error) {
	// Outcome and escalation status are fixed for the emergency shape.
	sum := Summary{
		CallOutcome:      OutcomeEmergency,
		EscalationStatus: EscalationFlagged,
	}

	typ, err := e.field(ctx, transcript, FieldSpec{
		Name:     "emergency_type",
		Allowed:  []string{EmergencyAccident, EmergencyBreakdown, EmergencyMedical, EmergencyOther},
		Question: "What kind of emergency did the driver report?",
	})
	if err != nil {
		return sum, err
	}
	sum.EmergencyType = typ

	loc, err := e.field(ctx, transcript, FieldSpec{
		Name:     "emergency_location",
		Question: "Where did the emergency happen? Answer with the location only.",
	})
	if err != nil {
		return sum, err
	}
	sum.EmergencyLocation = loc

	return sum, nil
}

// field runs one classification and validates enum conformance. A
// classifier failure or an out-of-vocabulary value yields an absent field,
// never a fabricated one. Only context cancellation aborts the whole
// extraction.
func (e *Extractor) field(ctx context.Context, transcript string, spec FieldSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("extract %s: %w", spec.Name, err)
	}

	val, err := e.classifier.Classify(ctx, transcript, spec)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("extract %s: %w", spec.Name, ctx.Err())
		}
		e.logger.Warn("field classification failed, omitting", "field", spec.Name, "error", err)
		return "", nil
	}

	val = strings.TrimSpace(val)
	if val == "" {
		return "", nil
	}
	if spec.Allowed != nil {
		canonical, ok := matchAllowed(val, spec.Allowed)
		if !ok {
			e.logger.Warn("value outside closed vocabulary, omitting", "field", spec.Name, "value", val)
			return "", nil
		}
		return canonical, nil
	}
	return val, nil
}

// matchAllowed maps a classifier answer onto its canonical enum value,
// tolerating case differences only.
func matchAllowed(val string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if strings.EqualFold(val, a) {
			return a, true
		}
	}
	return "", false
}

// FormatTranscript renders the turn log as speaker-labelled lines for
// classification prompts.
func FormatTranscript(turns []session.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "Driver"
		if t.Speaker == session.SpeakerAgent {
			label = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, t.Text)
	}
	return b.String()
}
