package dialog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// ErrCallEnded is returned for utterances arriving after a call reached its
// terminal phase. Callers treat it as a no-op.
var ErrCallEnded = errors.New("call already ended")

// minConfidence is the speech-to-text confidence below which an utterance
// is treated as garbled audio.
const minConfidence = 0.5

// TurnResult is the orchestrator's answer for one driver utterance: the
// agent's next line, and whether the platform should hang up after
// speaking it.
type TurnResult struct {
	Reply   string
	EndCall bool
}

// Orchestrator drives one turn of a live call at a time. The per-call lock
// in the session store guarantees in-order processing for a call_id without
// blocking other calls.
type Orchestrator struct {
	sessions  *session.Store
	responder Responder
	fallback  policy.Policy
	logger    *slog.Logger
}

func NewOrchestrator(sessions *session.Store, responder Responder, fallback policy.Policy, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		responder: responder,
		fallback:  fallback,
		logger:    logger,
	}
}

// HandleUtterance processes one inbound driver utterance and returns the
// agent's response, or a terminate decision once the call is over.
func (o *Orchestrator) HandleUtterance(ctx context.Context, callID, driverText string, confidence float64) (TurnResult, error) {
	c, ok := o.sessions.Get(callID)
	if !ok {
		// First inbound event for an unregistered call_id: open a context
		// with the fallback policy rather than dropping the live call.
		o.logger.Warn("utterance for unregistered call, creating context", "call_id", callID)
		c = o.sessions.Create(callID, "", "", "", o.fallback)
	}

	c.Lock()
	defer c.Unlock()

	if c.Phase == session.PhaseEnded {
		o.logger.Info("utterance after call end, ignoring", "call_id", callID)
		return TurnResult{}, ErrCallEnded
	}

	c.AppendTurn(session.SpeakerDriver, driverText)

	sig := ClassifySignal(c.Policy, driverText, confidence < minConfidence)
	AdvanceOnUtterance(c, sig)

	o.logger.Debug("turn advanced",
		"call_id", callID,
		"phase", string(c.Phase),
		"emergency", c.EmergencyFlag,
		"garbled", sig.Garbled,
		"silent", sig.Silent,
	)

	// Retry exhaustion routed us straight to Closing: no reasoning call.
	if c.Phase == session.PhaseClosing {
		return o.deliverClosing(c), nil
	}

	prop, err := o.responder.Propose(ctx, ProposalRequest{
		Prompt:     c.Policy.Prompt,
		DriverName: c.DriverName,
		LoadNumber: c.LoadNumber,
		Phase:      c.Phase,
		Turns:      c.TurnsCopy(),
		Collected:  c.Fields,
	})
	if err != nil {
		// A reasoning outage degrades to the same retry-exhaustion path as
		// noisy audio instead of hanging the call.
		o.logger.Error("reasoning service unavailable", "call_id", callID, "error", err)
		c.FailedTurns++
		if c.FailedTurns > c.Policy.MaxGarbled {
			toClosing(c, policy.CauseGarbled)
			return o.deliverClosing(c), nil
		}
		toClarifying(c, policy.CauseGarbled)
		reply := "Sorry, could you repeat that?"
		c.AppendTurn(session.SpeakerAgent, reply)
		return TurnResult{Reply: reply}, nil
	}

	c.FailedTurns = 0
	if prop.Emergency {
		RecordEmergency(c)
	}
	c.MergeFields(prop.Fields)
	AdvanceOnFields(c)

	if prop.EndCall && c.Phase != session.PhaseClosing {
		cause := policy.CauseRoutine
		if c.EmergencyFlag {
			cause = policy.CauseEmergency
		}
		toClosing(c, cause)
	}

	// In Closing the policy's fixed statement always replaces the
	// generated reply, so termination cannot be talked past.
	if c.Phase == session.PhaseClosing {
		return o.deliverClosing(c), nil
	}

	c.AppendTurn(session.SpeakerAgent, prop.Reply)
	return TurnResult{Reply: prop.Reply}, nil
}

// MarkEnded transitions a call straight to Ended, used when the platform
// reports a dropped call. Further inbound events are discarded.
func (o *Orchestrator) MarkEnded(callID string) {
	c, ok := o.sessions.Get(callID)
	if !ok {
		return
	}
	c.Lock()
	c.Phase = session.PhaseEnded
	c.Unlock()
}

func (o *Orchestrator) deliverClosing(c *session.Call) TurnResult {
	reply := c.Policy.ClosingFor(c.ClosingCause)
	c.AppendTurn(session.SpeakerAgent, reply)
	c.Phase = session.PhaseEnded
	o.logger.Info("call closing",
		"call_id", c.CallID,
		"cause", string(c.ClosingCause),
		"emergency", c.EmergencyFlag,
	)
	return TurnResult{Reply: reply, EndCall: true}
}
