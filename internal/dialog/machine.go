// Package dialog implements the turn state machine and the orchestrator
// that drives one live call: phase transitions, retry bounding, emergency
// preemption, and the reasoning-service loop.
package dialog

import (
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// Signal is the classified view of one inbound driver utterance.
type Signal struct {
	Text           string
	Silent         bool
	Garbled        bool // low speech-to-text confidence from the transport
	EmergencyMatch bool // trigger phrase present
}

// ClassifySignal builds the Signal for an utterance using the call's policy.
func ClassifySignal(pol policy.Policy, text string, garbled bool) Signal {
	sig := Signal{Text: text, Garbled: garbled, Silent: isSilent(text)}
	_, sig.EmergencyMatch = pol.MatchTrigger(text)
	return sig
}

// AdvanceOnUtterance applies the transitions that depend only on the
// utterance itself, before the reasoning service is consulted. Emergency
// detection runs first and preempts everything, including an in-progress
// clarifying cycle. The caller must hold the call's lock.
func AdvanceOnUtterance(c *session.Call, sig Signal) {
	if c.Phase == session.PhaseEnded {
		return
	}

	// Once the call is wrapping up only the emergency flag can still move:
	// a trigger phrase upgrades the closing statement but the call ends.
	if c.Phase == session.PhaseClosing {
		if sig.EmergencyMatch && !c.EmergencyFlag {
			c.EmergencyFlag = true
			c.ClosingCause = policy.CauseEmergency
		}
		return
	}

	// Emergency preempts all other pending transitions and is one-way:
	// the flag never resets, and the call never returns to routine probing.
	if sig.EmergencyMatch && !c.EmergencyFlag {
		c.EmergencyFlag = true
	}
	if c.EmergencyFlag {
		c.Phase = session.PhaseEmergencyHandling
		return
	}

	// Any driver reply to the open-ended status question moves the call out
	// of Opening; what kind of reply it was is judged by the probe rules.
	if c.Phase == session.PhaseOpening {
		c.Phase = session.PhaseRoutineProbe
	}

	switch {
	case sig.Silent:
		c.SilenceRetries++
		if c.SilenceRetries > c.Policy.MaxSilence {
			toClosing(c, policy.CauseSilence)
			return
		}
		toClarifying(c, policy.CauseSilence)

	case sig.Garbled:
		c.GarbledRetries++
		if c.GarbledRetries > c.Policy.MaxGarbled {
			toClosing(c, policy.CauseGarbled)
			return
		}
		toClarifying(c, policy.CauseGarbled)

	case isSubstantive(sig.Text):
		if c.Phase == session.PhaseClarifying {
			// A substantive answer ends the clarifying cycle and resets
			// only the counter that started it.
			switch c.ClarifyCause {
			case policy.CauseUncooperative:
				c.UncoopCount = 0
			case policy.CauseGarbled:
				c.GarbledRetries = 0
			case policy.CauseSilence:
				c.SilenceRetries = 0
			}
			c.ClarifyCause = policy.CauseNone
			c.Phase = session.PhaseRoutineProbe
		}

	default: // clear audio, but a non-answer
		c.UncoopCount++
		if c.UncoopCount > c.Policy.MaxUncooperative {
			toClosing(c, policy.CauseUncooperative)
			return
		}
		toClarifying(c, policy.CauseUncooperative)
	}
}

// AdvanceOnFields applies the completion transitions after the turn's field
// extraction has been merged, so a turn that supplies the last missing field
// closes within that same turn. The caller must hold the call's lock.
func AdvanceOnFields(c *session.Call) {
	switch c.Phase {
	case session.PhaseRoutineProbe:
		if c.HasRoutineFields() {
			toClosing(c, policy.CauseRoutine)
		}
	case session.PhaseEmergencyHandling:
		// Speed over completeness: stop probing the moment type and
		// location are both captured.
		if c.HasEmergencyFields() {
			toClosing(c, policy.CauseEmergency)
		}
	}
}

// RecordEmergency forces the emergency branch from a non-keyword detection
// (the reasoning service chose the emergency protocol). Same monotonic rule
// as trigger matching.
func RecordEmergency(c *session.Call) {
	if c.Phase == session.PhaseEnded {
		return
	}
	c.EmergencyFlag = true
	if c.Phase != session.PhaseClosing {
		c.Phase = session.PhaseEmergencyHandling
	}
}

func toClarifying(c *session.Call, cause policy.ClosingCause) {
	c.ClarifyCause = cause
	c.Phase = session.PhaseClarifying
}

func toClosing(c *session.Call, cause policy.ClosingCause) {
	c.ClosingCause = cause
	c.Phase = session.PhaseClosing
}
