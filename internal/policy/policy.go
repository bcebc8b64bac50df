// Package policy turns a stored agent configuration into the immutable
// per-call scenario policy: prompt text, emergency trigger phrases, retry
// thresholds, and the fixed closing statements.
package policy

import (
	"fmt"
	"strings"
)

// ClosingCause selects which fixed closing statement ends the call.
type ClosingCause string

const (
	CauseNone          ClosingCause = ""
	CauseRoutine       ClosingCause = "routine_complete"
	CauseUncooperative ClosingCause = "uncooperative"
	CauseGarbled       ClosingCause = "garbled"
	CauseSilence       ClosingCause = "silence"
	CauseEmergency     ClosingCause = "emergency"
)

// defaultTriggers is the built-in minimum emergency set. An administrator
// can extend the trigger list but can never disable detection entirely.
var defaultTriggers = []string{
	"accident",
	"crash",
	"breakdown",
	"engine trouble",
	"medical",
	"injured",
	"blowout",
	"flat tire",
}

const (
	defaultOpening = "Hi %s, this is Dispatch calling about load %s. Can you give me an update on your status?"

	closingRoutine       = "Thanks for the update, drive safely. Dispatch out."
	closingUncooperative = "No problem, I'll have dispatch follow up with you directly. Drive safely."
	closingGarbled       = "I'm having trouble hearing you, I'll try again later. Drive safely."
	closingEmergency     = "Understood. A human dispatcher has been notified and will call you back right away. Stay safe."
)

// Config is the stored agent configuration a policy is derived from.
// Prompt text is administrator-owned and passed through verbatim.
type Config struct {
	Name             string
	Prompt           string
	TriggerPhrases   []string
	MaxUncooperative int
	MaxGarbled       int
	MaxSilence       int
}

// Policy is immutable for the lifetime of a call. All concurrent calls using
// the same agent configuration share one value read-only.
type Policy struct {
	Name             string
	Prompt           string
	TriggerPhrases   []string
	MaxUncooperative int
	MaxGarbled       int
	MaxSilence       int
	OpeningTemplate  string
}

// FromConfig validates a stored configuration and produces a policy.
// An empty trigger list falls back to the built-in minimum set; malformed
// prompt text is never rejected here.
func FromConfig(cfg Config) Policy {
	triggers := make([]string, 0, len(cfg.TriggerPhrases))
	for _, t := range cfg.TriggerPhrases {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			triggers = append(triggers, t)
		}
	}
	if len(triggers) == 0 {
		triggers = append(triggers, defaultTriggers...)
	}

	p := Policy{
		Name:             cfg.Name,
		Prompt:           cfg.Prompt,
		TriggerPhrases:   triggers,
		MaxUncooperative: cfg.MaxUncooperative,
		MaxGarbled:       cfg.MaxGarbled,
		MaxSilence:       cfg.MaxSilence,
		OpeningTemplate:  defaultOpening,
	}
	if p.MaxUncooperative <= 0 {
		p.MaxUncooperative = 2
	}
	if p.MaxGarbled <= 0 {
		p.MaxGarbled = 2
	}
	if p.MaxSilence <= 0 {
		p.MaxSilence = 2
	}
	return p
}

// Default returns the policy used when no stored configuration exists.
func Default(maxRetries int) Policy {
	return FromConfig(Config{
		Name:             "default",
		Prompt:           "You are a professional logistics dispatcher checking in with a truck driver about their load.",
		MaxUncooperative: maxRetries,
		MaxGarbled:       maxRetries,
		MaxSilence:       maxRetries,
	})
}

// MatchTrigger reports whether the utterance contains an emergency trigger
// phrase, using case-insensitive substring matching. Triggers are checked in
// list order; the first hit wins.
func (p Policy) MatchTrigger(utterance string) (string, bool) {
	lowered := strings.ToLower(utterance)
	for _, t := range p.TriggerPhrases {
		if strings.Contains(lowered, t) {
			return t, true
		}
	}
	return "", false
}

// OpeningLine builds the first agent utterance from the call metadata.
func (p Policy) OpeningLine(driverName, loadNumber string) string {
	if driverName == "" {
		driverName = "there"
	}
	if loadNumber == "" {
		loadNumber = "your load"
	}
	return fmt.Sprintf(p.OpeningTemplate, driverName, loadNumber)
}

// ClosingFor returns the fixed closing statement for a termination cause.
// These are never generated: the orchestrator always overrides the reasoning
// service's proposal with one of them when the call reaches Closing.
func (p Policy) ClosingFor(cause ClosingCause) string {
	switch cause {
	case CauseEmergency:
		return closingEmergency
	case CauseUncooperative:
		return closingUncooperative
	case CauseGarbled, CauseSilence:
		return closingGarbled
	default:
		return closingRoutine
	}
}
