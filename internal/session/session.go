// Package session holds the per-call mutable state for in-progress calls.
// Each call's context is owned by exactly one logical sequence of turns; the
// store only guarantees lookup and per-call exclusion.
package session

import (
	"sync"
	"time"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
)

// Phase is the current node of the turn state machine for a call.
type Phase string

const (
	PhaseOpening           Phase = "opening"
	PhaseRoutineProbe      Phase = "routine_probe"
	PhaseEmergencyHandling Phase = "emergency_handling"
	PhaseClarifying        Phase = "clarifying"
	PhaseClosing           Phase = "closing"
	PhaseEnded             Phase = "ended"
)

type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerDriver Speaker = "driver"
)

// Turn is one utterance by either side, in transcript order.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Field names collected during the conversation.
const (
	FieldDriverStatus      = "driver_status"
	FieldCurrentLocation   = "current_location"
	FieldETA               = "eta"
	FieldEmergencyType     = "emergency_type"
	FieldEmergencyLocation = "emergency_location"
)

// Call is the context for one active call. Callers must hold Lock for the
// duration of a turn; utterances for one call are processed strictly in
// order, while different calls proceed in parallel.
type Call struct {
	mu sync.Mutex

	CallID      string
	DriverName  string
	PhoneNumber string
	LoadNumber  string
	Policy      policy.Policy

	Phase          Phase
	SilenceRetries int
	GarbledRetries int
	UncoopCount    int

	// FailedTurns counts consecutive reasoning-service failures. Unlike the
	// audio counters it is never reset by the driver's answers, only by a
	// successful turn.
	FailedTurns int

	// EmergencyFlag is monotonic: once set it is never cleared, even if the
	// driver later downplays the event.
	EmergencyFlag bool

	// ClarifyCause records which counter sent us into Clarifying, so a
	// substantive answer resets only that counter.
	ClarifyCause policy.ClosingCause

	// ClosingCause selects the fixed closing statement once the call
	// reaches Closing.
	ClosingCause policy.ClosingCause

	Turns  []Turn
	Fields map[string]string

	StartedAt time.Time
}

func (c *Call) Lock()   { c.mu.Lock() }
func (c *Call) Unlock() { c.mu.Unlock() }

// AppendTurn appends to the turn log. The log is append-only; insertion
// order is the transcript order.
func (c *Call) AppendTurn(speaker Speaker, text string) {
	c.Turns = append(c.Turns, Turn{Speaker: speaker, Text: text, Timestamp: time.Now().UTC()})
}

// MergeFields folds newly extracted values into the collected set. Empty
// values never overwrite; latest non-empty value wins.
func (c *Call) MergeFields(fields map[string]string) {
	for k, v := range fields {
		if v != "" {
			c.Fields[k] = v
		}
	}
}

// HasRoutineFields reports whether status, location, and ETA have all been
// verbally confirmed.
func (c *Call) HasRoutineFields() bool {
	return c.Fields[FieldDriverStatus] != "" &&
		c.Fields[FieldCurrentLocation] != "" &&
		c.Fields[FieldETA] != ""
}

// HasEmergencyFields reports whether emergency type and location are both
// captured. The agent stops probing as soon as both are present.
func (c *Call) HasEmergencyFields() bool {
	return c.Fields[FieldEmergencyType] != "" &&
		c.Fields[FieldEmergencyLocation] != ""
}

// TurnsCopy returns a snapshot of the turn log.
func (c *Call) TurnsCopy() []Turn {
	out := make([]Turn, len(c.Turns))
	copy(out, c.Turns)
	return out
}

// Store is the session map keyed by call_id. It is shared by the webhook,
// websocket, and trigger paths; all mutation of a Call happens under the
// Call's own lock, not the store's.
type Store struct {
	mu    sync.RWMutex
	calls map[string]*Call
}

func NewStore() *Store {
	return &Store{calls: make(map[string]*Call)}
}

// Create registers a new call context in Opening phase. If the call_id is
// already registered the existing context is returned unchanged.
func (s *Store) Create(callID, driverName, phoneNumber, loadNumber string, pol policy.Policy) *Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calls[callID]; ok {
		return c
	}
	c := &Call{
		CallID:      callID,
		DriverName:  driverName,
		PhoneNumber: phoneNumber,
		LoadNumber:  loadNumber,
		Policy:      pol,
		Phase:       PhaseOpening,
		Fields:      make(map[string]string),
		StartedAt:   time.Now().UTC(),
	}
	s.calls[callID] = c
	return c
}

func (s *Store) Get(callID string) (*Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[callID]
	return c, ok
}

func (s *Store) Delete(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, callID)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.calls)
}
