package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/openai"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// Responder proposes the agent's next utterance given the conversation so
// far, and reports any structured fields it extracted from the driver's
// latest reply. It is a capability interface so tests can script it and the
// state machine stays deterministic.
type Responder interface {
	Propose(ctx context.Context, req ProposalRequest) (Proposal, error)
}

// ProposalRequest carries everything the reasoning service needs: the
// policy prompt, the full turn log, and the current phase as an explicit
// instruction hint.
type ProposalRequest struct {
	Prompt     string
	DriverName string
	LoadNumber string
	Phase      session.Phase
	Turns      []session.Turn
	Collected  map[string]string
}

// Proposal is the reasoning service's answer for one turn.
type Proposal struct {
	Reply     string
	Fields    map[string]string
	Emergency bool // the service chose the emergency protocol
	EndCall   bool // the service judges all required data collected
}

// historyWindow bounds how many prior turns are replayed to the reasoning
// service per request.
const historyWindow = 6

type openAIResponder struct {
	llm *openai.Client
}

// NewResponder returns the reasoning-service-backed Responder.
func NewResponder(llm *openai.Client) Responder {
	return &openAIResponder{llm: llm}
}

func (r *openAIResponder) Propose(ctx context.Context, req ProposalRequest) (Proposal, error) {
	messages := buildMessages(req)

	call, err := r.llm.CompleteWithTools(ctx, messages, conversationTools(), 0.3)
	if err != nil {
		return Proposal{}, fmt.Errorf("reasoning request: %w", err)
	}

	var args struct {
		ResponseText      string `json:"response_text"`
		DriverStatus      string `json:"driver_status"`
		CurrentLocation   string `json:"current_location"`
		ETA               string `json:"eta"`
		EmergencyType     string `json:"emergency_type"`
		EmergencyLocation string `json:"emergency_location"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return Proposal{}, fmt.Errorf("parse tool arguments: %w", err)
	}

	p := Proposal{
		Reply:     args.ResponseText,
		Emergency: call.Name == toolEmergency,
		EndCall:   call.Name == toolEndCall,
		Fields:    map[string]string{},
	}
	switch call.Name {
	case toolRoutine:
		p.Fields[session.FieldDriverStatus] = args.DriverStatus
		p.Fields[session.FieldCurrentLocation] = args.CurrentLocation
		p.Fields[session.FieldETA] = args.ETA
	case toolEmergency:
		p.Fields[session.FieldEmergencyType] = args.EmergencyType
		p.Fields[session.FieldEmergencyLocation] = args.EmergencyLocation
	}
	if p.Reply == "" {
		p.Reply = "I understand. Can you give me more details about your current status?"
	}
	return p, nil
}

func buildMessages(req ProposalRequest) []openai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nYou are speaking with %s about load %s.\n", req.Prompt, req.DriverName, req.LoadNumber)
	fmt.Fprintf(&b, "Conversation phase: %s. %s\n", req.Phase, phaseHint(req.Phase))

	if len(req.Collected) > 0 {
		b.WriteString("\nInformation already collected:\n")
		for k, v := range req.Collected {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
		b.WriteString("Do not ask again for information you already have.\n")
	}

	messages := []openai.Message{{Role: "system", Content: b.String()}}

	turns := req.Turns
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	for _, t := range turns {
		role := "user"
		if t.Speaker == session.SpeakerAgent {
			role = "assistant"
		}
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		messages = append(messages, openai.Message{Role: role, Content: t.Text})
	}
	return messages
}

func phaseHint(p session.Phase) string {
	switch p {
	case session.PhaseEmergencyHandling:
		return "An emergency has been detected. Acknowledge it, confirm the driver is safe, get the emergency type and exact location, and tell them a human dispatcher will call back. Do not return to routine questions."
	case session.PhaseClarifying:
		return "The last reply was unclear or unhelpful. Ask one short, direct clarifying question."
	case session.PhaseRoutineProbe:
		return "This is a routine check-in. Collect the driver's status, current location, and ETA, one question at a time."
	default:
		return "Open the conversation and ask for a status update."
	}
}

const (
	toolRoutine   = "handle_routine_checkin"
	toolEmergency = "handle_emergency_protocol"
	toolEndCall   = "end_call"
)

// conversationTools mirrors the three-way decision the agent makes every
// turn: keep probing, switch to the emergency protocol, or wrap up.
func conversationTools() []openai.Tool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return []openai.Tool{
		{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        toolRoutine,
				Description: "Continue the routine check-in: ask about location, ETA, or status, and extract anything the driver just provided.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"response_text":    str("Professional dispatcher reply asking for the next missing piece of information"),
						"driver_status":    str("Exactly one of: Driving, Delayed, Arrived — or empty if not stated"),
						"current_location": str("Specific location mentioned (highway, city, mile marker), or empty"),
						"eta":              str("Estimated arrival time if provided, or empty"),
					},
					"required": []string{"response_text"},
				},
			},
		},
		{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        toolEmergency,
				Description: "EMERGENCY DETECTED: acknowledge, check the driver is safe, and capture the emergency type and location.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"response_text":      str("Calm emergency reply: acknowledge, ask if safe, get the exact location"),
						"emergency_type":     str("Exactly one of: Accident, Breakdown, Medical, Other — or empty if not yet clear"),
						"emergency_location": str("Specific location of the emergency, or empty"),
					},
					"required": []string{"response_text"},
				},
			},
		},
		{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        toolEndCall,
				Description: "All required information has been collected; end the call.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"response_text": str("Short farewell"),
					},
					"required": []string{"response_text"},
				},
			},
		},
	}
}
