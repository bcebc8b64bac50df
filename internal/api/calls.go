package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/store"
)

// TriggerRequest originates an outbound check-in call to one driver.
type TriggerRequest struct {
	DriverName  string `json:"driver_name"`
	PhoneNumber string `json:"phone_number"`
	LoadNumber  string `json:"load_number"`
}

// triggerCall handles POST /api/v1/calls/trigger. Origination is the one
// step whose failure reaches the caller: everything after the platform
// accepts the call degrades internally instead.
func (s *Server) triggerCall(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DriverName == "" || req.PhoneNumber == "" || req.LoadNumber == "" {
		writeError(w, http.StatusBadRequest, "driver_name, phone_number and load_number are required")
		return
	}

	callID, err := s.deps.Telephony.CreatePhoneCall(r.Context(), s.deps.AgentID, s.deps.FromNumber, req.PhoneNumber, map[string]string{
		"driver_name": req.DriverName,
		"load_number": req.LoadNumber,
	})
	if err != nil {
		s.logger.Error("call origination failed", "driver", req.DriverName, "error", err)
		writeError(w, http.StatusBadGateway, "failed to originate call: "+err.Error())
		return
	}

	s.registerCall(r, callID, req.DriverName, req.PhoneNumber, req.LoadNumber)

	writeJSON(w, http.StatusCreated, map[string]string{
		"call_id": callID,
		"status":  store.StatusRegistered,
	})
}

// testCall handles POST /api/v1/calls/test: a browser-based web call for
// exercising the agent without dialing a phone.
func (s *Server) testCall(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.DriverName == "" || req.LoadNumber == "" {
		writeError(w, http.StatusBadRequest, "driver_name and load_number are required")
		return
	}

	web, err := s.deps.Telephony.CreateWebCall(r.Context(), s.deps.AgentID, map[string]string{
		"driver_name": req.DriverName,
		"load_number": req.LoadNumber,
	})
	if err != nil {
		s.logger.Error("web call creation failed", "driver", req.DriverName, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create web call: "+err.Error())
		return
	}

	s.registerCall(r, web.CallID, req.DriverName, "", req.LoadNumber)

	writeJSON(w, http.StatusCreated, map[string]string{
		"call_id":      web.CallID,
		"access_token": web.AccessToken,
	})
}

// registerCall opens the in-memory call context and writes the registration
// row. The persistence write is best-effort: the live call must not depend
// on the database.
func (s *Server) registerCall(r *http.Request, callID, driverName, phoneNumber, loadNumber string) {
	pol := s.activePolicy(r.Context())
	s.deps.Sessions.Create(callID, driverName, phoneNumber, loadNumber, pol)

	if s.deps.Calls != nil {
		if err := s.deps.Calls.CreateCall(r.Context(), callID, driverName, phoneNumber, loadNumber); err != nil {
			s.logger.Error("failed to persist call registration", "call_id", callID, "error", err)
		}
	}
}

func (s *Server) listCalls(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}

	calls, err := s.deps.Calls.ListCalls(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list calls", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls": calls,
		"count": len(calls),
	})
}

func (s *Server) getCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "call_id")

	rec, err := s.deps.Calls.GetCall(r.Context(), callID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load call", "call_id", callID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load call")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// webhookEvent is the platform's call lifecycle notification.
type webhookEvent struct {
	Event string `json:"event"`
	Call  struct {
		CallID     string            `json:"call_id"`
		Transcript []transcriptEntry `json:"transcript_object"`
	} `json:"call"`
}

// callWebhook handles POST /api/v1/calls/webhook. call_ended runs the
// finalization pipeline; every event is acked with a neutral 200 so the
// platform never retries, including events for call_ids we never issued.
func (s *Server) callWebhook(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.logger.Info("lifecycle webhook", "event", ev.Event, "call_id", ev.Call.CallID)

	switch ev.Event {
	case "call_ended", "call_analyzed":
		s.deps.Dialog.MarkEnded(ev.Call.CallID)
		s.deps.Finalizer.Finalize(r.Context(), ev.Call.CallID, toTurns(ev.Call.Transcript))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// toTurns converts the platform transcript roles to our speaker model.
func toTurns(entries []transcriptEntry) []session.Turn {
	if len(entries) == 0 {
		return nil
	}
	turns := make([]session.Turn, 0, len(entries))
	for _, e := range entries {
		speaker := session.SpeakerDriver
		if e.Role == "agent" {
			speaker = session.SpeakerAgent
		}
		turns = append(turns, session.Turn{Speaker: speaker, Text: e.Content})
	}
	return turns
}
