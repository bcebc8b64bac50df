// Package api exposes the HTTP surface: call origination and history,
// agent configuration, the telephony lifecycle webhook, and the custom-LLM
// websocket the platform streams live turns over.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/dialog"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/retell"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/store"
)

// Dialog is the live-turn surface the websocket endpoint drives.
type Dialog interface {
	HandleUtterance(ctx context.Context, callID, driverText string, confidence float64) (dialog.TurnResult, error)
	MarkEnded(callID string)
}

// CallFinalizer runs the end-of-call pipeline once the platform is done
// with a call.
type CallFinalizer interface {
	Finalize(ctx context.Context, callID string, platformTranscript []session.Turn)
}

// CallStore is the persisted call-record surface the read endpoints use.
type CallStore interface {
	CreateCall(ctx context.Context, callID, driverName, phoneNumber, loadNumber string) error
	GetCall(ctx context.Context, callID string) (store.CallRecord, error)
	ListCalls(ctx context.Context, limit int) ([]store.CallRecord, error)
}

// ConfigStore is the persisted agent-configuration surface.
type ConfigStore interface {
	ActiveAgentConfig(ctx context.Context) (store.AgentConfig, error)
	SaveAgentConfig(ctx context.Context, cfg store.AgentConfig) (store.AgentConfig, error)
	ListAgentConfigs(ctx context.Context) ([]store.AgentConfig, error)
}

// Telephony originates calls on the platform.
type Telephony interface {
	CreatePhoneCall(ctx context.Context, agentID, fromNumber, toNumber string, metadata map[string]string) (string, error)
	CreateWebCall(ctx context.Context, agentID string, metadata map[string]string) (*retell.WebCall, error)
}

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Sessions  *session.Store
	Dialog    Dialog
	Finalizer CallFinalizer
	Calls     CallStore
	Configs   ConfigStore
	Telephony Telephony

	// Fallback is used when no agent configuration has been saved yet.
	Fallback policy.Policy

	AgentID    string
	FromNumber string
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	logger *slog.Logger
}

func NewServer(port int, deps Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
		logger: logger,
	}

	router.Get("/health", s.health)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/calls/trigger", s.triggerCall)
		r.Post("/calls/test", s.testCall)
		r.Get("/calls", s.listCalls)
		r.Get("/calls/{call_id}", s.getCall)
		r.Post("/calls/webhook", s.callWebhook)

		r.Get("/agent-config", s.getAgentConfig)
		r.Post("/agent-config", s.saveAgentConfig)
		r.Get("/agent-configs", s.listAgentConfigs)
	})

	router.Get("/llm-websocket/{call_id}", s.llmWebsocket)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// activePolicy resolves the policy for new calls: the stored active agent
// configuration when one exists, the built-in fallback otherwise.
func (s *Server) activePolicy(ctx context.Context) policy.Policy {
	if s.deps.Configs == nil {
		return s.deps.Fallback
	}
	cfg, err := s.deps.Configs.ActiveAgentConfig(ctx)
	if err != nil {
		return s.deps.Fallback
	}
	return policy.FromConfig(cfg.PolicyConfig())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
