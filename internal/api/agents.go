package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/store"
)

// getAgentConfig handles GET /api/v1/agent-config: the active configuration.
func (s *Server) getAgentConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Configs.ActiveAgentConfig(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no agent configuration saved, using built-in defaults")
		return
	}
	if err != nil {
		s.logger.Error("failed to load agent config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load agent config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// saveAgentConfig handles POST /api/v1/agent-config: upsert the active
// configuration. New calls pick it up at origination; calls already in
// flight keep the policy they started with.
func (s *Server) saveAgentConfig(w http.ResponseWriter, r *http.Request) {
	var cfg store.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if cfg.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	saved, err := s.deps.Configs.SaveAgentConfig(r.Context(), cfg)
	if err != nil {
		s.logger.Error("failed to save agent config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save agent config")
		return
	}

	s.logger.Info("agent config saved", "id", saved.ID, "name", saved.Name)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) listAgentConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.deps.Configs.ListAgentConfigs(r.Context())
	if err != nil {
		s.logger.Error("failed to list agent configs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list agent configs")
		return
	}
	if configs == nil {
		configs = []store.AgentConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configs": configs,
		"count":   len(configs),
	})
}
