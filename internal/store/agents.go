package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
)

// AgentConfig is an administrator-owned dialogue configuration: the system
// prompt, the emergency trigger vocabulary, and the retry bounds. Exactly
// one configuration is active at a time.
type AgentConfig struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Prompt           string    `json:"prompt"`
	TriggerPhrases   []string  `json:"emergency_triggers"`
	MaxUncooperative int       `json:"max_uncooperative_retries"`
	MaxGarbled       int       `json:"max_garbled_retries"`
	MaxSilence       int       `json:"max_silence_retries"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PolicyConfig converts the stored row into the policy layer's input.
func (a AgentConfig) PolicyConfig() policy.Config {
	return policy.Config{
		Name:             a.Name,
		Prompt:           a.Prompt,
		TriggerPhrases:   a.TriggerPhrases,
		MaxUncooperative: a.MaxUncooperative,
		MaxGarbled:       a.MaxGarbled,
		MaxSilence:       a.MaxSilence,
	}
}

// ActiveAgentConfig returns the currently active configuration.
// ErrNotFound means none has been saved yet; callers fall back to the
// built-in default policy.
func (s *Store) ActiveAgentConfig(ctx context.Context) (AgentConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, prompt, trigger_phrases, max_uncooperative, max_garbled, max_silence,
		       active, created_at, updated_at
		FROM agent_configurations
		WHERE active = true
		ORDER BY updated_at DESC
		LIMIT 1`,
	)
	cfg, err := scanAgentConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return AgentConfig{}, ErrNotFound
	}
	return cfg, err
}

// SaveAgentConfig upserts the active configuration: the current active row
// is updated in place, or a new active row is inserted when none exists.
// The saved row is returned with its identifiers filled in.
func (s *Store) SaveAgentConfig(ctx context.Context, cfg AgentConfig) (AgentConfig, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM agent_configurations WHERE active = true ORDER BY updated_at DESC LIMIT 1`,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		id = uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO agent_configurations
				(id, name, prompt, trigger_phrases, max_uncooperative, max_garbled, max_silence, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, now(), now())`,
			id, cfg.Name, cfg.Prompt, cfg.TriggerPhrases,
			cfg.MaxUncooperative, cfg.MaxGarbled, cfg.MaxSilence,
		)
		if err != nil {
			return AgentConfig{}, fmt.Errorf("insert agent config: %w", err)
		}
	case err != nil:
		return AgentConfig{}, fmt.Errorf("find active agent config: %w", err)
	default:
		_, err = tx.Exec(ctx, `
			UPDATE agent_configurations
			SET name = $1, prompt = $2, trigger_phrases = $3,
			    max_uncooperative = $4, max_garbled = $5, max_silence = $6, updated_at = now()
			WHERE id = $7`,
			cfg.Name, cfg.Prompt, cfg.TriggerPhrases,
			cfg.MaxUncooperative, cfg.MaxGarbled, cfg.MaxSilence, id,
		)
		if err != nil {
			return AgentConfig{}, fmt.Errorf("update agent config: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AgentConfig{}, fmt.Errorf("commit: %w", err)
	}

	cfg.ID = id
	cfg.Active = true
	return cfg, nil
}

// ListAgentConfigs returns all stored configurations, newest first.
func (s *Store) ListAgentConfigs(ctx context.Context) ([]AgentConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, prompt, trigger_phrases, max_uncooperative, max_garbled, max_silence,
		       active, created_at, updated_at
		FROM agent_configurations
		ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query agent configs: %w", err)
	}
	defer rows.Close()

	var out []AgentConfig
	for rows.Next() {
		cfg, err := scanAgentConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanAgentConfig(row pgx.Row) (AgentConfig, error) {
	var cfg AgentConfig
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Prompt, &cfg.TriggerPhrases,
		&cfg.MaxUncooperative, &cfg.MaxGarbled, &cfg.MaxSilence,
		&cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}
