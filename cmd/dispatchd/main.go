package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/api"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/config"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/dialog"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/events"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/extract"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/openai"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/policy"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/retell"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/slack"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("dispatchd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// OpenAI client — drives both live turns and post-call extraction
	if cfg.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	llm := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	slog.Info("openai client ready", "model", cfg.OpenAIModel)

	// Telephony
	if cfg.RetellAPIKey == "" {
		slog.Error("RETELL_API_KEY is required")
		os.Exit(1)
	}
	telephony := retell.NewClient(cfg.RetellAPIKey)

	// NATS (optional — calls work without the bus, just no downstream events)
	var bus *events.Client
	if cfg.NatsURL != "" {
		bus, err = events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured — running without event publishing")
	}

	// Slack notifier (optional — emergencies still end calls and persist,
	// just no channel page)
	var notifier *slack.Notifier
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		notifier = slack.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack notifier ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured — escalations will not page a channel")
	}

	// Dialogue pipeline
	fallback := policy.Default(cfg.MaxClarifyRetry)
	sessions := session.NewStore()
	orch := dialog.NewOrchestrator(sessions, dialog.NewResponder(llm), fallback, slog.Default())
	extractor := extract.New(extract.NewLLMClassifier(llm), slog.Default())

	// Interface conversions keep the optional deps nil when unconfigured.
	var publisher dialog.Publisher
	if bus != nil {
		publisher = bus
	}
	var escalations dialog.Notifier
	if notifier != nil {
		escalations = notifier
	}
	finalizer := dialog.NewFinalizer(sessions, extractor, db, publisher, escalations, slog.Default())

	// HTTP surface
	srv := api.NewServer(cfg.Port, api.Deps{
		Sessions:   sessions,
		Dialog:     orch,
		Finalizer:  finalizer,
		Calls:      db,
		Configs:    db,
		Telephony:  telephony,
		Fallback:   fallback,
		AgentID:    cfg.RetellAgentID,
		FromNumber: cfg.RetellFromNumber,
	}, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Call originations can also arrive over the bus.
	if bus != nil {
		err := bus.Subscribe(events.SubjectCallRequest, func(_ string, data []byte) {
			var req events.CallRequest
			if err := json.Unmarshal(data, &req); err != nil {
				slog.Error("invalid call request on bus", "error", err)
				return
			}
			originateFromBus(ctx, db, sessions, telephony, cfg, fallback, req)
		})
		if err != nil {
			slog.Error("failed to subscribe to call requests", "error", err)
			os.Exit(1)
		}

		if err := bus.Publish("dispatch.agent.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("dispatchd ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("dispatchd stopped")
}

// originateFromBus mirrors the HTTP trigger endpoint for bus-driven
// origination requests.
func originateFromBus(ctx context.Context, db *store.Store, sessions *session.Store, telephony *retell.Client, cfg config.Config, fallback policy.Policy, req events.CallRequest) {
	if req.PhoneNumber == "" {
		slog.Error("call request missing phone_number", "driver", req.DriverName)
		return
	}

	callID, err := telephony.CreatePhoneCall(ctx, cfg.RetellAgentID, cfg.RetellFromNumber, req.PhoneNumber, map[string]string{
		"driver_name": req.DriverName,
		"load_number": req.LoadNumber,
	})
	if err != nil {
		slog.Error("bus call origination failed", "driver", req.DriverName, "error", err)
		return
	}

	pol := fallback
	if agentCfg, err := db.ActiveAgentConfig(ctx); err == nil {
		pol = policy.FromConfig(agentCfg.PolicyConfig())
	}
	sessions.Create(callID, req.DriverName, req.PhoneNumber, req.LoadNumber, pol)

	if err := db.CreateCall(ctx, callID, req.DriverName, req.PhoneNumber, req.LoadNumber); err != nil {
		slog.Error("failed to persist call registration", "call_id", callID, "error", err)
	}

	slog.Info("call originated from bus", "call_id", callID, "driver", req.DriverName)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
