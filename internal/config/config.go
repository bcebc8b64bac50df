package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	NatsURL          string
	NatsToken        string
	LogLevel         string
	OpenAIAPIKey     string
	OpenAIModel      string
	RetellAPIKey     string
	RetellAgentID    string
	RetellFromNumber string
	SlackBotToken    string
	SlackChannel     string
	MaxClarifyRetry  int
}

func Load() Config {
	return Config{
		Port:             envInt("DISPATCH_PORT", 8760),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		NatsURL:          envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:        envStr("NATS_TOKEN", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		OpenAIAPIKey:     envStr("OPENAI_API_KEY", ""),
		OpenAIModel:      envStr("DISPATCH_MODEL", "gpt-4.1-mini"),
		RetellAPIKey:     envStr("RETELL_API_KEY", ""),
		RetellAgentID:    envStr("RETELL_AGENT_ID", ""),
		RetellFromNumber: envStr("RETELL_PHONE_NUMBER", ""),
		SlackBotToken:    envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:     envStr("SLACK_ESCALATIONS_CHANNEL", ""),
		MaxClarifyRetry:  envInt("MAX_CLARIFY_RETRIES", 2),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
