package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Database  DatabaseConfig   `json:"database"`
	Providers []ProviderConfig `json:"providers"`
	Workflow  WorkflowConfig   `json:"workflow"`
	Auth      AuthConfig       `json:"auth"`
	Notify    NotifyConfig     `json:"notify"`
	Leadgen   ServiceConfig    `json:"leadgen"`
	Messaging MessagingConfig  `json:"messaging"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type ProviderConfig struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
}

// WorkflowConfig tunes the executor harness and chain transport.
type WorkflowConfig struct {
	// FailMode: "stall" leaves a workflow running after a step failure
	// (manual retry); "fail" marks it failed immediately.
	FailMode       string `json:"fail_mode"`
	StepTimeoutSec int    `json:"step_timeout_sec"`
	// Dispatch: "queue" (Redis Streams, durable) or "http" (fire-and-forget
	// to base_url).
	Dispatch     string       `json:"dispatch"`
	BaseURL      string       `json:"base_url"`
	WorkerPool   int          `json:"worker_pool"`
	BackoffMs    int          `json:"rate_limit_backoff_ms"`
	PlannerModel string       `json:"planner_model"`
	Reaper       ReaperConfig `json:"reaper"`
}

type ReaperConfig struct {
	Enabled     bool `json:"enabled"`
	IntervalSec int  `json:"interval_sec"`
	LeaseSec    int  `json:"lease_sec"`
}

type AuthConfig struct {
	// Tokens maps bearer tokens to user ids.
	Tokens        map[string]string `json:"tokens"`
	InternalToken string            `json:"internal_token"`
}

type NotifyConfig struct {
	Slack SlackConfig `json:"slack"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type ServiceConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

type MessagingConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	From     string `json:"from"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
