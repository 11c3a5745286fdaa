// Package config loads relay settings from defaults, an optional .env file,
// YAML files and RELAY_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides (RELAY_LLM_MODEL -> llm.model).
const EnvPrefix = "RELAY_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Session   SessionConfig   `koanf:"session"`
	Audit     AuditConfig     `koanf:"audit"`
	Guard     GuardConfig     `koanf:"guardrails"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string        `koanf:"provider"` // mock, ollama, openai, anthropic, gemini
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Timeout     time.Duration `koanf:"timeout"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
}

// ResolveAPIKey returns the configured key, or the provider's conventional
// environment variable when none is set.
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

type PipelineConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialDelay   time.Duration `koanf:"initial_delay"`
	Seed           int64         `koanf:"seed"`
	DefinitionsDir string        `koanf:"definitions_dir"`
}

type SessionConfig struct {
	Store string `koanf:"store"` // file, sqlite, memory
	Dir   string `koanf:"dir"`
	DSN   string `koanf:"dsn"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn"`
}

// GuardConfig controls the prompt injection screen on request text.
type GuardConfig struct {
	Enabled  bool `koanf:"enabled"`
	FailOpen bool `koanf:"fail_open"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

var defaults = map[string]any{
	"log.level":                "info",
	"log.format":               "text",
	"llm.provider":             "mock",
	"llm.model":                "llama3.1",
	"llm.base_url":             "http://localhost:11434",
	"llm.timeout":              "30s",
	"llm.temperature":          0.7,
	"llm.max_tokens":           1024,
	"pipeline.max_attempts":    2,
	"pipeline.initial_delay":   "200ms",
	"pipeline.seed":            0,
	"pipeline.definitions_dir": "",
	"session.store":            "file",
	"session.dir":              ".relay/sessions",
	"session.dsn":              "file:.relay/relay.db",
	"audit.enabled":            false,
	"audit.dsn":                "file:.relay/audit.db",
	"guardrails.enabled":       true,
	"guardrails.fail_open":     false,
	"telemetry.exporter":       "none",
	"telemetry.otlp_endpoint":  "localhost:4317",
	"telemetry.otlp_insecure":  true,
	"server.addr":              ":8080",
}

// Load reads path (optional) on top of the defaults and applies RELAY_
// environment overrides. A .env file in the working directory is loaded
// into the process environment first, without overriding existing values.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile is Load plus config.<profile>.yaml next to path, merged
// after the base file. A missing profile file is not an error.
func LoadWithProfile(path, profile string) (*Config, error) {
	return LoadWithOverrides(path, profile, nil)
}

// LoadWithOverrides is LoadWithProfile plus key=value overrides applied
// last, as given by repeated --set flags.
func LoadWithOverrides(path, profile string, sets []string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if p := profileConfigPath(path, profile); p != "" {
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for _, set := range sets {
		key, value, ok := strings.Cut(set, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid override %q, want key=value", set)
		}
		if err := k.Set(strings.TrimSpace(key), value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps RELAY_LLM_API_KEY to llm.api_key: only the first underscore
// separates the section.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// profileConfigPath returns the profile file for base, or "" when it does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	p := filepath.Join(filepath.Dir(base), name+"."+profile+ext)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Validate rejects settings the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Session.Store {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("session.store: unknown store %q", c.Session.Store)
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("telemetry.exporter: unknown exporter %q", c.Telemetry.Exporter)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must not be negative")
	}
	return nil
}
