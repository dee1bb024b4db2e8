// Package config loads gateway configuration from config.yaml and HEAL_
// environment variables, with env taking precedence.
package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Cache     CacheConfig     `koanf:"cache"`
	Events    EventsConfig    `koanf:"events"`
	Reasoning ReasoningConfig `koanf:"reasoning"`
	Healing   HealingConfig   `koanf:"healing"`
	Stream    StreamConfig    `koanf:"stream"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type UpstreamConfig struct {
	URL            string `koanf:"url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

type CacheConfig struct {
	TTLSeconds int `koanf:"ttl_seconds"`
}

type EventsConfig struct {
	// DBPath is the SQLite database file. Empty keeps events in memory.
	DBPath string `koanf:"db_path"`
}

type ReasoningConfig struct {
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	BaseURL string `koanf:"base_url"`
}

type HealingConfig struct {
	AutoHeal            bool    `koanf:"auto_heal"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	ApprovalThreshold   float64 `koanf:"approval_threshold"`
	RequireApproval     bool    `koanf:"require_approval"`
}

type StreamConfig struct {
	HistorySize            int `koanf:"history_size"`
	ReplayCount            int `koanf:"replay_count"`
	KeepaliveSeconds       int `koanf:"keepalive_seconds"`
	ApprovalTimeoutSeconds int `koanf:"approval_timeout_seconds"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml if present, overlays HEAL_ environment variables
// (HEAL_SERVER__PORT maps to server.port), fills defaults, and substitutes
// ${VAR} references in the reasoning API key.
func Load() (*Config, error) {
	return load("config.yaml")
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars and defaults.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("HEAL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "HEAL_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.port":                     8080,
		"upstream.url":                    "http://localhost:8001",
		"upstream.timeout_seconds":        30,
		"cache.ttl_seconds":               3600,
		"events.db_path":                  "healing_events.db",
		"reasoning.model":                 "gpt-4o-mini",
		"reasoning.base_url":              "https://api.openai.com/v1",
		"healing.auto_heal":               true,
		"healing.confidence_threshold":    0.8,
		"healing.approval_threshold":      0.7,
		"stream.history_size":             100,
		"stream.replay_count":             10,
		"stream.keepalive_seconds":        30,
		"stream.approval_timeout_seconds": 60,
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Reasoning.APIKey = substituteEnvVars(cfg.Reasoning.APIKey)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
