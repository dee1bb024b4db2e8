package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Upstream.URL != "http://localhost:8001" {
		t.Errorf("Upstream.URL = %q, want http://localhost:8001", cfg.Upstream.URL)
	}
	if cfg.Upstream.TimeoutSeconds != 30 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want 30", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("Cache.TTLSeconds = %d, want 3600", cfg.Cache.TTLSeconds)
	}
	if cfg.Reasoning.Model != "gpt-4o-mini" {
		t.Errorf("Reasoning.Model = %q, want gpt-4o-mini", cfg.Reasoning.Model)
	}
	if !cfg.Healing.AutoHeal {
		t.Error("Healing.AutoHeal = false, want true by default")
	}
	if cfg.Healing.ConfidenceThreshold != 0.8 {
		t.Errorf("Healing.ConfidenceThreshold = %v, want 0.8", cfg.Healing.ConfidenceThreshold)
	}
	if cfg.Healing.ApprovalThreshold != 0.7 {
		t.Errorf("Healing.ApprovalThreshold = %v, want 0.7", cfg.Healing.ApprovalThreshold)
	}
	if cfg.Healing.RequireApproval {
		t.Error("Healing.RequireApproval = true, want false by default")
	}
	if cfg.Stream.ApprovalTimeoutSeconds != 60 {
		t.Errorf("Stream.ApprovalTimeoutSeconds = %d, want 60", cfg.Stream.ApprovalTimeoutSeconds)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
upstream:
  url: http://upstream.internal:8001
healing:
  auto_heal: false
  confidence_threshold: 0.9
reasoning:
  model: gpt-4o
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Upstream.URL != "http://upstream.internal:8001" {
		t.Errorf("Upstream.URL = %q", cfg.Upstream.URL)
	}
	if cfg.Healing.AutoHeal {
		t.Error("Healing.AutoHeal = true, want false from file")
	}
	if cfg.Healing.ConfidenceThreshold != 0.9 {
		t.Errorf("ConfidenceThreshold = %v, want 0.9", cfg.Healing.ConfidenceThreshold)
	}
	if cfg.Reasoning.Model != "gpt-4o" {
		t.Errorf("Reasoning.Model = %q, want gpt-4o", cfg.Reasoning.Model)
	}
	// Unset keys still default.
	if cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("Cache.TTLSeconds = %d, want 3600 default", cfg.Cache.TTLSeconds)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HEAL_SERVER__PORT", "7070")
	t.Setenv("HEAL_REASONING__MODEL", "gpt-4.1-mini")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Reasoning.Model != "gpt-4.1-mini" {
		t.Errorf("Reasoning.Model = %q, want env override", cfg.Reasoning.Model)
	}
}

func TestAPIKeySubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("reasoning:\n  api_key: ${TEST_REASONING_KEY}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TEST_REASONING_KEY", "sk-test-123")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Reasoning.APIKey != "sk-test-123" {
		t.Errorf("Reasoning.APIKey = %q, want substituted value", cfg.Reasoning.APIKey)
	}
}
