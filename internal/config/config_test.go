package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Crawl.Source != "api" {
		t.Errorf("expected crawl source 'api', got %q", cfg.Crawl.Source)
	}
	if cfg.Crawl.Display != 100 || cfg.Crawl.MaxStart != 1000 {
		t.Errorf("unexpected paging defaults: display=%d max_start=%d", cfg.Crawl.Display, cfg.Crawl.MaxStart)
	}
	if cfg.Dedup.WindowDays != 30 {
		t.Errorf("expected window_days 30, got %d", cfg.Dedup.WindowDays)
	}
	if cfg.Dedup.Policy != "earliest" || cfg.Dedup.Mode != "rolling_window" {
		t.Errorf("unexpected dedup defaults: %q / %q", cfg.Dedup.Policy, cfg.Dedup.Mode)
	}
	if cfg.Score.Threshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", cfg.Score.Threshold)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Embedding.Provider)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
dedup:
  window_days: 14
  policy: highest_score
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Dedup.WindowDays != 14 {
		t.Errorf("expected window_days 14, got %d", cfg.Dedup.WindowDays)
	}
	if cfg.Dedup.Policy != "highest_score" {
		t.Errorf("expected policy 'highest_score', got %q", cfg.Dedup.Policy)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Embedding.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.Embedding.OllamaURL)
	}
	if cfg.Dedup.Mode != "rolling_window" {
		t.Errorf("expected default mode, got %q", cfg.Dedup.Mode)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Dedup.WindowDays != 30 {
		t.Errorf("expected window_days 30 from file, got %d", cfg.Dedup.WindowDays)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.DBPath() != filepath.Join("/custom/path", "newsdesk.db") {
		t.Errorf("unexpected db path: %q", cfg.DBPath())
	}
}

func TestNaverCredentials(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	t.Setenv("NAVER_CLIENT_ID", "id123")
	t.Setenv("NAVER_CLIENT_SECRET", "secret456")
	id, secret, err := cfg.NaverCredentials()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "id123" || secret != "secret456" {
		t.Errorf("unexpected credentials: %q / %q", id, secret)
	}

	t.Setenv("NAVER_CLIENT_SECRET", "")
	if _, _, err := cfg.NaverCredentials(); err == nil {
		t.Error("expected error when a credential is missing")
	}
}
