package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WRAPSHOT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StaleTimeout != 10*time.Minute {
		t.Errorf("expected stale timeout 10m, got %s", cfg.StaleTimeout)
	}
	if cfg.MinChunkChars != 4000 || cfg.MaxChunkChars != 12000 {
		t.Errorf("unexpected chunk bounds: %d..%d", cfg.MinChunkChars, cfg.MaxChunkChars)
	}
	if err := cfg.ValidateLimits(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrapshot.toml")
	body := `
port = "9000"
db_path = "/tmp/breakdowns.db"

[chunking]
min_chars = 100
max_chars = 500

[jobs]
stale_timeout = "2m"

[extract]
temperature = 0.0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WRAPSHOT_CONFIG", path)
	t.Setenv("MAX_CHUNK_CHARS", "800")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("expected port from file, got %q", cfg.Port)
	}
	if cfg.DBPath != "/tmp/breakdowns.db" {
		t.Errorf("expected db path from file, got %q", cfg.DBPath)
	}
	if cfg.MinChunkChars != 100 {
		t.Errorf("expected min chars 100, got %d", cfg.MinChunkChars)
	}
	if cfg.MaxChunkChars != 800 {
		t.Errorf("expected env to override file, got %d", cfg.MaxChunkChars)
	}
	if cfg.StaleTimeout != 2*time.Minute {
		t.Errorf("expected stale timeout 2m, got %s", cfg.StaleTimeout)
	}
	if cfg.ExtractTemperature != 0 {
		t.Errorf("expected explicit zero temperature to survive, got %g", cfg.ExtractTemperature)
	}
	if cfg.CharsPerPage != 1800 {
		t.Errorf("expected default chars per page, got %d", cfg.CharsPerPage)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrapshot.toml")
	if err := os.WriteFile(path, []byte("[jobs]\nstale_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WRAPSHOT_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"missing api key", func(c *Config) { c.AnthropicAPIKey = "" }, true},
		{"min above max", func(c *Config) { c.MinChunkChars = 5000; c.MaxChunkChars = 100 }, true},
		{"zero stale timeout", func(c *Config) { c.StaleTimeout = 0 }, true},
		{"temperature too high", func(c *Config) { c.ExtractTemperature = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.AnthropicAPIKey = "sk-test"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
