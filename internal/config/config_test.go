package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secrets file.
type mockSecrets map[string]string

func (m mockSecrets) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// clearEnv unsets every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
	for _, names := range providerEnv {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
	t.Setenv("SERPER_API_KEY", "")
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadFromPath(path string, ss secretStore) (Config, error) {
	return loadWith(newFileBackend(path), ss)
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "missing.json"), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 10485760 {
		t.Errorf("Server.MaxUploadBytes = %d, want 10485760", cfg.Server.MaxUploadBytes)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Reasoning.Provider != "gemini" || cfg.Reasoning.Model != "" {
		t.Errorf("Reasoning = %+v", cfg.Reasoning)
	}
	if cfg.Pipeline.RoleTimeout != 60*time.Second {
		t.Errorf("Pipeline.RoleTimeout = %s, want 60s", cfg.Pipeline.RoleTimeout)
	}
	if cfg.Pipeline.MaxRetries != 2 || cfg.Pipeline.Concurrent {
		t.Errorf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Document.MaxPages != 50 || cfg.Document.MaxChars != 24000 {
		t.Errorf("Document = %+v", cfg.Document)
	}
	if cfg.Search.MaxResults != 5 || cfg.Search.MaxConcurrent != 2 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if !cfg.Storage.Enabled || !strings.HasSuffix(cfg.Storage.DataDir, "bloodlens") {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{
  "server.port": 9000,
  "reasoning.provider": "ollama",
  "reasoning.model": "llama3.1",
  "pipeline.role_timeout": "90s",
  "pipeline.concurrent": "true",
  "storage.enabled": false,
  "storage.data_dir": "/tmp/bloodlens-test"
}`)

	cfg, err := loadFromPath(path, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Reasoning.Provider != "ollama" || cfg.Reasoning.Model != "llama3.1" {
		t.Errorf("Reasoning = %+v", cfg.Reasoning)
	}
	if cfg.Pipeline.RoleTimeout != 90*time.Second {
		t.Errorf("RoleTimeout = %s, want 90s", cfg.Pipeline.RoleTimeout)
	}
	if !cfg.Pipeline.Concurrent {
		t.Error("Concurrent = false, want true")
	}
	if cfg.Storage.Enabled {
		t.Error("Storage.Enabled = true, want false")
	}
	if cfg.Storage.DataDir != "/tmp/bloodlens-test" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"server.port": 9000, "log.level": "warn"}`)
	t.Setenv("BLOODLENS_SERVER_PORT", "9100")
	t.Setenv("BLOODLENS_PIPELINE_MAX_RETRIES", "4")
	t.Setenv("BLOODLENS_PIPELINE_ROLE_TIMEOUT", "not-a-duration")

	cfg, err := loadFromPath(path, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Pipeline.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.Pipeline.MaxRetries)
	}
	if cfg.Pipeline.RoleTimeout != 60*time.Second {
		t.Errorf("unparseable env should keep default, got %s", cfg.Pipeline.RoleTimeout)
	}
}

func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `{"reasoning.api_key": "from-file"}`)

	cfg, err := loadFromPath(path, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Reasoning.APIKey != "" {
		t.Errorf("APIKey = %q, secrets must not load from the config file", cfg.Reasoning.APIKey)
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		env      map[string]string
		secrets  mockSecrets
		want     string
	}{
		{"explicit env", "gemini", map[string]string{"BLOODLENS_REASONING_API_KEY": "explicit", "GOOGLE_API_KEY": "vendor"}, nil, "explicit"},
		{"gemini vendor env", "gemini", map[string]string{"GEMINI_API_KEY": "gem"}, nil, "gem"},
		{"anthropic vendor env", "anthropic", map[string]string{"ANTHROPIC_API_KEY": "ant", "OPENAI_API_KEY": "oai"}, nil, "ant"},
		{"secrets file", "openrouter", nil, mockSecrets{"reasoning.api_key": "stored"}, "stored"},
		{"env beats secrets file", "openai", map[string]string{"OPENAI_API_KEY": "oai"}, mockSecrets{"reasoning.api_key": "stored"}, "oai"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("BLOODLENS_REASONING_PROVIDER", tt.provider)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			ss := tt.secrets
			if ss == nil {
				ss = mockSecrets{}
			}
			cfg, err := loadFromPath(filepath.Join(t.TempDir(), "none.json"), ss)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Reasoning.APIKey != tt.want {
				t.Errorf("APIKey = %q, want %q", cfg.Reasoning.APIKey, tt.want)
			}
		})
	}
}

func TestSerperKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERPER_API_KEY", "serp")
	cfg, err := loadFromPath(filepath.Join(t.TempDir(), "none.json"), mockSecrets{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.SerperAPIKey != "serp" {
		t.Errorf("SerperAPIKey = %q, want serp", cfg.Search.SerperAPIKey)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := defaults()
		cfg.Reasoning.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with key", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"unknown provider", func(c *Config) { c.Reasoning.Provider = "ouija" }, "Provider"},
		{"zero timeout", func(c *Config) { c.Pipeline.RoleTimeout = 0 }, "RoleTimeout"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"bad base url", func(c *Config) { c.Reasoning.BaseURL = "not a url" }, "BaseURL"},
		{"missing key", func(c *Config) { c.Reasoning.APIKey = "" }, "GOOGLE_API_KEY"},
		{"ollama needs no key", func(c *Config) { c.Reasoning.Provider = "ollama"; c.Reasoning.APIKey = "" }, ""},
		{"storage without dir", func(c *Config) { c.Storage.DataDir = "" }, "DataDir"},
		{"storage disabled without dir", func(c *Config) { c.Storage.DataDir = ""; c.Storage.Enabled = false }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "server.port", "9200"); err != nil {
		t.Fatalf("setKey(port): %v", err)
	}
	if err := setKey(b, "pipeline.role_timeout", "2m"); err != nil {
		t.Fatalf("setKey(role_timeout): %v", err)
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "pipeline.concurrent", "maybe"); err == nil {
		t.Error("expected error for non-bool")
	}
	if err := setKey(b, "reasoning.api_key", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	clearEnv(t)
	cfg, err := loadFromPath(path, mockSecrets{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9200 || cfg.Pipeline.RoleTimeout != 2*time.Minute {
		t.Errorf("reloaded: port=%d timeout=%s", cfg.Server.Port, cfg.Pipeline.RoleTimeout)
	}
}

func TestFileSecrets(t *testing.T) {
	fs := fileSecrets{path: filepath.Join(t.TempDir(), "sub", "secrets.json")}
	if _, err := fs.Get("reasoning.api_key"); err == nil {
		t.Error("expected error before the file exists")
	}
	if err := fs.Set("reasoning.api_key", "s3cret"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := fs.Get("reasoning.api_key")
	if err != nil || got != "s3cret" {
		t.Errorf("Get = %q, %v", got, err)
	}
	info, err := os.Stat(fs.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("perm = %o, want 600", info.Mode().Perm())
	}
	if err := fs.Set("reasoning.api_key", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Get("reasoning.api_key"); err == nil {
		t.Error("expected empty Set to remove the secret")
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "tok"
	for _, ki := range ShowAll(cfg) {
		if ki.Value == "tok" {
			t.Errorf("%s leaked secret value", ki.Key)
		}
		if ki.Key == "server.api_token" && ki.Value != "(set)" {
			t.Errorf("api_token shown as %q", ki.Value)
		}
	}
}

func TestFileBackend(t *testing.T) {
	clearEnv(t)

	t.Run("fractional int", func(t *testing.T) {
		path := writeTempConfig(t, `{"server.port": 80.5}`)
		if _, err := loadFromPath(path, mockSecrets{}); err == nil {
			t.Error("expected error for a fractional port")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeTempConfig(t, `{"server.port":`)
		cfg, err := loadFromPath(path, mockSecrets{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 8000 {
			t.Errorf("Server.Port = %d, want default 8000", cfg.Server.Port)
		}
	})

	t.Run("set and reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.json")
		b := newFileBackend(path)
		if err := b.SetInt("server.port", 9100); err != nil {
			t.Fatal(err)
		}
		if err := b.SetString("pipeline.concurrent", "true"); err != nil {
			t.Fatal(err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}

		cfg, err := loadFromPath(path, mockSecrets{})
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Port != 9100 || !cfg.Pipeline.Concurrent {
			t.Errorf("reloaded = port %d concurrent %v", cfg.Server.Port, cfg.Pipeline.Concurrent)
		}
	})
}
