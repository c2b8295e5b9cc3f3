package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Reasoning ReasoningConfig
	Pipeline  PipelineConfig
	Document  DocumentConfig
	Search    SearchConfig
	Storage   StorageConfig
}

type ServerConfig struct {
	Port           int `validate:"min=1,max=65535"`
	MaxUploadBytes int `validate:"min=1"`
	// APIToken protects the report history endpoints when set.
	APIToken string
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

type ReasoningConfig struct {
	Provider string `validate:"oneof=gemini anthropic openai openrouter ollama dummy"`
	// Model is empty to use the provider's default.
	Model   string
	BaseURL string `validate:"omitempty,url"`
	APIKey  string
}

// NeedsKey reports whether the configured provider requires an API key.
func (r ReasoningConfig) NeedsKey() bool {
	return r.Provider != "ollama" && r.Provider != "dummy"
}

type PipelineConfig struct {
	RoleTimeout time.Duration `validate:"gt=0"`
	MaxRetries  int           `validate:"min=0,max=10"`
	Concurrent  bool
}

type DocumentConfig struct {
	MaxPages int `validate:"min=1"`
	MaxChars int `validate:"min=1000"`
}

type SearchConfig struct {
	SerperAPIKey  string
	MaxResults    int `validate:"min=1,max=20"`
	MaxConcurrent int `validate:"min=1"`
}

type StorageConfig struct {
	DataDir string `validate:"required_if=Enabled true"`
	Enabled bool
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8000,
			MaxUploadBytes: 10 << 20,
		},
		Log: LogConfig{
			Level: "info",
		},
		Reasoning: ReasoningConfig{
			Provider: "gemini",
		},
		Pipeline: PipelineConfig{
			RoleTimeout: 60 * time.Second,
			MaxRetries:  2,
		},
		Document: DocumentConfig{
			MaxPages: 50,
			MaxChars: 24000,
		},
		Search: SearchConfig{
			MaxResults:    5,
			MaxConcurrent: 2,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Enabled: true,
		},
	}
}

// Load reads configuration from the JSON file backend, BLOODLENS_*
// environment variables and the secrets file, in increasing precedence for
// everything except secrets, which only come from the environment or the
// secrets file.
//
// The backend is a JSON file at $XDG_CONFIG_HOME/bloodlens/config.json.
// Load does not validate; call Validate before serving.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(key string) (string, error)
}

// providerEnv lists the vendor environment variables consulted when
// reasoning.api_key is not set explicitly.
var providerEnv = map[string][]string{
	"gemini":     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"anthropic":  {"ANTHROPIC_API_KEY"},
	"openai":     {"OPENAI_API_KEY"},
	"openrouter": {"OPENROUTER_API_KEY"},
}

func loadWith(b ConfigBackend, ss secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Reasoning.APIKey == "" {
		cfg.Reasoning.APIKey = firstEnv(providerEnv[cfg.Reasoning.Provider]...)
	}
	if cfg.Search.SerperAPIKey == "" {
		cfg.Search.SerperAPIKey = firstEnv("SERPER_API_KEY")
	}

	for _, s := range specs {
		if !s.secret || s.extract(cfg).(string) != "" {
			continue
		}
		if v, err := ss.Get(s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that the selected reasoning provider has
// the key it needs.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Reasoning.NeedsKey() && c.Reasoning.APIKey == "" {
		hint := "BLOODLENS_REASONING_API_KEY"
		if env := providerEnv[c.Reasoning.Provider]; len(env) > 0 {
			hint += " or " + strings.Join(env, "/")
		}
		return fmt.Errorf("missing required config: %s API key. Set it via %s, or run `bloodlens config set-secret reasoning.api_key`", c.Reasoning.Provider, hint)
	}
	return nil
}
