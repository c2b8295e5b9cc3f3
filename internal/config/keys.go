package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "BLOODLENS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_upload_bytes", typ: kInt, env: "BLOODLENS_SERVER_MAX_UPLOAD_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxUploadBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxUploadBytes },
	},
	{
		key: "server.api_token", typ: kString, env: "BLOODLENS_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "log.level", typ: kString, env: "BLOODLENS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "reasoning.provider", typ: kString, env: "BLOODLENS_REASONING_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.Provider },
	},
	{
		key: "reasoning.model", typ: kString, env: "BLOODLENS_REASONING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.Model },
	},
	{
		key: "reasoning.base_url", typ: kString, env: "BLOODLENS_REASONING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Reasoning.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.BaseURL },
	},
	{
		key: "reasoning.api_key", typ: kString, env: "BLOODLENS_REASONING_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Reasoning.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Reasoning.APIKey },
	},
	{
		key: "pipeline.role_timeout", typ: kDuration, env: "BLOODLENS_PIPELINE_ROLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RoleTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.RoleTimeout },
	},
	{
		key: "pipeline.max_retries", typ: kInt, env: "BLOODLENS_PIPELINE_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxRetries },
	},
	{
		key: "pipeline.concurrent", typ: kBool, env: "BLOODLENS_PIPELINE_CONCURRENT",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Concurrent = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.Concurrent },
	},
	{
		key: "document.max_pages", typ: kInt, env: "BLOODLENS_DOCUMENT_MAX_PAGES",
		apply:   func(cfg *Config, v any) { cfg.Document.MaxPages = v.(int) },
		extract: func(cfg Config) any { return cfg.Document.MaxPages },
	},
	{
		key: "document.max_chars", typ: kInt, env: "BLOODLENS_DOCUMENT_MAX_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Document.MaxChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Document.MaxChars },
	},
	{
		key: "search.serper_api_key", typ: kString, env: "BLOODLENS_SERPER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.SerperAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.SerperAPIKey },
	},
	{
		key: "search.max_results", typ: kInt, env: "BLOODLENS_SEARCH_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxResults },
	},
	{
		key: "search.max_concurrent", typ: kInt, env: "BLOODLENS_SEARCH_MAX_CONCURRENT",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxConcurrent = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxConcurrent },
	},
	{
		key: "storage.data_dir", typ: kString, env: "BLOODLENS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.enabled", typ: kBool, env: "BLOODLENS_STORAGE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Storage.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.Enabled },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw into the Go type for s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (s.typ != kString && raw == "") {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
