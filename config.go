package anamnesis

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape for the subset of Config that's
// plain data (API keys, storage path, worker intervals). Providers,
// the tool registry, and the per-component structs stay Go-constructed —
// a config file selects which backend to build, not arbitrary Go values.
type fileConfig struct {
	DBPath                string `yaml:"db_path"`
	AnthropicAPIKey       string `yaml:"anthropic_api_key"`
	OpenAIAPIKey          string `yaml:"openai_api_key"`
	GeminiAPIKey          string `yaml:"gemini_api_key"`
	EmbedDimension        int    `yaml:"embed_dimension"`
	ConsolidationInterval string `yaml:"consolidation_interval"`
	PersonaInterval       string `yaml:"persona_interval"`
}

// LoadConfig reads a YAML config file into a Config. Missing fields keep
// their zero value, which ApplyDefaults then fills in — a config file
// only needs to override what it cares about.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := Config{
		DBPath:          fc.DBPath,
		AnthropicAPIKey: fc.AnthropicAPIKey,
		OpenAIAPIKey:    fc.OpenAIAPIKey,
		GeminiAPIKey:    fc.GeminiAPIKey,
		EmbedDimension:  fc.EmbedDimension,
	}

	if fc.ConsolidationInterval != "" {
		d, err := time.ParseDuration(fc.ConsolidationInterval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid consolidation_interval %q: %w", fc.ConsolidationInterval, err)
		}
		cfg.ConsolidationInterval = d
	}
	if fc.PersonaInterval != "" {
		d, err := time.ParseDuration(fc.PersonaInterval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid persona_interval %q: %w", fc.PersonaInterval, err)
		}
		cfg.PersonaInterval = d
	}

	return cfg, nil
}
