package anamnesis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "full override",
			yaml: `
db_path: /tmp/custom.db
gemini_api_key: gk-123
embed_dimension: 256
consolidation_interval: 2h
persona_interval: 48h
`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
				assert.Equal(t, "gk-123", cfg.GeminiAPIKey)
				assert.Equal(t, 256, cfg.EmbedDimension)
				assert.Equal(t, 2*time.Hour, cfg.ConsolidationInterval)
				assert.Equal(t, 48*time.Hour, cfg.PersonaInterval)
			},
		},
		{
			name: "partial override leaves the rest zero-valued",
			yaml: `db_path: /tmp/only-db.db`,
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "/tmp/only-db.db", cfg.DBPath)
				assert.Empty(t, cfg.GeminiAPIKey)
				assert.Zero(t, cfg.EmbedDimension)
				assert.Zero(t, cfg.ConsolidationInterval)
			},
		},
		{
			name:    "invalid duration fails closed",
			yaml:    "consolidation_interval: not-a-duration",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.yaml)
			cfg, err := LoadConfig(path)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigThenApplyDefaultsFillsGaps(t *testing.T) {
	path := writeConfigFile(t, `gemini_api_key: gk-123`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	cfg.ApplyDefaults()
	assert.Equal(t, "./data/anamnesis.db", cfg.DBPath)
	assert.Equal(t, 768, cfg.EmbedDimension)
	assert.Equal(t, "gk-123", cfg.GeminiAPIKey, "explicit config values survive ApplyDefaults")
}
