package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tone", cfg.TTS.Backend)
	assert.Equal(t, 24000, cfg.Playback.SampleRate)
	assert.Equal(t, 25, cfg.Playback.PollMS)
	assert.Equal(t, 2000, cfg.Playback.PrerollMS)
	assert.Equal(t, 1.0, cfg.Playback.Speed)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tts:
  backend: openai
  voice: nova
playback:
  speed: 1.5
  preroll_ms: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.TTS.Backend)
	assert.Equal(t, "nova", cfg.TTS.Voice)
	assert.Equal(t, 1.5, cfg.Playback.Speed)
	assert.Equal(t, 500, cfg.Playback.PrerollMS)
	// untouched keys keep their defaults
	assert.Equal(t, 25, cfg.Playback.PollMS)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_TTS_BACKEND", "exec")
	t.Setenv("NARRATOR_TTS_COMMAND", "piper --output-raw")
	t.Setenv("NARRATOR_TTS_SAMPLE_RATE", "22050")
	t.Setenv("NARRATOR_PLAYBACK_SPEED", "0.75")
	t.Setenv("NARRATOR_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "exec", cfg.TTS.Backend)
	assert.Equal(t, "piper --output-raw", cfg.TTS.Command)
	assert.Equal(t, 22050, cfg.TTS.SampleRate)
	assert.Equal(t, 0.75, cfg.Playback.Speed)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.TTS.Backend = "kazoo" }},
		{"exec without command", func(c *Config) { c.TTS.Backend = "exec" }},
		{"zero sample rate", func(c *Config) { c.Playback.SampleRate = 0 }},
		{"zero poll", func(c *Config) { c.Playback.PollMS = 0 }},
		{"negative preroll", func(c *Config) { c.Playback.PrerollMS = -1 }},
		{"speed too slow", func(c *Config) { c.Playback.Speed = 0.4 }},
		{"speed too fast", func(c *Config) { c.Playback.Speed = 2.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
