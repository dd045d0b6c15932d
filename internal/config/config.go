// Package config loads the narrator's configuration from an optional YAML
// file with environment variable overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TTSConfig struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
	Voice   string `yaml:"voice"`
	// Command is the external synthesizer command line for the exec
	// backend.
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
}

type PlaybackConfig struct {
	SampleRate int     `yaml:"sample_rate"`
	PollMS     int     `yaml:"poll_ms"`
	PrerollMS  int     `yaml:"preroll_ms"`
	Speed      float64 `yaml:"speed"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	TTS      TTSConfig      `yaml:"tts"`
	Playback PlaybackConfig `yaml:"playback"`
	Log      LogConfig      `yaml:"log"`
}

func Default() Config {
	return Config{
		TTS: TTSConfig{
			Backend: "tone",
		},
		Playback: PlaybackConfig{
			SampleRate: 24000,
			PollMS:     25,
			PrerollMS:  2000,
			Speed:      1.0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path (if non-empty), applies env overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.TTS.Backend, "NARRATOR_TTS_BACKEND")
	overrideString(&cfg.TTS.Model, "NARRATOR_TTS_MODEL")
	overrideString(&cfg.TTS.Voice, "NARRATOR_TTS_VOICE")
	overrideString(&cfg.TTS.Command, "NARRATOR_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "NARRATOR_TTS_SAMPLE_RATE")
	overrideInt(&cfg.Playback.SampleRate, "NARRATOR_PLAYBACK_SAMPLE_RATE")
	overrideInt(&cfg.Playback.PollMS, "NARRATOR_PLAYBACK_POLL_MS")
	overrideInt(&cfg.Playback.PrerollMS, "NARRATOR_PLAYBACK_PREROLL_MS")
	overrideFloat(&cfg.Playback.Speed, "NARRATOR_PLAYBACK_SPEED")
	overrideString(&cfg.Log.Level, "NARRATOR_LOG_LEVEL")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	switch cfg.TTS.Backend {
	case "tone", "exec", "openai", "google", "elevenlabs":
	default:
		return fmt.Errorf("tts.backend must be one of tone|exec|openai|google|elevenlabs, got %q", cfg.TTS.Backend)
	}
	if cfg.TTS.Backend == "exec" && strings.TrimSpace(cfg.TTS.Command) == "" {
		return errors.New("tts.command must not be empty for the exec backend")
	}
	if cfg.Playback.SampleRate <= 0 {
		return errors.New("playback.sample_rate must be positive")
	}
	if cfg.Playback.PollMS <= 0 {
		return errors.New("playback.poll_ms must be positive")
	}
	if cfg.Playback.PrerollMS < 0 {
		return errors.New("playback.preroll_ms must not be negative")
	}
	if cfg.Playback.Speed < 0.5 || cfg.Playback.Speed > 2.0 {
		return errors.New("playback.speed must be between 0.5 and 2.0")
	}
	return nil
}
