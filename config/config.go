// Package config loads the garcon configuration from YAML with
// GARCON_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AudioConfig struct {
	SampleRate       int      `yaml:"sample_rate"`
	Channels         int      `yaml:"channels"`
	Gain             int      `yaml:"gain"` // software input boost, 1 = unity
	ChunkIntervalMS  int      `yaml:"chunk_interval_ms"`
	FormatCandidates []string `yaml:"format_candidates"`
	Device           string   `yaml:"device"`
}

type SessionConfig struct {
	MinDurationMS int `yaml:"min_duration_ms"`
	MaxDurationMS int `yaml:"max_duration_ms"`
	TickMS        int `yaml:"tick_ms"`
	ErrorResetMS  int `yaml:"error_reset_ms"`
}

type TranscriberConfig struct {
	Provider string `yaml:"provider"` // auto, deepgram, groq, openai
	Language string `yaml:"language"`
}

type OrdersConfig struct {
	StorePath string `yaml:"store_path"`
	NATSURL   string `yaml:"nats_url"`
	Subject   string `yaml:"subject"`
}

type Config struct {
	LogPath     string              `yaml:"log_path"`
	Audio       AudioConfig         `yaml:"audio"`
	Session     SessionConfig       `yaml:"session"`
	Transcriber TranscriberConfig   `yaml:"transcriber"`
	Orders      OrdersConfig        `yaml:"orders"`
	Alerts      map[string][]string `yaml:"alerts"`
}

func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			// Tableside mics sit a meter from the speaker.
			Gain:             8,
			ChunkIntervalMS:  1000,
			FormatCandidates: []string{"wav", "flac"},
		},
		Session: SessionConfig{
			MinDurationMS: 1000,
			MaxDurationMS: 30000,
			TickMS:        100,
			ErrorResetMS:  2000,
		},
		Transcriber: TranscriberConfig{
			Provider: "auto",
			Language: "en",
		},
		Orders: OrdersConfig{
			StorePath: "./data/orders.db",
			Subject:   "kitchen.orders",
		},
	}
}

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
	overrideString(&cfg.LogPath, "GARCON_LOG_PATH")
	overrideInt(&cfg.Audio.SampleRate, "GARCON_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "GARCON_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.Gain, "GARCON_AUDIO_GAIN")
	overrideInt(&cfg.Audio.ChunkIntervalMS, "GARCON_AUDIO_CHUNK_INTERVAL_MS")
	overrideStringSlice(&cfg.Audio.FormatCandidates, "GARCON_AUDIO_FORMATS")
	overrideString(&cfg.Audio.Device, "GARCON_AUDIO_DEVICE")
	overrideInt(&cfg.Session.MinDurationMS, "GARCON_SESSION_MIN_DURATION_MS")
	overrideInt(&cfg.Session.MaxDurationMS, "GARCON_SESSION_MAX_DURATION_MS")
	overrideInt(&cfg.Session.TickMS, "GARCON_SESSION_TICK_MS")
	overrideInt(&cfg.Session.ErrorResetMS, "GARCON_SESSION_ERROR_RESET_MS")
	overrideString(&cfg.Transcriber.Provider, "GARCON_TRANSCRIBER_PROVIDER")
	overrideString(&cfg.Transcriber.Language, "GARCON_TRANSCRIBER_LANGUAGE")
	overrideString(&cfg.Orders.StorePath, "GARCON_ORDERS_STORE_PATH")
	overrideString(&cfg.Orders.NATSURL, "GARCON_ORDERS_NATS_URL")
	overrideString(&cfg.Orders.Subject, "GARCON_ORDERS_SUBJECT")
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

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.Gain < 1 {
		return errors.New("audio.gain must be at least 1")
	}
	if cfg.Audio.ChunkIntervalMS <= 0 {
		return errors.New("audio.chunk_interval_ms must be positive")
	}
	if len(cfg.Audio.FormatCandidates) == 0 {
		return errors.New("audio.format_candidates must not be empty")
	}
	if cfg.Session.MinDurationMS < 0 {
		return errors.New("session.min_duration_ms must be >= 0")
	}
	if cfg.Session.MaxDurationMS <= cfg.Session.MinDurationMS {
		return errors.New("session.max_duration_ms must be greater than min duration")
	}
	if cfg.Session.TickMS <= 0 {
		return errors.New("session.tick_ms must be positive")
	}
	if cfg.Session.ErrorResetMS < 0 {
		return errors.New("session.error_reset_ms must be >= 0")
	}
	switch cfg.Transcriber.Provider {
	case "auto", "deepgram", "groq", "openai", "fake":
		// ok
	default:
		return errors.New("transcriber.provider must be one of auto|deepgram|groq|openai|fake")
	}
	if cfg.Orders.StorePath == "" && cfg.Orders.NATSURL == "" {
		return errors.New("orders.store_path and orders.nats_url cannot both be empty")
	}
	if cfg.Orders.NATSURL != "" && cfg.Orders.Subject == "" {
		return errors.New("orders.subject must be set when orders.nats_url is configured")
	}
	for label, keywords := range cfg.Alerts {
		if strings.TrimSpace(label) == "" {
			return errors.New("alerts labels must not be empty")
		}
		if len(keywords) == 0 {
			return fmt.Errorf("alerts.%s must list at least one keyword", label)
		}
	}
	return nil
}
