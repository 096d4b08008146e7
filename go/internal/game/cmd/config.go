package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/mcdev12/drawguess/go/internal/game/eventbus"
	"github.com/mcdev12/drawguess/go/internal/game/orchestrator"
	"github.com/mcdev12/drawguess/go/internal/game/repository"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration: environment first, then the optional
// YAML file named by GAME_CONFIG for game pacing, the write queue and the
// event stream. Events are only published when NATS_URL is set.
type Config struct {
	Port      string
	LogLevel  zerolog.Level
	WordsFile string
	NatsURL   string
	Migrate   bool

	Game     orchestrator.Config
	Writer   repository.WriterConfig
	EventBus eventbus.JetStreamConfig
}

type fileConfig struct {
	Game     orchestrator.Config      `yaml:"game"`
	Writer   repository.WriterConfig  `yaml:"writer"`
	EventBus eventbus.JetStreamConfig `yaml:"event_bus"`
}

func loadConfig() (Config, error) {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  level,
		WordsFile: getEnv("WORDS_FILE", ""),
		NatsURL:   getEnv("NATS_URL", ""),
		Migrate:   getEnvAsBool("DB_MIGRATE", false),
		Game:      orchestrator.DefaultConfig(),
		Writer:    repository.DefaultWriterConfig(),
		EventBus:  eventbus.DefaultJetStreamConfig(),
	}

	if path := getEnv("GAME_CONFIG", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := applyFileConfig(&cfg, data); err != nil {
			return Config{}, err
		}
	}

	if err := validateGameConfig(cfg.Game); err != nil {
		return Config{}, err
	}
	if cfg.NatsURL != "" {
		cfg.EventBus.URL = cfg.NatsURL
	}
	return cfg, nil
}

// applyFileConfig overlays the YAML document on cfg; absent keys keep their value.
func applyFileConfig(cfg *Config, data []byte) error {
	fc := fileConfig{Game: cfg.Game, Writer: cfg.Writer, EventBus: cfg.EventBus}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Game = fc.Game
	cfg.Writer = fc.Writer
	cfg.EventBus = fc.EventBus
	return nil
}

func validateGameConfig(c orchestrator.Config) error {
	var errs []error
	if c.WordSelectionSeconds < 1 {
		errs = append(errs, errors.New("word_selection_seconds must be at least 1"))
	}
	if c.DrawingSeconds < 1 {
		errs = append(errs, errors.New("drawing_seconds must be at least 1"))
	}
	if c.RoundOverDelay < 0 {
		errs = append(errs, errors.New("round_over_delay must not be negative"))
	}
	if c.WordChoiceCount < 1 {
		errs = append(errs, errors.New("word_choice_count must be at least 1"))
	}
	if c.MinPlayers < 2 {
		errs = append(errs, errors.New("min_players must be at least 2"))
	}
	if c.MaxChatLength < 1 {
		errs = append(errs, errors.New("max_chat_length must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
