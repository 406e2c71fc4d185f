// Package config loads the summarizer configuration: defaults, then
// config.yaml from the bot home directory, then environment overrides for
// secrets and deploy-time knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/svetasakovets-dev/telegram-summarizer-bot/internal/otel"
)

// TelegramConfig holds the transport settings. When WebhookURL is empty the
// bot long-polls; otherwise it serves the webhook endpoint on ListenAddr
// under /telegram/<webhook_secret> plus /healthz.
type TelegramConfig struct {
	Token          string  `yaml:"token"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids"`
	WebhookURL     string  `yaml:"webhook_url"`
	WebhookSecret  string  `yaml:"webhook_secret"`
	ListenAddr     string  `yaml:"listen_addr"`
}

// LLMConfig holds the completion-service connection settings. BaseURL
// defaults to Groq's OpenAI-compatible endpoint.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SummaryConfig tunes the summarization pipeline.
type SummaryConfig struct {
	// ChunkCeiling bounds the approximate cost of one completion block.
	// The value is a tunable, not a contract.
	ChunkCeiling int `yaml:"chunk_ceiling"`

	// MaxParallel bounds concurrent partial-summary calls.
	MaxParallel int `yaml:"max_parallel"`

	// RunTimeoutSeconds bounds the whole two-stage run.
	RunTimeoutSeconds int `yaml:"run_timeout_seconds"`

	// Profile selects the corroboration bar for confirmed recommendations:
	// "direct" or "community".
	Profile string `yaml:"profile"`

	PartialTemperature float32 `yaml:"partial_temperature"`
	PartialMaxTokens   int     `yaml:"partial_max_tokens"`
	FinalTemperature   float32 `yaml:"final_temperature"`
	FinalMaxTokens     int     `yaml:"final_max_tokens"`
}

// DigestConfig controls the scheduled daily digest.
type DigestConfig struct {
	// Schedule is a standard 5-field cron expression. Default fires daily
	// at 21:00.
	Schedule string `yaml:"schedule"`

	// WindowHours is the trailing window each scheduled digest covers.
	WindowHours int `yaml:"window_hours"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	Telegram TelegramConfig `yaml:"telegram"`
	LLM      LLMConfig      `yaml:"llm"`
	Summary  SummaryConfig  `yaml:"summary"`
	Digest   DigestConfig   `yaml:"digest"`
	Otel     otel.Config    `yaml:"otel"`
}

// RunTimeout returns the pipeline deadline as a duration.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Summary.RunTimeoutSeconds) * time.Second
}

// DigestWindow returns the scheduled digest window as a duration.
func (c Config) DigestWindow() time.Duration {
	return time.Duration(c.Digest.WindowHours) * time.Hour
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Telegram: TelegramConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Summary: SummaryConfig{
			ChunkCeiling:       3200,
			MaxParallel:        3,
			RunTimeoutSeconds:  60,
			Profile:            "direct",
			PartialTemperature: 0.2,
			PartialMaxTokens:   700,
			FinalTemperature:   0.5,
			FinalMaxTokens:     1100,
		},
		Digest: DigestConfig{
			Schedule:    "0 21 * * *",
			WindowHours: 24,
		},
	}
}

// HomeDir returns the bot home directory: $SUMMARIZER_HOME when set,
// ~/.tg-summarizer otherwise.
func HomeDir() string {
	if override := os.Getenv("SUMMARIZER_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".tg-summarizer")
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads the effective configuration. A missing config.yaml is not an
// error; defaults plus environment overrides apply.
func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom is Load with an explicit home directory, for tests and the
// -home flag.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create summarizer home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Telegram.ListenAddr == "" {
		cfg.Telegram.ListenAddr = "127.0.0.1:8080"
	}
	if cfg.Summary.ChunkCeiling <= 0 {
		cfg.Summary.ChunkCeiling = 3200
	}
	if cfg.Summary.MaxParallel <= 0 {
		cfg.Summary.MaxParallel = 3
	}
	if cfg.Summary.RunTimeoutSeconds <= 0 {
		cfg.Summary.RunTimeoutSeconds = 60
	}
	if cfg.Summary.Profile == "" {
		cfg.Summary.Profile = "direct"
	}
	// Zero is a valid temperature (deterministic sampling); only negative
	// values fall back to the defaults.
	if cfg.Summary.PartialTemperature < 0 {
		cfg.Summary.PartialTemperature = 0.2
	}
	if cfg.Summary.PartialMaxTokens <= 0 {
		cfg.Summary.PartialMaxTokens = 700
	}
	if cfg.Summary.FinalTemperature < 0 {
		cfg.Summary.FinalTemperature = 0.5
	}
	if cfg.Summary.FinalMaxTokens <= 0 {
		cfg.Summary.FinalMaxTokens = 1100
	}
	if cfg.Digest.Schedule == "" {
		cfg.Digest.Schedule = "0 21 * * *"
	}
	if cfg.Digest.WindowHours <= 0 {
		cfg.Digest.WindowHours = 24
	}
}

func validate(cfg *Config) error {
	switch cfg.Summary.Profile {
	case "direct", "community":
	default:
		return fmt.Errorf("summary.profile must be %q or %q, got %q", "direct", "community", cfg.Summary.Profile)
	}
	if cfg.Telegram.WebhookURL != "" && strings.TrimSpace(cfg.Telegram.WebhookSecret) == "" {
		return fmt.Errorf("telegram.webhook_secret is required when telegram.webhook_url is set")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("TELEGRAM_BOT_TOKEN"); raw != "" {
		cfg.Telegram.Token = raw
	}
	if raw := os.Getenv("GROQ_API_KEY"); raw != "" {
		cfg.LLM.APIKey = raw
	}
	if raw := os.Getenv("GROQ_MODEL"); raw != "" {
		cfg.LLM.Model = raw
	}
	if raw := os.Getenv("SUMMARIZER_WEBHOOK_SECRET"); raw != "" {
		cfg.Telegram.WebhookSecret = raw
	}
	if raw := os.Getenv("SUMMARIZER_WEBHOOK_URL"); raw != "" {
		cfg.Telegram.WebhookURL = raw
	}
	if raw := os.Getenv("SUMMARIZER_LISTEN_ADDR"); raw != "" {
		cfg.Telegram.ListenAddr = raw
	}
	if raw := os.Getenv("SUMMARIZER_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("SUMMARIZER_PROFILE"); raw != "" {
		cfg.Summary.Profile = raw
	}
	if raw := os.Getenv("SUMMARIZER_CHUNK_CEILING"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Summary.ChunkCeiling = v
		}
	}
	if raw := os.Getenv("SUMMARIZER_RUN_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Summary.RunTimeoutSeconds = v
		}
	}
	if raw := os.Getenv("SUMMARIZER_DIGEST_SCHEDULE"); raw != "" {
		cfg.Digest.Schedule = raw
	}
}
