package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "PAPER_DIGEST_CONFIG"
	databasePathEnv  = "PAPER_DIGEST_DB"
	llmAPIKeyEnv     = "LLM_API_KEY"
	llmModelEnv      = "LLM_MODEL"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Briefing  BriefingConfig  `yaml:"briefing"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
	Session   SessionConfig   `yaml:"session"`
	Sources   []SourceConfig  `yaml:"sources"`
}

// DatabaseConfig describes the sqlite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig defines the cadence of the three pipeline stages.
type SchedulerConfig struct {
	FetchInterval    time.Duration  `yaml:"fetchInterval"`
	GenerateInterval time.Duration  `yaml:"generateInterval"`
	SendInterval     time.Duration  `yaml:"sendInterval"`
	Timezone         string         `yaml:"timezone"`
	location         *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// BriefingConfig bounds briefing generation per run.
type BriefingConfig struct {
	RecencyDays int `yaml:"recencyDays"`
	MaxPerRun   int `yaml:"maxPerRun"`
}

// DeliveryConfig controls the send stage pacing.
type DeliveryConfig struct {
	PacingDelay time.Duration `yaml:"pacingDelay"`
}

// TelegramConfig wires all data required to run the bot surface.
type TelegramConfig struct {
	BotToken    string        `yaml:"botToken"`
	PollTimeout time.Duration `yaml:"pollTimeout"`
}

// LLMConfig defines how to contact the generation backend.
type LLMConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SessionConfig bounds the field-selection session store.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// SourceConfig describes a single paper source with its scanner strategy.
type SourceConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []string          `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.FetchInterval > 0 {
		base.Scheduler.FetchInterval = override.Scheduler.FetchInterval
	}
	if override.Scheduler.GenerateInterval > 0 {
		base.Scheduler.GenerateInterval = override.Scheduler.GenerateInterval
	}
	if override.Scheduler.SendInterval > 0 {
		base.Scheduler.SendInterval = override.Scheduler.SendInterval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Briefing.RecencyDays > 0 {
		base.Briefing.RecencyDays = override.Briefing.RecencyDays
	}
	if override.Briefing.MaxPerRun > 0 {
		base.Briefing.MaxPerRun = override.Briefing.MaxPerRun
	}

	if override.Delivery.PacingDelay > 0 {
		base.Delivery.PacingDelay = override.Delivery.PacingDelay
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.PollTimeout > 0 {
		base.Telegram.PollTimeout = override.Telegram.PollTimeout
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.SystemPrompt != "" {
		base.LLM.SystemPrompt = override.LLM.SystemPrompt
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Session.TTL > 0 {
		base.Session.TTL = override.Session.TTL
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Path: "data/paperdigest.db"},
		Scheduler: SchedulerConfig{
			FetchInterval:    24 * time.Hour,
			GenerateInterval: 24 * time.Hour,
			SendInterval:     24 * time.Hour,
			Timezone:         defaultTimezone,
			location:         tz,
		},
		Briefing: BriefingConfig{RecencyDays: 7, MaxPerRun: 10},
		Delivery: DeliveryConfig{PacingDelay: time.Second},
		Telegram: TelegramConfig{BotToken: "", PollTimeout: 30 * time.Second},
		LLM: LLMConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			APIKey:       "",
			SystemPrompt: "You are an academic paper analyst who writes concise briefings.",
		},
		Logging: LoggingConfig{Level: "info"},
		Session: SessionConfig{TTL: 10 * time.Minute},
		Sources: []SourceConfig{
			{
				Name:       "arxiv",
				Scanner:    "arxiv",
				Categories: []string{"cs.AI", "cs.CL", "cs.CV", "cs.LG"},
			},
			{
				Name:       "openreview",
				Scanner:    "openreview",
				Categories: []string{"ICLR", "NeurIPS", "ICML"},
			},
		},
	}
}
