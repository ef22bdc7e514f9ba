package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "NEWSPULSE_CONFIG"
	databasePathEnv  = "DATABASE_PATH"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
	primaryKeyEnv    = "GOOGLE_API_KEY"
	secondaryKeyEnv  = "OPENAI_API_KEY"
	translateKeyEnv  = "TRANSLATE_API_KEY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig           `yaml:"logging"`
	Database   DatabaseConfig          `yaml:"database"`
	Telegram   TelegramConfig          `yaml:"telegram"`
	Enrichment EnrichmentConfig        `yaml:"enrichment"`
	Translate  TranslateConfig         `yaml:"translate"`
	Delivery   DeliveryConfig          `yaml:"delivery"`
	Digest     DigestConfig            `yaml:"digest"`
	Dedup      DedupConfig             `yaml:"dedup"`
	Retention  RetentionConfig         `yaml:"retention"`
	Sources    map[string]SourceConfig `yaml:"sources"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig wires all data required to reach the delivery channel.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// BackendConfig defines how to contact one enrichment backend.
type BackendConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// EnrichmentConfig groups enrichment pipeline settings and both backends.
// Filtering is a pointer so an explicit `filtering: false` in the file is
// distinguishable from an absent key.
type EnrichmentConfig struct {
	TargetLang     string        `yaml:"targetLang"`
	DefaultSource  string        `yaml:"defaultSourceLang"`
	Filtering      *bool         `yaml:"filtering"`
	BatchLimit     int           `yaml:"batchLimit"`
	SecondaryLimit int           `yaml:"secondaryLimit"`
	Primary        BackendConfig `yaml:"primary"`
	Secondary      BackendConfig `yaml:"secondary"`
}

// FilteringEnabled reports whether the relevance gate is on. An unset key
// defaults to enabled.
func (e EnrichmentConfig) FilteringEnabled() bool {
	return e.Filtering == nil || *e.Filtering
}

// TranslateConfig defines the forced-translation service endpoint.
type TranslateConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// DeliveryConfig bounds and paces outbound sends.
type DeliveryConfig struct {
	BreakingLimit int    `yaml:"breakingLimit"`
	DigestLimit   int    `yaml:"digestLimit"`
	MessageLimit  int    `yaml:"messageLimit"`
	Pacing        string `yaml:"pacing"`
}

// PacingInterval parses the pacing delay, defaulting to one second.
func (d DeliveryConfig) PacingInterval() time.Duration {
	parsed, err := time.ParseDuration(d.Pacing)
	if err != nil || parsed <= 0 {
		return time.Second
	}
	return parsed
}

// DigestConfig defines the fixed-time daily digest trigger.
type DigestConfig struct {
	Hour     int            `yaml:"hour"`
	Minute   int            `yaml:"minute"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the digest timezone string to a time.Location.
func (d DigestConfig) Location() *time.Location {
	if d.location != nil {
		return d.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// DedupConfig tunes the deduplicator.
type DedupConfig struct {
	RecencyDays     int     `yaml:"recencyDays"`
	TitleSimilarity float64 `yaml:"titleSimilarity"`
}

// RecencyWindow converts the configured day count to a duration.
func (d DedupConfig) RecencyWindow() time.Duration {
	return time.Duration(d.RecencyDays) * 24 * time.Hour
}

// RetentionConfig controls the age-based purge of old news.
type RetentionConfig struct {
	Days int `yaml:"days"`
}

// SourceConfig describes a single source entry keyed by source id.
type SourceConfig struct {
	Type            string `yaml:"type"`
	URL             string `yaml:"url"`
	IntervalMinutes int    `yaml:"interval"`
	Lang            string `yaml:"lang"`
	Weight          int    `yaml:"weight"`
	Name            string `yaml:"name"`
}

// Interval returns the fetch interval, defaulting to 15 minutes.
func (s SourceConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
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

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Telegram.ChatID = v
	}

	if v := os.Getenv(primaryKeyEnv); v != "" {
		c.Enrichment.Primary.APIKey = v
	}

	if v := os.Getenv(secondaryKeyEnv); v != "" {
		c.Enrichment.Secondary.APIKey = v
	}

	if v := os.Getenv(translateKeyEnv); v != "" {
		c.Translate.APIKey = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Digest.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Digest.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}

	base.Enrichment = mergeEnrichment(base.Enrichment, override.Enrichment)

	if override.Translate.Endpoint != "" {
		base.Translate.Endpoint = override.Translate.Endpoint
	}
	if override.Translate.APIKey != "" {
		base.Translate.APIKey = override.Translate.APIKey
	}

	if override.Delivery.BreakingLimit > 0 {
		base.Delivery.BreakingLimit = override.Delivery.BreakingLimit
	}
	if override.Delivery.DigestLimit > 0 {
		base.Delivery.DigestLimit = override.Delivery.DigestLimit
	}
	if override.Delivery.MessageLimit > 0 {
		base.Delivery.MessageLimit = override.Delivery.MessageLimit
	}
	if override.Delivery.Pacing != "" {
		base.Delivery.Pacing = override.Delivery.Pacing
	}

	if override.Digest.Hour > 0 || override.Digest.Minute > 0 {
		base.Digest.Hour = override.Digest.Hour
		base.Digest.Minute = override.Digest.Minute
	}
	if override.Digest.Timezone != "" {
		base.Digest.Timezone = override.Digest.Timezone
	}

	if override.Dedup.RecencyDays > 0 {
		base.Dedup.RecencyDays = override.Dedup.RecencyDays
	}
	if override.Dedup.TitleSimilarity > 0 {
		base.Dedup.TitleSimilarity = override.Dedup.TitleSimilarity
	}

	if override.Retention.Days > 0 {
		base.Retention.Days = override.Retention.Days
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func mergeEnrichment(base, override EnrichmentConfig) EnrichmentConfig {
	if override.TargetLang != "" {
		base.TargetLang = override.TargetLang
	}
	if override.DefaultSource != "" {
		base.DefaultSource = override.DefaultSource
	}
	if override.Filtering != nil {
		base.Filtering = override.Filtering
	}
	if override.BatchLimit > 0 {
		base.BatchLimit = override.BatchLimit
	}
	if override.SecondaryLimit > 0 {
		base.SecondaryLimit = override.SecondaryLimit
	}
	base.Primary = mergeBackend(base.Primary, override.Primary)
	base.Secondary = mergeBackend(base.Secondary, override.Secondary)
	return base
}

func mergeBackend(base, override BackendConfig) BackendConfig {
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "data/newspulse.db"},
		Enrichment: EnrichmentConfig{
			TargetLang:     "ru",
			DefaultSource:  "en",
			BatchLimit:     50,
			SecondaryLimit: 5,
			Primary: BackendConfig{
				Endpoint: "https://generativelanguage.googleapis.com/v1beta",
				Model:    "gemini-1.5-flash-latest",
			},
			Secondary: BackendConfig{
				Endpoint: "https://api.openai.com/v1/chat/completions",
				Model:    "gpt-4o-mini",
			},
		},
		Translate: TranslateConfig{Endpoint: "https://translate.example.org/translate"},
		Delivery: DeliveryConfig{
			BreakingLimit: 30,
			DigestLimit:   50,
			MessageLimit:  3900,
			Pacing:        "1s",
		},
		Digest:    DigestConfig{Hour: 7, Minute: 30, Timezone: defaultTimezone, location: tz},
		Dedup:     DedupConfig{RecencyDays: 3, TitleSimilarity: 0.85},
		Retention: RetentionConfig{Days: 30},
		Sources:   map[string]SourceConfig{},
	}
}
