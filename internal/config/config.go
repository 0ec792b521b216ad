package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	APIToken string

	DiscordToken    string
	DiscordAPIURL   string
	SourceChannelID string
	TargetChannelID string

	Sink          string // "discord" or "slack"
	SlackBotToken string
	SlackChannel  string

	Engine          string // "process" or "anthropic"
	EngineCommand   string
	AnthropicAPIKey string
	AnthropicModel  string

	CronSchedule  string
	RollingWindow time.Duration
	ClockSkew     time.Duration
	MaxChunkSize  int
	PageSize      int
	Timezone      string

	NatsURL     string
	NatsToken   string
	DatabaseURL string
	RedisURL    string
}

func Load() Config {
	return Config{
		Port:     envInt("SCRIBE_PORT", 8760),
		LogLevel: envStr("LOG_LEVEL", "info"),
		APIToken: envStr("SCRIBE_API_TOKEN", ""),

		DiscordToken:    envStr("DISCORD_TOKEN", ""),
		DiscordAPIURL:   envStr("DISCORD_API_URL", "https://discord.com/api/v10"),
		SourceChannelID: envStr("SOURCE_CHANNEL_ID", ""),
		TargetChannelID: envStr("TARGET_CHANNEL_ID", ""),

		Sink:          envStr("SINK", "discord"),
		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_CHANNEL", ""),

		Engine:          envStr("ENGINE", "process"),
		EngineCommand:   envStr("ENGINE_COMMAND", "python parse_llm.py"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("SCRIBE_MODEL", "claude-sonnet-4-20250514"),

		CronSchedule:  envStr("CRON_SCHEDULE", "0 0 * * *"),
		RollingWindow: envDuration("ROLLING_WINDOW", 24*time.Hour),
		ClockSkew:     envDuration("CLOCK_SKEW", time.Second),
		MaxChunkSize:  envInt("MAX_CHUNK_SIZE", 1900),
		PageSize:      envInt("PAGE_SIZE", 100),
		Timezone:      envStr("TIMEZONE", "Local"),

		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		RedisURL:    envStr("REDIS_URL", ""),
	}
}

// Validate reports the settings a running service cannot do without.
func (c Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	switch c.Sink {
	case "discord":
		if c.TargetChannelID == "" {
			errs = append(errs, errors.New("TARGET_CHANNEL_ID is required for the discord sink"))
		}
	case "slack":
		if c.SlackBotToken == "" || c.SlackChannel == "" {
			errs = append(errs, errors.New("SLACK_BOT_TOKEN and SLACK_CHANNEL are required for the slack sink"))
		}
	default:
		errs = append(errs, errors.New("SINK must be discord or slack"))
	}
	switch c.Engine {
	case "process":
		if c.EngineCommand == "" {
			errs = append(errs, errors.New("ENGINE_COMMAND is required for the process engine"))
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for the anthropic engine"))
		}
	default:
		errs = append(errs, errors.New("ENGINE must be process or anthropic"))
	}
	if c.MaxChunkSize <= 0 {
		errs = append(errs, errors.New("MAX_CHUNK_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

// Location resolves the zone used for YYYY-MM-DD range dates.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
