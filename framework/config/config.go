package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/km-arc/go-assistant/framework/container"
)

// Token is the container token of the *Config value.
const Token container.Token = "config"

// SnapshotToken is the container token of the flat Snapshot value.
const SnapshotToken container.Token = "config.snapshot"

// Config is the central typed configuration struct.
type Config struct {
	App           AppConfig
	Health        HealthConfig
	Messaging     MessagingConfig
	Transcription TranscriptionConfig
	GitHub        GitHubConfig
	AWS           AWSConfig
	Notes         NotesConfig
	Events        EventsConfig
}

type AppConfig struct {
	Name     string `validate:"required"`
	Env      string `validate:"oneof=local production testing"` // local | production | testing
	Debug    bool
	Port     string `validate:"numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`
}

type HealthConfig struct {
	Timeout time.Duration `validate:"gt=0"`
	OnBoot  bool
}

// MessagingConfig holds the Z-API instance credentials.
type MessagingConfig struct {
	BaseURL       string `validate:"url"`
	InstanceID    string
	InstanceToken string
	ClientToken   string
	SecurityToken string
	OwnerPhone    string
}

// Token is the account token shared with Z-API: the security token when
// set, otherwise the client token. It authenticates outbound calls and
// inbound webhooks.
func (m MessagingConfig) Token() string {
	if m.SecurityToken != "" {
		return m.SecurityToken
	}
	return m.ClientToken
}

type TranscriptionConfig struct {
	BaseURL string `validate:"url"`
	APIKey  string
	Model   string
}

type GitHubConfig struct {
	BaseURL string `validate:"url"`
	Token   string
}

type AWSConfig struct {
	Region string
}

type NotesConfig struct {
	Table string
}

type EventsConfig struct {
	BusName string
	Source  string
}

// Load reads .env (if present) and populates a Config from environment
// variables, then validates it.
func Load(envFiles ...string) (*Config, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env does not exist in Lambda
	_ = godotenv.Load(files...)

	cfg := &Config{
		App: AppConfig{
			Name:     env("APP_NAME", "assistant"),
			Env:      env("APP_ENV", "local"),
			Debug:    envBool("APP_DEBUG", false),
			Port:     env("APP_PORT", "8000"),
			LogLevel: env("LOG_LEVEL", "info"),
		},
		Health: HealthConfig{
			Timeout: envDuration("HEALTH_TIMEOUT", 3*time.Second),
			OnBoot:  envBool("HEALTH_ON_BOOT", false),
		},
		Messaging: MessagingConfig{
			BaseURL:       env("ZAPI_BASE_URL", "https://api.z-api.io"),
			InstanceID:    env("ZAPI_INSTANCE_ID", ""),
			InstanceToken: env("ZAPI_INSTANCE_TOKEN", ""),
			ClientToken:   env("ZAPI_CLIENT_TOKEN", ""),
			SecurityToken: env("ZAPI_SECURITY_TOKEN", ""),
			OwnerPhone:    env("OWNER_PHONE", ""),
		},
		Transcription: TranscriptionConfig{
			BaseURL: env("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  env("OPENAI_API_KEY", ""),
			Model:   env("TRANSCRIPTION_MODEL", "whisper-1"),
		},
		GitHub: GitHubConfig{
			BaseURL: env("GITHUB_API_URL", "https://api.github.com"),
			Token:   env("GITHUB_TOKEN", ""),
		},
		AWS: AWSConfig{
			Region: env("AWS_REGION", ""),
		},
		Notes: NotesConfig{
			Table: env("NOTES_TABLE", ""),
		},
		Events: EventsConfig{
			BusName: env("EVENT_BUS_NAME", ""),
			Source:  env("EVENT_SOURCE", "assistant"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the settings every deployment needs. Credentials for
// optional services are not checked here; providers decide availability.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.App.Env == "production" }

// Snapshot flattens the configuration back to its setting names.
func (c *Config) Snapshot() Snapshot {
	return Snapshot{
		"APP_NAME":            c.App.Name,
		"APP_ENV":             c.App.Env,
		"APP_DEBUG":           strconv.FormatBool(c.App.Debug),
		"APP_PORT":            c.App.Port,
		"LOG_LEVEL":           c.App.LogLevel,
		"HEALTH_TIMEOUT":      c.Health.Timeout.String(),
		"HEALTH_ON_BOOT":      strconv.FormatBool(c.Health.OnBoot),
		"ZAPI_BASE_URL":       c.Messaging.BaseURL,
		"ZAPI_INSTANCE_ID":    c.Messaging.InstanceID,
		"ZAPI_INSTANCE_TOKEN": c.Messaging.InstanceToken,
		"ZAPI_CLIENT_TOKEN":   c.Messaging.ClientToken,
		"ZAPI_SECURITY_TOKEN": c.Messaging.SecurityToken,
		"OWNER_PHONE":         c.Messaging.OwnerPhone,
		"OPENAI_BASE_URL":     c.Transcription.BaseURL,
		"OPENAI_API_KEY":      c.Transcription.APIKey,
		"TRANSCRIPTION_MODEL": c.Transcription.Model,
		"GITHUB_API_URL":      c.GitHub.BaseURL,
		"GITHUB_TOKEN":        c.GitHub.Token,
		"AWS_REGION":          c.AWS.Region,
		"NOTES_TABLE":         c.Notes.Table,
		"EVENT_BUS_NAME":      c.Events.BusName,
		"EVENT_SOURCE":        c.Events.Source,
	}
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
