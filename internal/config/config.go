package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	envPrefix                   = "HUDDLE"
	defaultHTTPAddress          = "0.0.0.0:8080"
	defaultDatabasePath         = "huddle.db"
	defaultLogLevel             = "info"
	defaultAuthIssuer           = "huddle-auth"
	defaultAuthAudience         = "huddle-api"
	defaultTokenTTLMinutes      = 1440
	defaultFlushSchedule        = "@every 30s"
	defaultStreamHeartbeatSecs  = 25
	defaultAllowedOriginsString = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	AuthIssuer      string
	AuthAudience    string
	TokenTTL        time.Duration
	FlushSchedule   string
	StreamHeartbeat time.Duration
	AllowedOrigins  []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOriginsString)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("persistence.flush_schedule", defaultFlushSchedule)
	configViper.SetDefault("stream.heartbeat_seconds", defaultStreamHeartbeatSecs)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		AuthIssuer:      configViper.GetString("auth.issuer"),
		AuthAudience:    configViper.GetString("auth.audience"),
		TokenTTL:        time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		FlushSchedule:   strings.TrimSpace(configViper.GetString("persistence.flush_schedule")),
		StreamHeartbeat: time.Duration(configViper.GetInt("stream.heartbeat_seconds")) * time.Second,
		AllowedOrigins:  splitOrigins(configViper.GetString("http.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthIssuer) == "" || strings.TrimSpace(c.AuthAudience) == "" {
		return fmt.Errorf("auth.issuer and auth.audience are required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.StreamHeartbeat <= 0 {
		return fmt.Errorf("stream.heartbeat_seconds must be positive")
	}
	if c.FlushSchedule == "" {
		return fmt.Errorf("persistence.flush_schedule is required")
	}
	if _, err := cron.ParseStandard(c.FlushSchedule); err != nil {
		return fmt.Errorf("persistence.flush_schedule is invalid: %w", err)
	}
	return nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
