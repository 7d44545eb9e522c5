package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "BOOKBLEND"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "bookblend.db"
	defaultLogLevel         = "info"
	defaultUpstreamBaseURL  = "https://book-blend-backend.vercel.app"
	defaultShareBaseURL     = "http://localhost:3000"
	defaultUserCacheTTLHour = 24
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	UpstreamBaseURL string
	ShareBaseURL    string
	UserCacheTTL    time.Duration
	LogLevel        string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("upstream.base_url", defaultUpstreamBaseURL)
	configViper.SetDefault("share.base_url", defaultShareBaseURL)
	configViper.SetDefault("cache.user_ttl_hours", defaultUserCacheTTLHour)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		UpstreamBaseURL: configViper.GetString("upstream.base_url"),
		ShareBaseURL:    configViper.GetString("share.base_url"),
		UserCacheTTL:    time.Duration(configViper.GetInt("cache.user_ttl_hours")) * time.Hour,
		LogLevel:        configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.UpstreamBaseURL) == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if _, err := url.Parse(c.UpstreamBaseURL); err != nil {
		return fmt.Errorf("upstream.base_url is invalid: %w", err)
	}
	if strings.TrimSpace(c.ShareBaseURL) == "" {
		return fmt.Errorf("share.base_url is required")
	}
	if c.UserCacheTTL <= 0 {
		return fmt.Errorf("cache.user_ttl_hours must be positive")
	}
	return nil
}
