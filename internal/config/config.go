// Package config provides configuration management for the HomematicIP
// exporter. Settings are resolved from command line flags, the
// homematicip-rest-api INI config file and built-in defaults, in that
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	apperrors "github.com/auhlig/homematicip-exporter/internal/errors"
)

// DefaultConfigFile is the location the homematicip-rest-api tooling
// writes its config to.
const DefaultConfigFile = "/etc/homematicip-rest-api/config.ini"

// Config holds all resolved configuration settings for the exporter.
type Config struct {
	MetricPort      int
	ConfigFile      string
	CollectInterval time.Duration
	FetchTimeout    time.Duration
	AuthToken       string
	AccessPoint     string
	EvictionCycles  int
	EnableWebsocket bool
	LookupURL       string
	LogLevel        string
	LogFormat       string
}

// NewFlagSet returns the exporter's flag set. Kept separate from Load so
// tests can drive parsing with their own argument vectors.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("homematicip-exporter", pflag.ContinueOnError)
	fs.Int("metric-port", 8000, "port to expose the metrics on")
	fs.String("config-file", DefaultConfigFile, "path to the homematicip-rest-api configuration file")
	fs.Int("collect-interval-seconds", 10, "collection interval in seconds")
	fs.String("auth-token", "", "HomematicIP auth token (overrides the config file)")
	fs.String("access-point", "", "HomematicIP access point id (overrides the config file)")
	fs.Int("fetch-timeout-seconds", 30, "timeout for one state fetch from the access point")
	fs.Int("eviction-cycles", 30, "evict a device's metrics after this many missed cycles (0 disables eviction)")
	fs.Bool("enable-websocket", false, "listen for push events on the vendor websocket channel")
	fs.String("lookup-url", "https://lookup.homematic.com:48335/getHost", "endpoint lookup service URL")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text, json")
	fs.Bool("version", false, "show version information")
	return fs
}

// Load resolves the configuration from the given parsed flag set. The
// config file is optional unless it is the only source of credentials.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetDefault("metric-port", 8000)
	v.SetDefault("collect-interval-seconds", 10)
	v.SetDefault("fetch-timeout-seconds", 30)
	v.SetDefault("eviction-cycles", 30)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := Config{
		MetricPort:      v.GetInt("metric-port"),
		ConfigFile:      v.GetString("config-file"),
		CollectInterval: time.Duration(v.GetInt("collect-interval-seconds")) * time.Second,
		FetchTimeout:    time.Duration(v.GetInt("fetch-timeout-seconds")) * time.Second,
		AuthToken:       v.GetString("auth-token"),
		AccessPoint:     v.GetString("access-point"),
		EvictionCycles:  v.GetInt("eviction-cycles"),
		EnableWebsocket: v.GetBool("enable-websocket"),
		LookupURL:       v.GetString("lookup-url"),
		LogLevel:        strings.ToLower(v.GetString("log-level")),
		LogFormat:       strings.ToLower(v.GetString("log-format")),
	}

	// Explicit flags win over the config file; the file only fills in
	// credentials that are still missing.
	if cfg.AuthToken == "" || cfg.AccessPoint == "" {
		token, accessPoint, err := readCredentialsFile(cfg.ConfigFile)
		if err != nil {
			if cfg.AuthToken == "" && cfg.AccessPoint == "" {
				return Config{}, err
			}
		}
		if cfg.AuthToken == "" {
			cfg.AuthToken = token
		}
		if cfg.AccessPoint == "" {
			cfg.AccessPoint = accessPoint
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readCredentialsFile reads auth_token and access_point from the vendor INI
// config file. The homematicip-rest-api format keeps both under the [AUTH]
// section.
func readCredentialsFile(path string) (token, accessPoint string, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return "", "", fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	token = v.GetString("auth.authtoken")
	accessPoint = v.GetString("auth.accesspoint")
	return token, accessPoint, nil
}

// Validate checks the configuration for consistency and required values.
func (cfg Config) Validate() error {
	if cfg.AuthToken == "" {
		return apperrors.ConfigurationError{
			Field:  "auth-token",
			Reason: "missing auth token: set --auth-token or provide a config file",
		}
	}
	if cfg.AccessPoint == "" {
		return apperrors.ConfigurationError{
			Field:  "access-point",
			Reason: "missing access point id: set --access-point or provide a config file",
		}
	}
	if cfg.MetricPort <= 0 || cfg.MetricPort > 65535 {
		return apperrors.ConfigurationError{
			Field:  "metric-port",
			Value:  fmt.Sprintf("%d", cfg.MetricPort),
			Reason: "must be in range 1-65535",
		}
	}
	if cfg.CollectInterval <= 0 {
		return apperrors.ConfigurationError{
			Field:  "collect-interval-seconds",
			Value:  cfg.CollectInterval.String(),
			Reason: "must be positive",
		}
	}
	if cfg.FetchTimeout <= 0 {
		return apperrors.ConfigurationError{
			Field:  "fetch-timeout-seconds",
			Value:  cfg.FetchTimeout.String(),
			Reason: "must be positive",
		}
	}
	if cfg.EvictionCycles < 0 {
		return apperrors.ConfigurationError{
			Field:  "eviction-cycles",
			Value:  fmt.Sprintf("%d", cfg.EvictionCycles),
			Reason: "must be zero or positive",
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.LogLevel) {
		return apperrors.ConfigurationError{
			Field:  "log-level",
			Value:  cfg.LogLevel,
			Reason: fmt.Sprintf("valid options: %v", validLogLevels),
		}
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, cfg.LogFormat) {
		return apperrors.ConfigurationError{
			Field:  "log-format",
			Value:  cfg.LogFormat,
			Reason: fmt.Sprintf("valid options: %v", validLogFormats),
		}
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
