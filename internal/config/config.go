// Package config loads the bridge configuration from an optional file and
// PRESENCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"presencebridge/internal/notifier"
)

// ErrMissingCredentials means no application id or token was configured
// anywhere. Startup notifies the user and exits instead of connecting.
var ErrMissingCredentials = errors.New("gateway application id and token are required")

const DefaultGatewayURL = "wss://gateway.discord.gg/?v=9&encoding=json"

// GatewayConfig holds the presence gateway session settings.
type GatewayConfig struct {
	URL           string `mapstructure:"url"`
	ApplicationID string `mapstructure:"app_id"`
	Token         string `mapstructure:"token"`
	// ActivityName is the activity title shown above the two presence lines.
	ActivityName string `mapstructure:"activity_name"`
	ClientName   string `mapstructure:"client_name"`
	Device       string `mapstructure:"device"`
	// UpdatesPerMinute bounds presence updates; burst is UpdateBurst.
	UpdatesPerMinute float64 `mapstructure:"updates_per_minute"`
	UpdateBurst      int     `mapstructure:"update_burst"`
}

// PresenceConfig holds how playback becomes presence.
type PresenceConfig struct {
	LargeImageKey  string        `mapstructure:"large_image_key"`
	LargeImageText string        `mapstructure:"large_image_text"`
	LookupAttempts int           `mapstructure:"lookup_attempts"`
	LookupDelay    time.Duration `mapstructure:"lookup_delay"`
}

// HTTPConfig holds the player event listener settings.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// EventsToken, when set, must be sent as a bearer token on player requests.
	EventsToken string `mapstructure:"events_token"`
	// CORSOrigin, when set, lets a browser-based player on that origin call the API.
	CORSOrigin string `mapstructure:"cors_origin"`
	// EventsPerMinute caps player requests per remote address.
	EventsPerMinute int `mapstructure:"events_per_minute"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
	// Secret seals the stored token. Empty stores it in plain text.
	Secret string `mapstructure:"secret"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

type NotifierConfig struct {
	Channels []notifier.Channel `mapstructure:"channels"`
}

type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Presence PresenceConfig `mapstructure:"presence"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Notifier NotifierConfig `mapstructure:"notifier"`
}

// Validate reports every invalid field at once. Credentials are not checked
// here because they may still come from the settings store.
func (c Config) Validate() error {
	var errs []string

	if err := validateGateway(c.Gateway); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePresence(c.Presence); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path must not be empty")
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	for i := range c.Notifier.Channels {
		ch := c.Notifier.Channels[i]
		if err := ch.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("notifier.channels[%d]: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGateway(g GatewayConfig) error {
	var errs []string
	u, err := url.Parse(g.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Sprintf("gateway.url must be a ws:// or wss:// url, got %q", g.URL))
	}
	if g.ActivityName == "" {
		errs = append(errs, "gateway.activity_name must not be empty")
	}
	if g.UpdatesPerMinute <= 0 {
		errs = append(errs, fmt.Sprintf("gateway.updates_per_minute must be > 0, got %v", g.UpdatesPerMinute))
	}
	if g.UpdateBurst < 1 {
		errs = append(errs, fmt.Sprintf("gateway.update_burst must be >= 1, got %d", g.UpdateBurst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePresence(p PresenceConfig) error {
	var errs []string
	if p.LookupAttempts < 1 {
		errs = append(errs, fmt.Sprintf("presence.lookup_attempts must be >= 1, got %d", p.LookupAttempts))
	}
	if p.LookupDelay < 0 {
		errs = append(errs, "presence.lookup_delay must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		errs = append(errs, fmt.Sprintf("http.addr must be host:port, got %q", h.Addr))
	}
	if h.CORSOrigin != "" && h.CORSOrigin != "*" {
		u, err := url.Parse(h.CORSOrigin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errs = append(errs, fmt.Sprintf("http.cors_origin must be an http(s) origin or *, got %q", h.CORSOrigin))
		}
	}
	if h.EventsPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("http.events_per_minute must be >= 1, got %d", h.EventsPerMinute))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from path, applies environment variable overrides
// and validates the result. An empty path skips the file and uses defaults
// plus environment only.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with PRESENCE_ prefix
	v.SetEnvPrefix("PRESENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.url", DefaultGatewayURL)
	v.SetDefault("gateway.app_id", "")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.activity_name", "Kodi")
	v.SetDefault("gateway.client_name", "presencebridge")
	v.SetDefault("gateway.device", "kodi")
	v.SetDefault("gateway.updates_per_minute", 15)
	v.SetDefault("gateway.update_burst", 5)

	v.SetDefault("presence.large_image_key", "kodi")
	v.SetDefault("presence.large_image_text", "Kodi")
	v.SetDefault("presence.lookup_attempts", 5)
	v.SetDefault("presence.lookup_delay", "300ms")

	v.SetDefault("http.addr", "127.0.0.1:7575")
	v.SetDefault("http.events_token", "")
	v.SetDefault("http.cors_origin", "")
	v.SetDefault("http.events_per_minute", 120)

	v.SetDefault("store.path", "presencebridge.db")
	v.SetDefault("store.secret", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
