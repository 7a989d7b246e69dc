package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	TokenSourceBackend = "backend"
	TokenSourceLocal   = "local"
)

type Config struct {
	Mode     string         `mapstructure:"mode"`
	Port     int            `mapstructure:"port"`
	LogLevel string         `mapstructure:"log_level"`
	Secret   string         `mapstructure:"secret"`
	Provider ProviderConfig `mapstructure:"provider"`
	Token    TokenConfig    `mapstructure:"token"`
	Media    MediaConfig    `mapstructure:"media"`

	// StartLimit calls per client within StartInterval; 0 disables.
	StartLimit    int           `mapstructure:"start_limit"`
	StartInterval time.Duration `mapstructure:"start_interval"`
}

type ProviderConfig struct {
	URL         string        `mapstructure:"url"`
	AppID       string        `mapstructure:"app_id"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
	ICEServers  []string      `mapstructure:"ice_servers"`
}

type TokenConfig struct {
	Source     string        `mapstructure:"source"`
	BackendURL string        `mapstructure:"backend_url"`
	Secret     string        `mapstructure:"secret"`
	Bearer     string        `mapstructure:"bearer"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type MediaConfig struct {
	VideoWidth   int `mapstructure:"video_width"`
	VideoHeight  int `mapstructure:"video_height"`
	VideoBitrate int `mapstructure:"video_bitrate"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). TELECALL_*
// environment variables override file values, e.g. TELECALL_PROVIDER_URL.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("TELECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("start_limit", 10)
	v.SetDefault("start_interval", "1m")
	v.SetDefault("provider.url", "ws://localhost:7880/rtc")
	v.SetDefault("provider.app_id", "")
	v.SetDefault("provider.join_timeout", "15s")
	v.SetDefault("provider.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("token.source", TokenSourceBackend)
	v.SetDefault("token.backend_url", "http://localhost:5000/api")
	v.SetDefault("token.secret", "")
	v.SetDefault("token.bearer", "")
	v.SetDefault("token.ttl", "1h")
	v.SetDefault("media.video_width", 640)
	v.SetDefault("media.video_height", 480)
	v.SetDefault("media.video_bitrate", 1_500_000)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("provider", cfg.Provider.URL).
		Str("token_source", cfg.Token.Source).
		Msg("config resolved")
	return &cfg, nil
}

// Validate checks that the configuration can start a call service.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.Mode != "release" && c.Mode != "debug" {
		errs = append(errs, fmt.Errorf("mode must be \"release\" or \"debug\", got %q", c.Mode))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required for the session cookie store"))
	}
	if c.StartLimit < 0 {
		errs = append(errs, fmt.Errorf("start_limit must not be negative, got %d", c.StartLimit))
	}
	if c.StartLimit > 0 && c.StartInterval <= 0 {
		errs = append(errs, errors.New("start_interval must be positive when start_limit is set"))
	}
	if c.Provider.URL == "" {
		errs = append(errs, errors.New("provider.url is required"))
	}
	if c.Provider.JoinTimeout <= 0 {
		errs = append(errs, errors.New("provider.join_timeout must be positive"))
	}
	switch c.Token.Source {
	case TokenSourceBackend:
		if c.Token.BackendURL == "" {
			errs = append(errs, errors.New("token.backend_url is required when token.source is backend"))
		}
	case TokenSourceLocal:
		if c.Token.Secret == "" {
			errs = append(errs, errors.New("token.secret is required when token.source is local"))
		}
	default:
		errs = append(errs, fmt.Errorf("token.source must be %q or %q, got %q", TokenSourceBackend, TokenSourceLocal, c.Token.Source))
	}
	return errors.Join(errs...)
}

func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
