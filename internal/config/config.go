// Package config provides Viper-based configuration management for release-radar
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/release-radar/pkg/auth"
	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/Sternrassler/release-radar/pkg/client"
	"github.com/Sternrassler/release-radar/pkg/logging"
	"github.com/Sternrassler/release-radar/pkg/pagination"
	"github.com/Sternrassler/release-radar/pkg/radar"
	"github.com/Sternrassler/release-radar/pkg/report"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (RADAR_RUN_WINDOW_DAYS, ...).
const EnvPrefix = "RADAR"

// FileName is the config file name searched in the working and config directories.
const FileName = "release-radar.toml"

// ErrInvalid marks configuration values that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete release-radar configuration
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Run     RunConfig     `mapstructure:"run"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Output  OutputConfig  `mapstructure:"output"`
}

// CatalogConfig contains catalog API settings
type CatalogConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Market      string        `mapstructure:"market"`
	PageSize    int           `mapstructure:"page_size"`
	UserAgent   string        `mapstructure:"user_agent"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RunConfig contains digest settings
type RunConfig struct {
	Categories     []string      `mapstructure:"categories"`
	CutoffMode     string        `mapstructure:"cutoff_mode"`
	WindowDays     int           `mapstructure:"window_days"`
	WeekStart      string        `mapstructure:"week_start"`
	DatePolicy     string        `mapstructure:"date_policy"`
	LinkPriority   []string      `mapstructure:"link_priority"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// AuthConfig contains OAuth2 client and token storage settings
type AuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	TokenStore   string `mapstructure:"token_store"`
	TokenPath    string `mapstructure:"token_path"`
	RedisKey     string `mapstructure:"redis_key"`
}

// RedisConfig contains connection settings shared by the cache and the token store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig contains response cache settings
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig contains Pushgateway settings. An empty URL disables the push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// OutputConfig contains report output settings
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// Token store backends.
const (
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home dir: %w", err)
	}
	return filepath.Join(home, ".config", "release-radar", FileName), nil
}

// LoadDotEnv loads variables from the given .env files (default ".env").
// Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from file and environment variables.
//
// v may carry flag bindings; nil uses a fresh instance. An empty cfgFile
// searches ./release-radar.toml and $HOME/.config/release-radar/.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/release-radar")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindCredentialEnv(v); err != nil {
		return nil, err
	}

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindCredentialEnv also accepts the RSPOTIFY_* variables the catalog's
// client libraries use. RADAR_* wins when both are set.
func bindCredentialEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"auth.client_id":     "RSPOTIFY_CLIENT_ID",
		"auth.client_secret": "RSPOTIFY_CLIENT_SECRET",
		"auth.redirect_uri":  "RSPOTIFY_REDIRECT_URI",
	}
	for key, legacy := range bindings {
		own := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, own, legacy); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	// Catalog defaults
	v.SetDefault("catalog.base_url", client.DefaultBaseURL)
	v.SetDefault("catalog.market", "from_token")
	v.SetDefault("catalog.page_size", client.MaxPageSize)
	v.SetDefault("catalog.user_agent", "release-radar")
	v.SetDefault("catalog.max_attempts", 1)
	v.SetDefault("catalog.timeout", 30*time.Second)

	// Run defaults: albums and singles from the last seven days
	v.SetDefault("run.categories", []string{"album", "single"})
	v.SetDefault("run.cutoff_mode", string(report.CutoffRolling))
	v.SetDefault("run.window_days", 7)
	v.SetDefault("run.week_start", "friday")
	v.SetDefault("run.date_policy", string(catalog.PolicyPeriodStart))
	v.SetDefault("run.link_priority", []string{"spotify"})
	v.SetDefault("run.max_concurrency", 0)
	v.SetDefault("run.timeout", 5*time.Minute)

	// Auth defaults
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_uri", "http://127.0.0.1:8888/callback")
	v.SetDefault("auth.auth_url", auth.DefaultAuthURL)
	v.SetDefault("auth.token_url", auth.DefaultTokenURL)
	v.SetDefault("auth.token_store", TokenStoreFile)
	v.SetDefault("auth.token_path", "")
	v.SetDefault("auth.redis_key", "radar:token:default")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.retention", 24*time.Hour)

	// Logging defaults
	v.SetDefault("logging.level", string(logging.LevelInfo))
	v.SetDefault("logging.pretty", false)

	// Metrics defaults
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "release_radar")

	// Output defaults
	v.SetDefault("output.format", string(report.FormatText))
}

// Validate checks the configuration for errors. Credentials are checked
// separately by RequireCredentials so that offline commands work without them.
func (c *Config) Validate() error {
	base, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("%w: catalog.base_url must be an absolute URL (got %q)", ErrInvalid, c.Catalog.BaseURL)
	}
	if c.Catalog.PageSize < 1 || c.Catalog.PageSize > client.MaxPageSize {
		return fmt.Errorf("%w: catalog.page_size must be between 1 and %d (got %d)", ErrInvalid, client.MaxPageSize, c.Catalog.PageSize)
	}
	if c.Catalog.MaxAttempts < 1 {
		return fmt.Errorf("%w: catalog.max_attempts must be at least 1 (got %d)", ErrInvalid, c.Catalog.MaxAttempts)
	}
	if c.Catalog.UserAgent == "" {
		return fmt.Errorf("%w: catalog.user_agent is required", ErrInvalid)
	}

	if c.Run.WindowDays < 1 {
		return fmt.Errorf("%w: run.window_days must be at least 1 (got %d)", ErrInvalid, c.Run.WindowDays)
	}
	if c.Run.MaxConcurrency < 0 {
		return fmt.Errorf("%w: run.max_concurrency cannot be negative", ErrInvalid)
	}
	if _, err := c.RunOptions(); err != nil {
		return err
	}

	switch c.Auth.TokenStore {
	case TokenStoreFile:
	case TokenStoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis token store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: invalid auth.token_store: %s (must be file or redis)", ErrInvalid, c.Auth.TokenStore)
	}

	if c.Cache.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required when cache.enabled is set", ErrInvalid)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

// RequireCredentials reports missing OAuth2 client settings.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Auth.ClientID == "" {
		missing = append(missing, "auth.client_id (RSPOTIFY_CLIENT_ID)")
	}
	if c.Auth.RedirectURI == "" {
		missing = append(missing, "auth.redirect_uri (RSPOTIFY_REDIRECT_URI)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// RunOptions converts the run and catalog sections into runner options.
func (c *Config) RunOptions() (radar.Options, error) {
	categories, err := catalog.ParseCategories(c.Run.Categories)
	if err != nil {
		return radar.Options{}, fmt.Errorf("%w: run.categories: %w", ErrInvalid, err)
	}
	mode, err := report.ParseCutoffMode(c.Run.CutoffMode)
	if err != nil {
		return radar.Options{}, fmt.Errorf("%w: run.cutoff_mode: %w", ErrInvalid, err)
	}
	weekday, err := report.ParseWeekday(c.Run.WeekStart)
	if err != nil {
		return radar.Options{}, fmt.Errorf("%w: run.week_start: %w", ErrInvalid, err)
	}
	policy, err := catalog.ParseDatePolicy(c.Run.DatePolicy)
	if err != nil {
		return radar.Options{}, fmt.Errorf("%w: run.date_policy: %w", ErrInvalid, err)
	}

	pages := pagination.DefaultConfig()
	pages.PageSize = c.Catalog.PageSize

	return radar.Options{
		Categories: categories,
		CutoffMode: mode,
		WindowDays: c.Run.WindowDays,
		WeekStart:  weekday,
		Report: report.Options{
			DatePolicy:   policy,
			LinkPriority: c.Run.LinkPriority,
		},
		Market:         c.Catalog.Market,
		Pagination:     pages,
		MaxConcurrency: c.Run.MaxConcurrency,
		Timeout:        c.Run.Timeout,
	}, nil
}

// TokenPath returns the configured token file, or the default location.
func (c *Config) TokenPath() (string, error) {
	if c.Auth.TokenPath != "" {
		return c.Auth.TokenPath, nil
	}
	return auth.DefaultTokenPath()
}
