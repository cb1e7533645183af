package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/Sternrassler/release-radar/pkg/report"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the test away from real config files and credentials.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	for _, key := range []string{
		"RSPOTIFY_CLIENT_ID", "RSPOTIFY_CLIENT_SECRET", "RSPOTIFY_REDIRECT_URI",
		"RADAR_AUTH_CLIENT_ID", "RADAR_AUTH_CLIENT_SECRET", "RADAR_AUTH_REDIRECT_URI",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.spotify.com", cfg.Catalog.BaseURL)
	assert.Equal(t, "from_token", cfg.Catalog.Market)
	assert.Equal(t, 50, cfg.Catalog.PageSize)
	assert.Equal(t, 1, cfg.Catalog.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, []string{"album", "single"}, cfg.Run.Categories)
	assert.Equal(t, "rolling", cfg.Run.CutoffMode)
	assert.Equal(t, 7, cfg.Run.WindowDays)
	assert.Equal(t, TokenStoreFile, cfg.Auth.TokenStore)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Cache.Retention)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "release_radar", cfg.Metrics.Job)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "custom.toml", `
[run]
categories = ["album", "compilation"]
cutoff_mode = "week_start"
week_start = "mon"
timeout = "90s"

[cache]
enabled = true
retention = "2h"
`)

	cfg, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, []string{"album", "compilation"}, cfg.Run.Categories)
	assert.Equal(t, "week_start", cfg.Run.CutoffMode)
	assert.Equal(t, 90*time.Second, cfg.Run.Timeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Cache.Retention)

	opts, err := cfg.RunOptions()
	require.NoError(t, err)
	assert.Equal(t, report.CutoffWeekStart, opts.CutoffMode)
	assert.Equal(t, time.Monday, opts.WeekStart)
	assert.Equal(t, []catalog.Category{catalog.CategoryAlbum, catalog.CategoryCompilation}, opts.Categories)
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, FileName, "[output]\nformat = \"json\"\n")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RADAR_RUN_WINDOW_DAYS", "3")
	t.Setenv("RADAR_RUN_CATEGORIES", "single,appears_on")
	t.Setenv("RADAR_CATALOG_TIMEOUT", "5s")
	t.Setenv("RSPOTIFY_CLIENT_ID", "legacy-id")
	t.Setenv("RSPOTIFY_CLIENT_SECRET", "legacy-secret")
	t.Setenv("RADAR_AUTH_CLIENT_SECRET", "own-secret")

	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Run.WindowDays)
	assert.Equal(t, []string{"single", "appears_on"}, cfg.Run.Categories)
	assert.Equal(t, 5*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, "legacy-id", cfg.Auth.ClientID)
	assert.Equal(t, "own-secret", cfg.Auth.ClientSecret, "RADAR_ variables take precedence")
}

func TestLoad_FlagBinding(t *testing.T) {
	isolate(t)
	t.Setenv("RADAR_RUN_WINDOW_DAYS", "3")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("window-days", 7, "")
	flags.String("format", "text", "")
	require.NoError(t, flags.Parse([]string{"--window-days=14", "--format=table"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("run.window_days", flags.Lookup("window-days")))
	require.NoError(t, v.BindPFlag("output.format", flags.Lookup("format")))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Run.WindowDays, "flags override env")
	assert.Equal(t, "table", cfg.Output.Format)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "broken.toml", "[run\ncategories = ")

	_, err := Load(nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		isolate(t)
		cfg, err := Load(nil, "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Catalog.BaseURL = "/v1" }, "catalog.base_url"},
		{"page size too large", func(c *Config) { c.Catalog.PageSize = 51 }, "catalog.page_size"},
		{"page size zero", func(c *Config) { c.Catalog.PageSize = 0 }, "catalog.page_size"},
		{"no attempts", func(c *Config) { c.Catalog.MaxAttempts = 0 }, "catalog.max_attempts"},
		{"empty user agent", func(c *Config) { c.Catalog.UserAgent = "" }, "catalog.user_agent"},
		{"zero window", func(c *Config) { c.Run.WindowDays = 0 }, "run.window_days"},
		{"negative concurrency", func(c *Config) { c.Run.MaxConcurrency = -1 }, "run.max_concurrency"},
		{"unknown category", func(c *Config) { c.Run.Categories = []string{"mixtape"} }, "run.categories"},
		{"duplicate category", func(c *Config) { c.Run.Categories = []string{"album", "album"} }, "run.categories"},
		{"no categories", func(c *Config) { c.Run.Categories = nil }, "run.categories"},
		{"unknown cutoff mode", func(c *Config) { c.Run.CutoffMode = "monthly" }, "run.cutoff_mode"},
		{"unknown weekday", func(c *Config) { c.Run.WeekStart = "someday" }, "run.week_start"},
		{"unknown date policy", func(c *Config) { c.Run.DatePolicy = "guess" }, "run.date_policy"},
		{"unknown token store", func(c *Config) { c.Auth.TokenStore = "vault" }, "auth.token_store"},
		{"redis store without addr", func(c *Config) { c.Auth.TokenStore = TokenStoreRedis; c.Redis.Addr = "" }, "redis.addr"},
		{"cache without addr", func(c *Config) { c.Cache.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "trace"},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireCredentials()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "RSPOTIFY_CLIENT_ID")
	assert.Contains(t, err.Error(), "RSPOTIFY_REDIRECT_URI")

	cfg.Auth.ClientID = "id"
	cfg.Auth.RedirectURI = "http://127.0.0.1:8888/callback"
	assert.NoError(t, cfg.RequireCredentials())
}

func TestTokenPath(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{TokenPath: "/tmp/radar/token.json"}}
	path, err := cfg.TokenPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/radar/token.json", path)

	cfg.Auth.TokenPath = ""
	path, err = cfg.TokenPath()
	require.NoError(t, err)
	assert.Equal(t, "token.json", filepath.Base(path))
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, ".env", "RSPOTIFY_CLIENT_ID=from-dotenv\nRSPOTIFY_CLIENT_SECRET=dotenv-secret\n")

	// A variable that is already set is not overridden
	os.Unsetenv("RSPOTIFY_CLIENT_ID")
	t.Setenv("RSPOTIFY_CLIENT_SECRET", "already-set")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-dotenv", os.Getenv("RSPOTIFY_CLIENT_ID"))
	assert.Equal(t, "already-set", os.Getenv("RSPOTIFY_CLIENT_SECRET"))

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.ClientID)
}

func TestWriteDefaults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDefaults(&buf))

	out := buf.String()
	assert.Contains(t, out, "[run]")
	assert.Contains(t, out, "window_days = 7")
	assert.Contains(t, out, "timeout = ")
	assert.Contains(t, out, "30s")
	assert.NotContains(t, out, "client_secret =")
	assert.NotContains(t, out, "password =")
}

func TestCreateDefault_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", FileName)

	require.NoError(t, CreateDefault(path, false))

	cfg, err := Load(nil, path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Run.Timeout)
	assert.Equal(t, []string{"album", "single"}, cfg.Run.Categories)

	err = CreateDefault(path, false)
	require.ErrorIs(t, err, ErrExists)

	require.NoError(t, CreateDefault(path, true))
}
