package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/release-radar/internal/config"
	"github.com/Sternrassler/release-radar/pkg/auth"
	"github.com/Sternrassler/release-radar/pkg/cache"
	"github.com/Sternrassler/release-radar/pkg/client"
	"github.com/Sternrassler/release-radar/pkg/logging"
	"github.com/Sternrassler/release-radar/pkg/metrics"
	"github.com/Sternrassler/release-radar/pkg/radar"
	"github.com/Sternrassler/release-radar/pkg/report"
	"github.com/mattn/go-isatty"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Print recent releases of followed creators (default)",
		Long: `Fetch every followed creator's releases in the configured categories and
print those released on or after the cutoff, oldest first.

A summary with entry, duplicate and failure counts is written to stderr.
Creators whose releases cannot be fetched are reported in the summary and
do not fail the run unless --fail-on-partial is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			failOnPartial, _ := cmd.Flags().GetBool("fail-on-partial")
			noLogin, _ := cmd.Flags().GetBool("no-login")
			return a.runDigest(cmd.Context(), failOnPartial, !noLogin && stdinIsTerminal(a))
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.StringP("format", "f", "text", "output format (text, table, json)")
	fs.StringSlice("categories", []string{"album", "single"}, "release categories (album, single, compilation, appears_on)")
	fs.String("cutoff-mode", "rolling", "cutoff mode (rolling, week_start)")
	fs.Int("window-days", 7, "days covered by the rolling cutoff, today included")
	fs.String("week-start", "friday", "weekday that starts a week for the week_start cutoff")
	fs.String("date-policy", "period_start", "partial release dates (period_start, exclude)")
	fs.StringSlice("link-priority", []string{"spotify"}, "preferred link providers")
	fs.Int("max-concurrency", 0, "maximum concurrent creator fetches (0 = unbounded)")
	fs.String("market", "from_token", "market used for release availability")
	fs.Int("max-attempts", 1, "attempts per catalog request (1 disables retries)")
	fs.Bool("cache", false, "cache catalog responses in redis and revalidate them")
	fs.String("pushgateway", "", "push run metrics to this Pushgateway URL")
	fs.Bool("fail-on-partial", false, "exit with status 4 when any creator fetch fails")
	fs.Bool("no-login", false, "never prompt for a login; fail when no token is stored")
}

func stdinIsTerminal(a *app) bool {
	f, ok := a.stdin.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// runDigest executes one run and writes the report.
func (a *app) runDigest(ctx context.Context, failOnPartial, interactive bool) error {
	cfg := a.cfg
	if err := cfg.RequireCredentials(); err != nil {
		return withCode(ExitConfig, err)
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return withCode(ExitConfig, err)
	}

	rdb, err := a.redisClient(ctx)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	provider, err := a.provider(rdb, interactive)
	if err != nil {
		return err
	}
	httpClient, err := provider.Client(ctx)
	if err != nil {
		return withCode(ExitAuth, err)
	}

	clientCfg := client.DefaultConfig(httpClient, userAgent(cfg.Catalog.UserAgent))
	clientCfg.BaseURL = cfg.Catalog.BaseURL
	clientCfg.Market = cfg.Catalog.Market
	clientCfg.Timeout = cfg.Catalog.Timeout
	clientCfg.Retry.MaxAttempts = cfg.Catalog.MaxAttempts
	if cfg.Cache.Enabled {
		clientCfg.Cache = cache.NewManager(rdb, cache.WithRetention(cfg.Cache.Retention))
		clientCfg.CacheScope = cfg.Auth.ClientID
	}
	catalogClient, err := client.New(clientCfg)
	if err != nil {
		return withCode(ExitConfig, err)
	}

	opts, err := cfg.RunOptions()
	if err != nil {
		return withCode(ExitConfig, err)
	}
	opts.RunID = a.runID

	res, err := radar.New(catalogClient, opts).Run(ctx)
	a.pushMetrics()
	if err != nil {
		if auth.IsAuthError(err) || client.IsAuth(err) {
			return withCode(ExitAuth, err)
		}
		return err
	}

	if err := report.Write(a.stdout, format, res.Report.Entries); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	printSummary(a.stderr, res, logging.IsTerminal(a.stderr))

	if failOnPartial && res.Partial() {
		return withCode(ExitPartial, fmt.Errorf("%d creator fetches failed", res.Summary.FailedCount()))
	}
	return nil
}

// redisClient connects to redis when the cache or the redis token store needs it.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	cfg := a.cfg
	if !cfg.Cache.Enabled && cfg.Auth.TokenStore != config.TokenStoreRedis {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Debug().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	return rdb, nil
}

// provider builds the credential provider around the configured token store.
func (a *app) provider(rdb *redis.Client, interactive bool) (*auth.Provider, error) {
	cfg := a.cfg

	var store auth.TokenStore
	if cfg.Auth.TokenStore == config.TokenStoreRedis {
		store = auth.NewRedisStore(rdb, cfg.Auth.RedisKey)
	} else {
		path, err := cfg.TokenPath()
		if err != nil {
			return nil, withCode(ExitConfig, err)
		}
		store = auth.NewFileStore(path)
	}

	p, err := auth.NewProvider(auth.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURI:  cfg.Auth.RedirectURI,
		AuthURL:      cfg.Auth.AuthURL,
		TokenURL:     cfg.Auth.TokenURL,
		Store:        store,
		Interactive:  interactive,
		In:           a.stdin,
		Out:          a.stderr,
	})
	if err != nil {
		return nil, withCode(ExitConfig, err)
	}
	return p, nil
}

// pushMetrics pushes run metrics when a Pushgateway is configured. Failures are logged only.
func (a *app) pushMetrics() {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := metrics.Push(ctx, metrics.PushConfig{
		URL:      a.cfg.Metrics.PushgatewayURL,
		Job:      a.cfg.Metrics.Job,
		Grouping: map[string]string{"run_id": a.runID},
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("Failed to push metrics")
	}
}

func userAgent(base string) string {
	return fmt.Sprintf("%s/%s (+https://github.com/Sternrassler/release-radar)", base, version)
}
