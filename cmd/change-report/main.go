// Command change-report aggregates the page changes captured in a time
// window and writes the grouped, sorted report rows as JSON for the
// formatting and delivery tools downstream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/wm-change-report/pkg/cache"
	"github.com/Sternrassler/wm-change-report/pkg/client"
	"github.com/Sternrassler/wm-change-report/pkg/config"
	"github.com/Sternrassler/wm-change-report/pkg/logging"
	"github.com/Sternrassler/wm-change-report/pkg/metrics"
	"github.com/Sternrassler/wm-change-report/pkg/report"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configFile  string
	outPath     string
	metricsFile string
}

func newRootCmd() *cobra.Command {
	v := config.New()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "change-report",
		Short: "Aggregate web monitoring changes into a report dataset",
		Long: `change-report fetches the pages and versions captured in a time window from
the web monitoring API, groups pages by tag, merges each page's diff
annotations and writes the sorted rows of every group as JSON.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v, opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is ./change-report.yaml)")
	flags.String("from", "", "window start, RFC 3339 or YYYY-MM-DD (default: --days before --to)")
	flags.String("to", "", "window end, RFC 3339 or YYYY-MM-DD (default: now)")
	flags.Int("days", 7, "window length in days when --from is not set")
	flags.StringVarP(&opts.outPath, "out", "o", "-", "report output file, - for stdout")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done")

	for key, flag := range map[string]string{
		"window.from": "from",
		"window.to":   "to",
		"window.days": "days",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	return cmd
}

func run(ctx context.Context, v *viper.Viper, opts *options, stdout io.Writer) error {
	cfg, err := config.Load(v, opts.configFile)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
		RunID:  runID,
	})

	if opts.metricsFile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(opts.metricsFile); werr != nil {
				logger.Warn().Err(werr).Str("path", opts.metricsFile).Msg("Failed to write metrics textfile")
			}
		}()
	}

	window, err := cfg.ReportWindow(time.Now())
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, runID)
	if err != nil {
		return err
	}
	defer closeStore()

	apiClient, err := client.New(client.Config{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
		Username:  cfg.API.Username,
		Password:  cfg.API.Password,
		Timeout:   cfg.API.Timeout,
		Retry: client.RetryConfig{
			MaxRetries:  cfg.Retry.MaxRetries,
			BaseBackoff: cfg.Retry.BaseBackoff,
		},
	}, store)
	if err != nil {
		// The run never started, so Run cannot clean up the cache for us.
		if derr := store.Destroy(context.WithoutCancel(ctx)); derr != nil {
			logger.Error().Err(derr).Msg("Failed to destroy run cache")
		}
		return err
	}

	rep, err := report.Run(ctx, report.Deps{
		Client: apiClient,
		Store:  store,
		Logger: &logger,
	}, report.Options{
		Window:        window,
		SourceType:    cfg.Query.SourceType,
		ChunkSize:     cfg.Query.ChunkSize,
		PageDelay:     cfg.Query.PageDelay,
		GroupPrefixes: cfg.Groups.Prefixes,
	})
	if err != nil {
		return err
	}

	return writeReport(rep, opts.outPath, stdout, logger)
}

// openStore builds the run cache for the configured backend. The returned
// close function releases connections; it does not destroy the cache.
func openStore(ctx context.Context, cfg *config.Config, runID string) (cache.Store, func(), error) {
	cacheLogger := logging.NewLogger("cache")

	switch cfg.Cache.Backend {
	case config.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
		}
		cacheLogger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Using Redis run cache")
		store := cache.NewRedisStore(redisClient, runID, cfg.Cache.RedisTTL)
		return store, func() { redisClient.Close() }, nil

	default:
		store, err := cache.OpenFile(cache.FileOptions{
			Path:           cfg.Cache.Path,
			DebounceWindow: cfg.Cache.Debounce,
			Logger:         cacheLogger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func writeReport(rep *report.Report, path string, stdout io.Writer, logger zerolog.Logger) error {
	if path == "" || path == "-" {
		return rep.Encode(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := rep.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}

	logger.Info().Str("path", path).Msg("Report written")
	return nil
}
