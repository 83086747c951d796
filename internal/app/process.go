package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/blindspot/internal/cli"
	"horse.fit/blindspot/internal/config"
	"horse.fit/blindspot/internal/db"
	"horse.fit/blindspot/internal/gemini"
	"horse.fit/blindspot/internal/logging"
	"horse.fit/blindspot/internal/pipeline"
	"horse.fit/blindspot/internal/runlock"
	"horse.fit/blindspot/internal/store"
)

// exitAlreadyRunning distinguishes a lock conflict from other failures
// so schedulers can tell overlap from breakage.
const exitAlreadyRunning = 3

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	// The lock comes before any state is touched: an overlapping run
	// must abort with nothing mutated.
	lock, err := runlock.Acquire(cfg.LockFile)
	if errors.Is(err, runlock.ErrAlreadyRunning) {
		logger.Warn().Str("lock_file", cfg.LockFile).Msg("pipeline already running, aborting")
		fmt.Fprintln(os.Stderr, "pipeline already running")
		return exitAlreadyRunning
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to acquire run lock")
		fmt.Fprintf(os.Stderr, "Failed to acquire run lock: %v\n", err)
		return 1
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.Warn().Err(releaseErr).Msg("failed to release run lock")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("process command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKeyList(), cfg.EmbeddingModel, cfg.ExtractionModel, logger)
	if err != nil {
		logger.Error().Err(err).Msg("process command needs embedding API keys")
		fmt.Fprintf(os.Stderr, "Failed to build embedding client: %v\n", err)
		return 1
	}

	svc := pipeline.NewService(cfg, store.New(pool, logger), client, nil, logger)
	result, err := svc.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline run failed")
		fmt.Fprintf(os.Stderr, "Pipeline run failed: %v\n", err)
		return 1
	}

	fmt.Printf("process candidates=%d clustered=%d dropped=%d new_clusters=%d trending=%d\n",
		result.Cluster.Candidates, result.Cluster.Clustered, result.Cluster.Dropped,
		result.Cluster.NewClusters, result.Trending.Trending)
	return 0
}
