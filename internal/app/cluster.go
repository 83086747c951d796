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
	"horse.fit/blindspot/internal/store"
)

func runCluster(args []string) int {
	fs := flag.NewFlagSet("cluster", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("cluster command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKeyList(), cfg.EmbeddingModel, cfg.ExtractionModel, logger)
	if err != nil {
		logger.Error().Err(err).Msg("cluster command needs embedding API keys")
		fmt.Fprintf(os.Stderr, "Failed to build embedding client: %v\n", err)
		return 1
	}

	svc := pipeline.NewService(cfg, store.New(pool, logger), client, nil, logger)
	result, err := svc.Cluster(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("clustering failed")
		fmt.Fprintf(os.Stderr, "Clustering failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("candidates", result.Candidates).
		Int("clustered", result.Clustered).
		Int("dropped", result.Dropped).
		Int("new_clusters", result.NewClusters).
		Msg("clustering completed")
	fmt.Printf("cluster candidates=%d clustered=%d dropped=%d new_clusters=%d\n",
		result.Candidates, result.Clustered, result.Dropped, result.NewClusters)
	return 0
}
