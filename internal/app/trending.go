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
	"horse.fit/blindspot/internal/logging"
	"horse.fit/blindspot/internal/pipeline"
	"horse.fit/blindspot/internal/store"
)

func runTrending(args []string) int {
	fs := flag.NewFlagSet("trending", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

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
		logger.Error().Err(err).Msg("trending command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := pipeline.NewService(cfg, store.New(pool, logger), nil, nil, logger)
	result, err := svc.RefreshTrending(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("trending refresh failed")
		fmt.Fprintf(os.Stderr, "Trending refresh failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("checked", result.Checked).
		Int("trending", result.Trending).
		Msg("trending refresh completed")
	fmt.Printf("trending checked=%d trending=%d\n", result.Checked, result.Trending)
	return 0
}
