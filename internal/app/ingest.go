package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
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

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	skipEntities := fs.Bool("skip-entities", false, "Skip entity extraction for new articles")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "ingest requires at least one payload file (use - for stdin)")
		return 2
	}

	payloads, err := readPayloadFiles(files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payloads: %v\n", err)
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
		logger.Error().Err(err).Msg("ingest command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	var ai pipeline.AIProvider
	if !*skipEntities {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKeyList(), cfg.EmbeddingModel, cfg.ExtractionModel, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("entity extraction disabled: no usable API keys")
		} else {
			ai = client
		}
	}

	svc := pipeline.NewService(cfg, store.New(pool, logger), ai, nil, logger)
	result, err := svc.Ingest(ctx, payloads)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("received", result.Received).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("invalid", result.Invalid).
		Msg("ingest completed")
	fmt.Printf("ingest received=%d inserted=%d duplicates=%d invalid=%d\n",
		result.Received, result.Inserted, result.Duplicates, result.Invalid)
	return 0
}

// readPayloadFiles loads article payloads from files. Each file may
// hold a single JSON object or a JSON array of objects; "-" reads
// standard input.
func readPayloadFiles(paths []string) ([]json.RawMessage, error) {
	var payloads []json.RawMessage
	for _, path := range paths {
		var (
			raw []byte
			err error
		)
		if path == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			return nil, fmt.Errorf("%s is empty", path)
		}

		if trimmed[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return nil, fmt.Errorf("decode array in %s: %w", path, err)
			}
			payloads = append(payloads, items...)
			continue
		}
		payloads = append(payloads, json.RawMessage(trimmed))
	}
	return payloads, nil
}
