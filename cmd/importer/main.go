package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"app/internal/config"
	"app/internal/importer"
	"app/internal/logger"
	"app/internal/platform"

	"github.com/joho/godotenv"
)

func main() {
	// Parse flags
	filePath := flag.String("file", "", "Path to the CSV file to import")
	siteID := flag.String("site", "", "Target site ID")
	serverURL := flag.String("server", "", "Import API base URL (overrides IMPORT_SERVER_URL)")
	token := flag.String("token", "", "Bearer token (overrides IMPORT_TOKEN)")
	platformName := flag.String("platform", platform.PlatformUmami, "Source platform of the CSV file")
	fromStr := flag.String("from", "", "Only import events on or after this date (YYYY-MM-DD)")
	toStr := flag.String("to", "", "Only import events on or before this date (YYYY-MM-DD)")
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found")
	}

	// Load config
	cfg, err := config.LoadImporter()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *token != "" {
		cfg.Token = *token
	}

	if *filePath == "" || *siteID == "" {
		logger.Fatal().Msg("both -file and -site are required")
	}
	if cfg.Token == "" {
		logger.Fatal().Msg("a bearer token is required (-token or IMPORT_TOKEN)")
	}

	userStart, err := parseDateFlag(*fromStr)
	if err != nil {
		logger.Fatal().Msgf("Invalid -from date: %v", err)
	}
	userEnd, err := parseDateFlag(*toStr)
	if err != nil {
		logger.Fatal().Msgf("Invalid -to date: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := os.Open(*filePath)
	if err != nil {
		logger.Fatal().Msgf("Failed to open file: %v", err)
	}

	client := importer.NewClient(cfg.ServerURL, cfg.Token)

	// Create the import and learn the allowed date range
	created, err := client.CreateImport(ctx, *siteID, *platformName, filepath.Base(*filePath))
	if err != nil {
		logger.Fatal().Msgf("Failed to create import: %v", err)
	}
	logger.Info().
		Str("import_id", created.ImportID).
		Time("earliest", created.EarliestAllowedDate).
		Time("latest", created.LatestAllowedDate).
		Msg("import created")

	parser, err := importer.NewParser(importer.Options{
		Platform:         *platformName,
		Earliest:         created.EarliestAllowedDate,
		Latest:           created.LatestAllowedDate,
		UserStart:        userStart,
		UserEnd:          userEnd,
		BatchSize:        cfg.BatchSize,
		ProgressInterval: cfg.ProgressInterval,
		ChunkBuffer:      cfg.ChunkBuffer,
	})
	if err != nil {
		logger.Fatal().Msgf("Failed to configure parser: %v", err)
	}

	go parser.Run(ctx, src)

	uploader := importer.NewUploader(client, *siteID, created.ImportID, importer.UploaderOptions{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
	}, logger)

	result, err := uploader.Run(ctx, parser.Messages())
	if err != nil {
		logger.Fatal().Msgf("Upload failed: %v", err)
	}

	// No batch was ever sent, so the import is still pending and cannot be
	// completed. Delete it to release its concurrency slot.
	if result.BatchesSent == 0 {
		if err := client.DeleteImport(ctx, *siteID, created.ImportID); err != nil {
			logger.Fatal().Msgf("Failed to delete empty import: %v", err)
		}
		logger.Warn().
			Int("parsed", result.ParseSummary.TotalParsed).
			Int("skipped", result.ParseSummary.TotalSkipped).
			Int("parse_errors", result.ParseSummary.TotalErrors).
			Msg("no importable events in file, import deleted")
		for _, detail := range result.ParseSummary.ErrorDetails {
			logger.Warn().Msg(detail)
		}
		return
	}

	final, err := client.CompleteImport(ctx, *siteID, created.ImportID)
	if err != nil {
		logger.Fatal().Msgf("Failed to complete import: %v", err)
	}

	// The server may still be settling the final state if another batch was
	// in flight; poll until it reports a terminal status.
	status := final.Status
	for status != "completed" && status != "failed" {
		select {
		case <-ctx.Done():
			logger.Fatal().Msg("interrupted while waiting for the import to settle")
		case <-time.After(time.Duration(cfg.PollIntervalSec) * time.Second):
		}
		imports, err := client.ListImports(ctx, *siteID)
		if err != nil {
			logger.Fatal().Msgf("Failed to poll import status: %v", err)
		}
		for _, imp := range imports {
			if imp.ImportID == created.ImportID {
				status = imp.Status
			}
		}
	}

	logger.Info().
		Str("status", status).
		Int("batches_sent", result.BatchesSent).
		Int64("imported", result.ImportedCount).
		Int("dropped_by_quota", result.DroppedByQuota).
		Int("parsed", result.ParseSummary.TotalParsed).
		Int("skipped", result.ParseSummary.TotalSkipped).
		Int("parse_errors", result.ParseSummary.TotalErrors).
		Msg("import finished")
	for _, detail := range result.ParseSummary.ErrorDetails {
		logger.Warn().Msg(detail)
	}
	if status == "failed" {
		os.Exit(1)
	}
}

func parseDateFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
