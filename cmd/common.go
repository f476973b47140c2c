package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"formledger/internal/config"
	"formledger/internal/ledger"
	"formledger/internal/ocr"
	"formledger/internal/pipeline"
	"formledger/internal/sheets"
	"formledger/internal/store"
)

// loadConfig reads the environment and applies the flags shared by the
// commands that define them.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		os.Setenv("OCR_PROVIDER", provider)
	}
	if cmd.Flags().Lookup("store") != nil {
		if backend, _ := cmd.Flags().GetString("store"); backend != "" {
			os.Setenv("STORE_BACKEND", backend)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Lookup("prefix") != nil {
		if prefix, _ := cmd.Flags().GetString("prefix"); prefix != "" {
			cfg.ManualPrefix = prefix
		}
	}
	return cfg, nil
}

// createContext creates a context bounded by timeout that is also canceled
// on SIGINT or SIGTERM.
func createContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// createTokenSource builds the configured OCR provider.
func createTokenSource(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.TokenSource, error) {
	src, err := ocr.New(ctx, cfg.GetOCRConfig())
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().Err(err).Msg("Google Cloud credentials validation failed")
			return nil, fmt.Errorf("Google Cloud credentials validation failed. Please set one of:\n\n" +
				"1. GOOGLE_APPLICATION_CREDENTIALS with the path to a service account JSON file\n" +
				"2. GOOGLE_CREDENTIALS with the inline JSON credentials\n" +
				"3. Application Default Credentials (gcloud auth application-default login)\n\n" +
				"Original error: %w", err)
		}
		if errors.Is(err, ocr.ErrTesseractNotEnabled) {
			return nil, fmt.Errorf("the tesseract provider needs a binary built with -tags tesseract: %w", err)
		}
		log.Error().Err(err).Str("provider", cfg.OCRProvider).Msg("Failed to create OCR provider")
		return nil, fmt.Errorf("failed to create OCR provider: %w", err)
	}

	log.Debug().Str("provider", cfg.OCRProvider).Msg("OCR provider created")
	return src, nil
}

// openStore opens the configured backend. It returns a nil store for the
// "none" backend.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.StoreBackend {
	case config.StoreNone:
		return nil, nil
	case config.StorePostgres:
		pgCfg := store.DefaultPostgresConfig(cfg.DatabaseURL)
		pgCfg.Table = cfg.LedgerTable
		st, err = store.OpenPostgres(ctx, pgCfg)
	case config.StoreSQLite:
		st, err = store.OpenSQLite(ctx, store.SQLiteConfig{Path: cfg.SQLitePath, Table: cfg.LedgerTable})
	case config.StoreSheets:
		st, err = sheets.NewStore(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open store")
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}

	log.Info().Str("backend", cfg.StoreBackend).Msg("Store opened")
	return st, nil
}

// handleError provides user-friendly messages for document-level failures.
func handleError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled), errors.Is(err, ocr.ErrContextCanceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, ocr.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum 20MB). Try downscaling it")
	case errors.Is(err, ocr.ErrInvalidImage):
		return fmt.Errorf("unsupported or corrupted image. Use PNG, JPEG, GIF, TIFF, BMP or WEBP")
	case errors.Is(err, ocr.ErrInvalidPayload):
		return fmt.Errorf("token file is not valid: %w", err)
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found on the image")
	case errors.Is(err, ledger.ErrNoRows), errors.Is(err, ledger.ErrNoRecords):
		return fmt.Errorf("no ledger could be reconstructed: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Ensure the service account can call the OCR API")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "quota"):
		return fmt.Errorf("OCR API quota exceeded. Lower OCR_RATE_PER_MINUTE or check the project quotas")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues or service unavailability: %w", err)
	case errors.Is(err, pipeline.ErrAcquisition):
		return fmt.Errorf("could not read the document: %w", err)
	default:
		return fmt.Errorf("processing failed: %w", err)
	}
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte, log zerolog.Logger) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Error().Err(err).Str("output_file", path).Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output_file", path).Int("bytes", len(data)).Msg("Output written to file")
	return nil
}
