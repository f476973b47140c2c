package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"formledger/internal/ledger"
	"formledger/internal/logger"
	"formledger/internal/ocr"
	"formledger/internal/pipeline"
)

// OCR providers
const (
	ProviderVision     = ocr.ProviderVision
	ProviderDocumentAI = ocr.ProviderDocumentAI
	ProviderTesseract  = ocr.ProviderTesseract
	ProviderFile       = ocr.ProviderFile
)

// Store backends
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreSheets   = "sheets"
)

type Config struct {
	// OCR Configuration
	OCRProvider       string
	OCRTimeout        time.Duration
	OCRRatePerMinute  int
	OCRMaxConcurrent  int
	TesseractLanguage string

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// Reconstruction Configuration
	ManualPrefix       string
	FallbackIdentifier string
	RowTolerance       float64
	PrefixWindow       int

	// Persistence Configuration
	StoreBackend         string
	DatabaseURL          string
	SQLitePath           string
	LedgerTable          string
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Batch Configuration
	BatchConcurrency int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OCRProvider:                strings.ToLower(getEnv("OCR_PROVIDER", ProviderVision)),
		OCRTimeout:                 time.Duration(getEnvInt("OCR_TIMEOUT", 60)) * time.Second,
		OCRRatePerMinute:           getEnvInt("OCR_RATE_PER_MINUTE", 60),
		OCRMaxConcurrent:           getEnvInt("OCR_MAX_CONCURRENT", 2),
		TesseractLanguage:          getEnv("TESSERACT_LANGUAGE", "spa+eng"),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		ManualPrefix:               getEnv("LEDGER_PREFIX", ""),
		FallbackIdentifier:         getEnv("LEDGER_FALLBACK_ID", ledger.DefaultFallbackIdentifier),
		RowTolerance:               getEnvFloat("LEDGER_ROW_TOLERANCE", ledger.DefaultRowTolerance),
		PrefixWindow:               getEnvInt("LEDGER_PREFIX_WINDOW", ledger.DefaultPrefixWindow),
		StoreBackend:               strings.ToLower(getEnv("STORE_BACKEND", StoreNone)),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		SQLitePath:                 getEnv("SQLITE_PATH", "ledger.db"),
		LedgerTable:                getEnv("LEDGER_TABLE", "registros"),
		GoogleSheetURL:             getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:       getEnv("GOOGLE_SHEET_WORKSHEET", "Registros"),
		BatchConcurrency:           getEnvInt("BATCH_CONCURRENCY", 4),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCRProvider {
	case ProviderVision, ProviderTesseract, ProviderFile:
	case ProviderDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai provider")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai provider")
		}
	default:
		return fmt.Errorf("unknown OCR_PROVIDER %q", c.OCRProvider)
	}

	switch c.StoreBackend {
	case StoreNone:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StoreSheets:
		if c.GoogleSheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL is required for the sheets store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.RowTolerance <= 0 {
		return fmt.Errorf("LEDGER_ROW_TOLERANCE must be positive")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}
	if c.OCRMaxConcurrent < 1 {
		return fmt.Errorf("OCR_MAX_CONCURRENT must be at least 1")
	}
	if c.OCRRatePerMinute < 0 {
		return fmt.Errorf("OCR_RATE_PER_MINUTE must not be negative")
	}
	if c.OCRTimeout <= 0 {
		return fmt.Errorf("OCR_TIMEOUT must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// GetOCRConfig returns the token source configuration from the main config
func (c *Config) GetOCRConfig() ocr.Config {
	return ocr.Config{
		Provider:           c.OCRProvider,
		TesseractLanguages: c.TesseractLanguage,
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:        c.GoogleCloudProject,
			Location:         c.GoogleCloudLocation,
			ProcessorID:      c.DocumentAIProcessorID,
			ProcessorVersion: c.DocumentAIProcessorVersion,
			Timeout:          c.OCRTimeout,
		},
	}
}

// GetLedgerOptions returns the reconstruction options from the main config
func (c *Config) GetLedgerOptions() ledger.Options {
	opts := ledger.DefaultOptions()
	opts.ManualPrefix = c.ManualPrefix
	opts.FallbackIdentifier = c.FallbackIdentifier
	opts.RowTolerance = c.RowTolerance
	opts.PrefixWindow = c.PrefixWindow
	return opts
}

// GetPipelineOptions returns the processor options from the main config
func (c *Config) GetPipelineOptions(dryRun bool) pipeline.Options {
	return pipeline.Options{
		Ledger:           c.GetLedgerOptions(),
		OCRTimeout:       c.OCRTimeout,
		MaxOCRConcurrent: int64(c.OCRMaxConcurrent),
		OCRRatePerMinute: c.OCRRatePerMinute,
		DryRun:           dryRun,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return f
}
