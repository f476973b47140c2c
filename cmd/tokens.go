package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"formledger/internal/ledger"
	"formledger/internal/logger"
	"formledger/internal/ocr"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens [image-file]",
	Short: "Run OCR on an image and print the raw tokens as JSON",
	Long: `Send an image to the configured OCR provider and print every detected
token with its polygon and confidence.

The output can be fed back to "formledger ledger --tokens" to reconstruct the
ledger without calling the OCR provider again.

Required environment variables (vision and documentai providers):
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Print tokens to stdout
  formledger tokens page.jpg

  # Save tokens for later runs
  formledger tokens page.jpg -o page.tokens.json

  # Use Document AI instead of Vision
  formledger tokens page.jpg --provider documentai`,
	Args: cobra.ExactArgs(1),
	RunE: runTokens,
}

// TokensOutput is the JSON document printed by the tokens command.
type TokensOutput struct {
	FileName           string            `json:"file_name"`
	FileSize           int64             `json:"file_size"`
	Provider           string            `json:"provider"`
	Confidence         float64           `json:"confidence,omitempty"`
	ProcessedAt        time.Time         `json:"processed_at"`
	ProcessingDuration string            `json:"processing_duration"`
	Tokens             []ledger.RawToken `json:"tokens"`
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	tokensCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runTokens(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("tokens")

	outputPath, _ := cmd.Flags().GetString("output")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	imagePath := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fileInfo, err := validateInputFile(imagePath, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	src, err := createTokenSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	file, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	log.Info().
		Str("file", imagePath).
		Str("provider", cfg.OCRProvider).
		Int64("size", fileInfo.Size()).
		Msg("Detecting tokens")

	result, err := src.DetectTokensWithMetadata(ctx, file)
	if err != nil {
		return handleError(err, log)
	}

	out := TokensOutput{
		FileName:           filepath.Base(fileInfo.Name()),
		FileSize:           fileInfo.Size(),
		Provider:           result.Provider,
		Confidence:         result.Confidence,
		ProcessedAt:        result.ProcessedAt,
		ProcessingDuration: result.ProcessingDuration.String(),
		Tokens:             result.Tokens,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	log.Info().
		Int("tokens", len(result.Tokens)).
		Dur("duration", result.ProcessingDuration).
		Msg("Token detection completed")

	return writeOutput(outputPath, data, log)
}

// validateInputFile checks that path is a non-empty regular file within the
// OCR size limit.
func validateInputFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("File not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}
	if fileInfo.Size() > ocr.MaxImageSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxImageSizeBytes).
			Msg("File exceeds maximum size limit")
		return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxImageSizeBytes)
	}
	return fileInfo, nil
}
