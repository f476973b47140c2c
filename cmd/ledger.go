package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"formledger/internal/export"
	"formledger/internal/logger"
	"formledger/internal/ocr"
	"formledger/internal/pipeline"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger [image-file]",
	Short: "Reconstruct the ledger of a handwritten form",
	Long: `Run OCR on a photo of a handwritten tabular form and reconstruct its
records: identifier, document number, time and status.

Rows are grouped by vertical position, ditto marks are resolved from the rows
above, shorthand document numbers are completed with the detected prefix and
records are ordered chronologically with the business day rolling over at
05:00. The three-column table is printed to stdout.

With --store (or STORE_BACKEND) the records are also inserted into
PostgreSQL, SQLite or a Google Sheet. Records that fail to insert are reported
without stopping the others.`,
	Example: `  # Print the reconstructed table
  formledger ledger page.jpg

  # Force the document number prefix
  formledger ledger page.jpg --prefix 168

  # Reconstruct from a saved token file and export a workbook
  formledger ledger --tokens page.tokens.json --xlsx page.xlsx

  # Persist to SQLite and print the full result as JSON
  formledger ledger page.jpg --store sqlite --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)

	ledgerCmd.Flags().String("prefix", "", "Document number prefix (default: detected)")
	ledgerCmd.Flags().String("tokens", "", "Reconstruct from a token JSON file instead of running OCR")
	ledgerCmd.Flags().String("store", "", "Store backend: none, postgres, sqlite or sheets (default: $STORE_BACKEND)")
	ledgerCmd.Flags().String("xlsx", "", "Write the ordered records to an XLSX workbook")
	ledgerCmd.Flags().Bool("json", false, "Print the full result as JSON")
	ledgerCmd.Flags().Bool("dry-run", false, "Reconstruct without writing to the store")
	ledgerCmd.Flags().Int("timeout", 180, "Processing timeout in seconds")
}

func runLedger(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ledger")

	tokensPath, _ := cmd.Flags().GetString("tokens")
	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	fromTokens := tokensPath != ""
	var inputPath string
	switch {
	case fromTokens && len(args) == 1:
		return fmt.Errorf("pass either an image or --tokens, not both")
	case fromTokens:
		inputPath = tokensPath
	case len(args) == 1:
		inputPath = args[0]
	default:
		return fmt.Errorf("an image file or --tokens is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if _, err := validateInputFile(inputPath, log); err != nil {
		return err
	}

	log.Info().
		Str("file", inputPath).
		Bool("tokens", fromTokens).
		Str("store", cfg.StoreBackend).
		Bool("dry_run", dryRun).
		Msg("Starting ledger reconstruction")

	ctx, cancel := createContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	var src ocr.TokenSource
	if !fromTokens {
		src, err = createTokenSource(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer src.Close()
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	processor := pipeline.NewProcessor(src, st, cfg.GetPipelineOptions(dryRun))

	report, err := processInput(ctx, processor, inputPath, fromTokens)
	if err != nil {
		return handleError(err, log)
	}

	if xlsxPath != "" && report.Reconstruction != nil {
		if err := writeWorkbook(xlsxPath, report, log); err != nil {
			return err
		}
	}

	if err := printReport(report, jsonOutput, log); err != nil {
		return err
	}

	if report.Err != nil {
		return handleError(report.Err, log)
	}
	if !report.Result.Success {
		return fmt.Errorf("no record could be stored (%d errors)", len(report.Result.Errors))
	}
	return nil
}

func processInput(ctx context.Context, p *pipeline.Processor, path string, fromTokens bool) (*pipeline.Report, error) {
	if fromTokens {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		tokens, err := ocr.ParseTokenPayload(data)
		if err != nil {
			return nil, err
		}
		return p.ProcessTokens(ctx, path, tokens), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()
	return p.Process(ctx, path, file), nil
}

func writeWorkbook(path string, report *pipeline.Report, log zerolog.Logger) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	defer file.Close()

	if err := export.WriteXLSX(file, report.Reconstruction.Records); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	log.Info().
		Str("output_file", path).
		Int("records", len(report.Reconstruction.Records)).
		Msg("Workbook written")
	return nil
}

// printReport prints the result JSON, or the table on stdout with the
// summary and insert errors on stderr.
func printReport(report *pipeline.Report, jsonOutput bool, log zerolog.Logger) error {
	if jsonOutput {
		data, err := json.MarshalIndent(report.Result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		return writeOutput("", data, log)
	}

	if report.Result.Table != nil {
		if err := writeOutput("", []byte(*report.Result.Table), log); err != nil {
			return err
		}
	}
	fmt.Fprintln(os.Stderr, report.Result.Summary)
	if report.Err == nil {
		for _, msg := range report.Result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", strings.TrimSpace(msg))
		}
	}
	return nil
}
