package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"formledger/internal/logger"
	"formledger/internal/pipeline"
	"formledger/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-or-image...]",
	Short: "Reconstruct the ledgers of every image in a folder",
	Long: `Process every image given, or found (recursively) in the folders given,
and reconstruct one ledger per image. Documents are processed concurrently; a failing document is
reported and never stops the others.

OCR calls are throttled by OCR_MAX_CONCURRENT and OCR_RATE_PER_MINUTE
independently of --concurrency.`,
	Example: `  # Reconstruct every image and print a summary
  formledger batch ./scans

  # Reconstruct a few pages
  formledger batch page-01.jpg page-02.jpg

  # Persist to PostgreSQL with 8 documents in flight
  formledger batch ./scans --store postgres --concurrency 8

  # Write one workbook per image next to the scans
  formledger batch ./scans --xlsx-dir ./out`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

// BatchOutput is the JSON document printed with --json.
type BatchOutput struct {
	Documents int             `json:"documents"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Records   int             `json:"records"`
	Inserted  int             `json:"inserted"`
	Duration  string          `json:"duration"`
	Results   []models.Result `json:"results"`
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("prefix", "", "Document number prefix for every image (default: detected per image)")
	batchCmd.Flags().String("store", "", "Store backend: none, postgres, sqlite or sheets (default: $STORE_BACKEND)")
	batchCmd.Flags().Int("concurrency", 0, "Documents processed in parallel (default: $BATCH_CONCURRENCY)")
	batchCmd.Flags().String("xlsx-dir", "", "Write one XLSX workbook per image into this folder")
	batchCmd.Flags().Bool("json", false, "Print all results as JSON")
	batchCmd.Flags().Bool("dry-run", false, "Reconstruct without writing to the store")
	batchCmd.Flags().Bool("verbose", false, "Print every table")
	batchCmd.Flags().Duration("timeout", 30*time.Minute, "Timeout for the whole batch")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	xlsxDir, _ := cmd.Flags().GetString("xlsx-dir")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	verbose, _ := cmd.Flags().GetBool("verbose")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.BatchConcurrency
	}

	var images []string
	for _, root := range args {
		found, err := pipeline.FindImages(root)
		if err != nil {
			return fmt.Errorf("failed to list images in %s: %w", root, err)
		}
		images = append(images, found...)
	}
	if len(images) == 0 {
		fmt.Fprintln(os.Stderr, "No images found.")
		return nil
	}
	if xlsxDir != "" {
		if err := os.MkdirAll(xlsxDir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", xlsxDir, err)
		}
	}

	log.Info().
		Strs("inputs", args).
		Int("images", len(images)).
		Int("concurrency", concurrency).
		Str("store", cfg.StoreBackend).
		Bool("dry_run", dryRun).
		Msg("Starting batch reconstruction")

	ctx, cancel := createContext(timeout, log)
	defer cancel()

	src, err := createTokenSource(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	processor := pipeline.NewProcessor(src, st, cfg.GetPipelineOptions(dryRun))

	progress := func(done, total int, report *pipeline.Report) {
		if xlsxDir != "" && report.Reconstruction != nil {
			path := filepath.Join(xlsxDir, workbookName(report.Result.Source))
			if err := writeWorkbook(path, report, log); err != nil {
				report.Result.AddError(err.Error())
			}
		}
		if jsonOutput {
			return
		}
		fmt.Fprintf(os.Stderr, "[%d/%d] %s - %s (%s)\n", done, total,
			filepath.Base(report.Result.Source), statusEmoji(report.Result.Success), report.Result.Summary)
		if verbose && report.Result.Table != nil {
			fmt.Println(*report.Result.Table)
			fmt.Println()
		}
	}

	summary := pipeline.RunBatch(ctx, processor, images, pipeline.OpenFile, concurrency, progress)

	if jsonOutput {
		out := BatchOutput{
			Documents: len(summary.Reports),
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
			Records:   summary.Records,
			Inserted:  summary.Inserted,
			Duration:  summary.Duration.String(),
			Results:   make([]models.Result, 0, len(summary.Reports)),
		}
		for _, r := range summary.Reports {
			out.Results = append(out.Results, r.Result)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		if err := writeOutput("", data, log); err != nil {
			return err
		}
	} else {
		printBatchSummary(summary, cfg.StoreBackend, dryRun)
	}

	if summary.Succeeded == 0 {
		return fmt.Errorf("all %d documents failed", summary.Failed)
	}
	return nil
}

func printBatchSummary(summary *pipeline.BatchSummary, backend string, dryRun bool) {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Documents: %d\n", len(summary.Reports))
	fmt.Printf("Succeeded: %d\n", summary.Succeeded)
	if summary.Failed > 0 {
		fmt.Printf("Failed: %d\n", summary.Failed)
	}
	fmt.Printf("Records: %d\n", summary.Records)
	if !dryRun && backend != "none" {
		fmt.Printf("Stored (%s): %d\n", backend, summary.Inserted)
	}
	fmt.Printf("Duration: %s\n", summary.Duration.Round(time.Millisecond))

	for _, r := range summary.Reports {
		if len(r.Result.Errors) == 0 {
			continue
		}
		fmt.Printf("\n%s:\n", filepath.Base(r.Result.Source))
		for _, msg := range r.Result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}
}

// workbookName maps scans/page-01.jpg to page-01.xlsx.
func workbookName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".xlsx"
}

func statusEmoji(success bool) string {
	if success {
		return "✅"
	}
	return "❌"
}
