package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"formledger/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "formledger",
	Short: "Formledger - rebuild ledgers from photos of handwritten forms",
	Long: `Formledger reads photos of handwritten tabular forms, groups the OCR
output into rows, resolves ditto marks and shorthand document numbers, and
prints the records in chronological order.

Records can be persisted to PostgreSQL, SQLite or a Google Sheet and exported
as an XLSX workbook.`,
	Version:      version,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Formledger CLI executed")

		fmt.Println("Welcome to Formledger!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.PersistentFlags().String("provider", "", "OCR provider: vision, documentai, tesseract or file (default: $OCR_PROVIDER)")
}
