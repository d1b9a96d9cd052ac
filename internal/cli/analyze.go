package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"arbejdsret/internal/document"
	"arbejdsret/internal/service/assistant"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Explain a contract, letter or scanned document",
	Long: `Send a document to the clause analyzer. Text and markdown files are sent
as text; PDFs and images (png, jpeg, gif, webp, heic) are sent as data.

Examples:
  arbejdsret analyze kontrakt.pdf
  arbejdsret analyze advarsel.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	reader, err := document.NewReader(cmd.Context(), a.cfg.BasicConfig.MaxUploadBytes)
	if err != nil {
		return err
	}
	doc, err := reader.ReadFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	text, err := a.service.Analyzer.Analyze(cmd.Context(), doc)
	if err != nil {
		return friendly(err, assistant.AnalysisFailedMessage)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
