package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arbejdsret/internal/config"
	"arbejdsret/internal/service/assistant"
)

var configPath string

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "arbejdsret",
	Short: "Danish employment law assistant for HR",
	Long: `arbejdsret - termination packages, clause analysis and legal chat

Runs the HTTP API used by the browser UI, or drives the same flows from the
terminal. The model credential is read from GEMINI_API_KEY (or API_KEY).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("ARBEJDSRET_CONFIG"), "Path to config.json")
}

// userError shows the user-facing text while keeping the cause for errors.Is.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

func friendly(err error, fallback string) error {
	if err == nil {
		return nil
	}
	config.Logger.WithError(err).Debug("command failed")
	return &userError{msg: assistant.UserMessage(err, fallback), err: err}
}
