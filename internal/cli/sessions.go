package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"arbejdsret/internal/models"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		printSessions(cmd.OutOrStdout(), a.service.Chat.Sessions(), a.service.Chat.ActiveID(), time.Now())
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		se, err := a.service.Chat.Session(args[0])
		if err != nil {
			return err
		}
		printTranscript(cmd.OutOrStdout(), se)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.service.Chat.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
		return nil
	},
}

var sessionsTopicCmd = &cobra.Command{
	Use:   "topic <id> <topic>",
	Short: "Change the topic of a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.service.Chat.SetTopic(cmd.Context(), args[0], models.Topic(args[1])); err != nil {
			return fmt.Errorf("set topic %q: %w", args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s now uses topic %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd, sessionsTopicCmd)
}
