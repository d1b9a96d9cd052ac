package cli

import (
	"github.com/spf13/cobra"
)

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Show recent Danish employment law news",
	RunE:  runNews,
}

func init() {
	rootCmd.AddCommand(newsCmd)
}

func runNews(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.service.Dashboard.News(cmd.Context())
	if err != nil {
		return friendly(err, "Kunne ikke hente juridiske nyheder.")
	}
	printNews(cmd.OutOrStdout(), items)
	return nil
}
