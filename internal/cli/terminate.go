package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"arbejdsret/internal/models"
	"arbejdsret/internal/service/assistant"
)

var (
	termReq  models.TerminationRequest
	termJSON bool
)

var terminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Generate a termination package",
	Long: `Generate a termination letter with notice period, last working day and
legal reference for one employee.

Examples:
  arbejdsret terminate --name "Mette Jensen" --title Bogholder \
    --hire-date 2020-01-01 --address "Nørregade 4, 1165 København K" \
    --funktionaer --date 2024-06-03 --reason "Nedskæringer"`,
	RunE: runTerminate,
}

func init() {
	rootCmd.AddCommand(terminateCmd)
	f := terminateCmd.Flags()
	f.StringVar(&termReq.Employee.Name, "name", "", "Employee name")
	f.StringVar(&termReq.Employee.Title, "title", "", "Job title")
	f.StringVar(&termReq.Employee.HireDate, "hire-date", "", "Hire date (YYYY-MM-DD)")
	f.StringVar(&termReq.Employee.Address, "address", "", "Employee address")
	f.BoolVar(&termReq.Employee.IsFunktionaer, "funktionaer", false, "Employee is covered by Funktionærloven")
	f.StringVar(&termReq.TerminationDate, "date", "", "Date the notice is given (YYYY-MM-DD)")
	f.StringVar(&termReq.Reason, "reason", "", "Reason for termination")
	f.StringVar(&termReq.Notes, "notes", "", "Additional notes")
	f.BoolVar(&termJSON, "json", false, "Print the result as JSON")
}

func runTerminate(cmd *cobra.Command, args []string) error {
	if err := termReq.Validate(); err != nil {
		return err
	}
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.Wizard.Submit(cmd.Context(), termReq)
	if err != nil {
		return friendly(err, assistant.GenerationFailedMessage)
	}
	out := cmd.OutOrStdout()
	if termJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printTermination(out, res)
	return nil
}
