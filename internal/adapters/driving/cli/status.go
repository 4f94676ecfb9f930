package cli

import (
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync counters for this process",
	Long: `Status prints the counters the sync service has accumulated. Counters are
per process, so this is most useful after apply or push in the same run, or
through the metrics endpoint of a running watch.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if fieldSync == nil {
		return errNotConfigured
	}

	st, err := fieldSync.Status(cmd.Context())
	if err != nil {
		return err
	}
	if statusJSON {
		return printJSON(cmd, st)
	}

	if runtimeCfg != nil {
		if runtimeCfg.DryRun() {
			cmd.Println("CRM:         dry run (in-memory)")
		} else {
			cmd.Printf("CRM:         %s\n", runtimeCfg.CRM.BaseURL)
		}
	}
	cmd.Printf("Pushes:      %d\n", st.Pushes)
	cmd.Printf("Events:      %d\n", st.Events)
	cmd.Printf("Suppressed:  %d\n", st.Suppressed)
	cmd.Printf("Unmapped:    %d\n", st.Unmapped)
	cmd.Printf("Created:     %d\n", st.Totals.Created)
	cmd.Printf("Updated:     %d\n", st.Totals.Updated)
	cmd.Printf("Deleted:     %d\n", st.Totals.Deleted)
	cmd.Printf("Failed:      %d\n", st.Totals.Failed)
	return nil
}
