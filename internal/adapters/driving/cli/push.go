package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/services"
)

var (
	pushFile  string
	pushForce bool
	pushJSON  bool
)

var pushCmd = &cobra.Command{
	Use:   "push <record-id> <field>",
	Short: "Push a Content field's rows to the CRM",
	Long: `Push reconciles the rows of one Record-Set field against the CRM child
records of the entity the Content record mirrors.

Rows are read as a JSON array from --file, or stdin when no file is given.
Rows without a remote_id are created, rows with one are updated, and CRM
records no row references are deleted. The field is then saved once with
every newly assigned remote_id.

Examples:
  fieldsync push 42 field_phone --file phones.json
  echo '[{"phone":"555-0100","is_primary":1}]' | fieldsync push 42 field_phone`,
	Args: cobra.ExactArgs(2),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVarP(&pushFile, "file", "f", "", "JSON file with the field rows (default: stdin)")
	pushCmd.Flags().BoolVar(&pushForce, "force", false, "Let resulting CRM notifications flow back to Content")
	pushCmd.Flags().BoolVar(&pushJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(pushCmd)
}

// pushReport is the JSON form of a push result.
type pushReport struct {
	Stats    domain.Stats     `json:"stats"`
	Assigned map[string]int64 `json:"assigned"`
	Removed  []int64          `json:"removed"`
	Failures []string         `json:"failures"`
}

func runPush(cmd *cobra.Command, args []string) error {
	if fieldSync == nil {
		return errNotConfigured
	}

	recordID, err := parseID("record-id", args[0])
	if err != nil {
		return err
	}
	data, err := readInput(cmd, pushFile)
	if err != nil {
		return fmt.Errorf("failed to read rows: %w", err)
	}
	var rows domain.FieldValue
	if err := decodeJSON(data, &rows); err != nil {
		return fmt.Errorf("failed to parse rows: %w", err)
	}

	ctx := services.WithRequest(cmd.Context())
	if pushForce {
		ctx = services.ForcePropagation(ctx)
	}

	res, err := fieldSync.Push(ctx, recordID, args[1], rows)
	if res != nil {
		if pushJSON {
			if perr := printJSON(cmd, newPushReport(res)); perr != nil {
				return perr
			}
		} else {
			printResult(cmd, res)
		}
	}
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	return nil
}

func newPushReport(res *domain.Result) pushReport {
	report := pushReport{
		Stats:    res.Stats,
		Assigned: make(map[string]int64, len(res.Assigned)),
		Removed:  res.Removed,
		Failures: make([]string, 0, len(res.Failures)),
	}
	for key, rec := range res.Assigned {
		report.Assigned[fmt.Sprint(key)] = rec.ID
	}
	for _, f := range res.Failures {
		report.Failures = append(report.Failures, f.Error())
	}
	return report
}

func printResult(cmd *cobra.Command, res *domain.Result) {
	s := res.Stats
	cmd.Printf("Created: %d  Updated: %d  Deleted: %d  Unchanged: %d  Failed: %d\n",
		s.Created, s.Updated, s.Deleted, res.Skipped, len(res.Failures))

	keys := make([]int, 0, len(res.Assigned))
	for k := range res.Assigned {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		cmd.Printf("  row %d -> remote_id %d\n", k, res.Assigned[k].ID)
	}
	for _, f := range res.Failures {
		cmd.Printf("  ! %s\n", f.Error())
	}
}
