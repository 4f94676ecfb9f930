package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driving"
)

var applyCmd = &cobra.Command{
	Use:   "apply [event.json]",
	Short: "Apply CRM change notifications to Content",
	Long: `Apply reads one CRM notification, or a JSON array of them, and writes each
change onto the mirrored Content fields.

An event looks like:
  {"op": "edit", "object": "Phone", "object_id": 12,
   "payload": {"id": 12, "contact_id": 7, "phone": "555-0100"}}

Input is read from the given file, or stdin. Events for entities with no
mirrored Content record are ignored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	if fieldSync == nil {
		return errNotConfigured
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	data, err := readInput(cmd, path)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	events, err := decodeEvents(data)
	if err != nil {
		return fmt.Errorf("failed to parse events: %w", err)
	}

	applied, err := dispatchAll(cmd, fieldSync, events)
	cmd.Printf("Applied %d of %d event(s)\n", applied, len(events))
	return err
}

// dispatchAll hands every event to sync and returns how many succeeded.
// A failing event does not stop the rest.
func dispatchAll(cmd *cobra.Command, sync driving.FieldSync, events []domain.RawEvent) (int, error) {
	var errs []error
	applied := 0
	for i, ev := range events {
		if err := sync.Dispatch(cmd.Context(), ev); err != nil {
			errs = append(errs, fmt.Errorf("event %d (%s %s %d): %w", i, ev.Op, ev.Object, ev.ObjectID, err))
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}
