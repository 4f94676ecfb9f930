package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

var errCatalogNotConfigured = errors.New("catalog not configured")

var linkCmd = &cobra.Command{
	Use:   "link <parent-type> <entity-id> <record-id>",
	Short: "Mirror a CRM entity onto a Content record",
	Long: `Link records that Content record <record-id> mirrors CRM entity
<entity-id>. parent-type is contact, activity or entity. A record mirrors at
most one entity of each parent type, and re-linking replaces the old link.

Example:
  fieldsync link contact 7 42`,
	Args: cobra.ExactArgs(3),
	RunE: runLink,
}

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Manage Record-Set fields",
}

var (
	fieldFilters []string
	fieldLabel   string
)

var fieldAddCmd = &cobra.Command{
	Use:   "add <record-id> <selector> <kind>",
	Short: "Declare a Record-Set field on a Content record",
	Long: `Add declares that Content record <record-id> stores rows of <kind> under
<selector>. Kinds: address, phone, phone_single, email, multiset, attachment.

--filter narrows the field to CRM records whose sub-field equals a value;
the same values are set on records the field creates.

Example:
  fieldsync field add 42 field_mobile phone_single --filter phone_type_id=2`,
	Args: cobra.ExactArgs(3),
	RunE: runFieldAdd,
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage Content files",
}

var fileAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Register a local file for attachment rows",
	Long: `Add registers a local file and prints its file ID. Reference the ID from
an attachment row's file_id to upload it with the next push.`,
	Args: cobra.ExactArgs(1),
	RunE: runFileAdd,
}

func init() {
	fieldAddCmd.Flags().StringArrayVar(&fieldFilters, "filter", nil, "Discriminator as key=value (repeatable)")
	fieldAddCmd.Flags().StringVar(&fieldLabel, "label", "", "Human-readable field name")
	fieldCmd.AddCommand(fieldAddCmd)
	fileCmd.AddCommand(fileAddCmd)

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(fieldCmd)
	rootCmd.AddCommand(fileCmd)
}

func runLink(cmd *cobra.Command, args []string) error {
	if catalog == nil {
		return errCatalogNotConfigured
	}

	parentType := strings.ToLower(args[0])
	if !validParent(parentType) {
		return fmt.Errorf("%w: unknown parent type %q (use contact, activity or entity)", domain.ErrInvalidInput, args[0])
	}
	entityID, err := parseID("entity-id", args[1])
	if err != nil {
		return err
	}
	recordID, err := parseID("record-id", args[2])
	if err != nil {
		return err
	}

	if err := catalog.Map(cmd.Context(), parentType, entityID, recordID); err != nil {
		return fmt.Errorf("failed to link: %w", err)
	}
	cmd.Printf("Linked %s %d to record %d\n", parentType, entityID, recordID)
	return nil
}

func runFieldAdd(cmd *cobra.Command, args []string) error {
	if catalog == nil {
		return errCatalogNotConfigured
	}

	recordID, err := parseID("record-id", args[0])
	if err != nil {
		return err
	}
	kind, err := domain.ParseKind(args[2])
	if err != nil {
		return err
	}
	filter, err := parseFilters(fieldFilters)
	if err != nil {
		return err
	}

	def := domain.FieldDef{
		Selector: args[1],
		Kind:     kind,
		Filter:   filter,
		Label:    fieldLabel,
	}
	if err := catalog.AddField(cmd.Context(), recordID, def); err != nil {
		return fmt.Errorf("failed to add field: %w", err)
	}
	cmd.Printf("Added %s field %s to record %d\n", kind, def.Selector, recordID)
	return nil
}

func runFileAdd(cmd *cobra.Command, args []string) error {
	if catalog == nil {
		return errCatalogNotConfigured
	}

	id, err := catalog.AddFile(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to add file: %w", err)
	}
	cmd.Printf("Added file %d\n", id)
	return nil
}

func validParent(parentType string) bool {
	switch parentType {
	case domain.ParentContact, domain.ParentActivity, domain.ParentEntity:
		return true
	default:
		return false
	}
}

// parseFilters turns key=value pairs into a filter. Empty input gives nil.
func parseFilters(pairs []string) (domain.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(domain.Filter, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: filter %q must be key=value", domain.ErrInvalidInput, pair)
		}
		filter[key] = strings.TrimSpace(value)
	}
	return filter, nil
}
