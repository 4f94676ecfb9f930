package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
)

var errNotConfigured = errors.New("field sync service not configured")

// parseID parses a positive record or entity ID.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", domain.ErrInvalidInput, name, s)
	}
	return id, nil
}

// readInput reads path, or the command's stdin when path is "" or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeJSON decodes data into v, keeping numbers as json.Number so large
// IDs survive.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// decodeEvents accepts a single event object or an array of them.
func decodeEvents(data []byte) ([]domain.RawEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty event input", domain.ErrInvalidInput)
	}
	if trimmed[0] == '[' {
		var events []domain.RawEvent
		if err := decodeJSON(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	var ev domain.RawEvent
	if err := decodeJSON(trimmed, &ev); err != nil {
		return nil, err
	}
	return []domain.RawEvent{ev}, nil
}

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
