package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fieldsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fieldsync/internal/config"
	"github.com/custodia-labs/fieldsync/internal/core/services"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "fieldsync", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"push", "apply", "watch", "status", "link", "field", "file", "settings", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_BootstrapsAndCloses(t *testing.T) {
	SetServices(nil)
	defer SetServices(nil)

	var got Options
	closed := false
	SetBootstrap(func(o Options) (*Services, error) {
		got = o
		return &Services{
			FieldSync: services.NewFieldSyncService(
				memory.NewCRM(), memory.NewFieldStore(), memory.NewFieldCatalog(),
				memory.NewEntityResolver(), memory.NewMetadataStore(), memory.NewFileStore(),
			),
			Config: config.Default(),
			Close: func() error {
				closed = true
				return nil
			},
		}, nil
	})
	defer SetBootstrap(nil)
	defer logger.SetVerbose(false)

	out, err := execute(t, "", "status", "--data-dir", "/tmp/fs", "--verbose")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fs", got.DataDir)
	assert.True(t, got.Verbose)
	assert.True(t, closed)
	assert.Contains(t, out, "dry run")
	assert.Contains(t, out, "Pushes:      0")
}

func TestRootCmd_BootstrapError(t *testing.T) {
	SetServices(nil)
	SetBootstrap(func(Options) (*Services, error) {
		return nil, errors.New("database is locked")
	})
	defer SetBootstrap(nil)

	_, err := execute(t, "", "status")
	assert.ErrorContains(t, err, "database is locked")
}

func TestRootCmd_RejectsUnknownLogFormat(t *testing.T) {
	newHarness(t)

	_, err := execute(t, "", "status", "--log-format", "xml")
	assert.ErrorContains(t, err, "--log-format")
}

func TestStatusCmd_JSON(t *testing.T) {
	newHarness(t)

	out, err := execute(t, "", "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"pushes": 0`)
	assert.Contains(t, out, `"totals"`)
}
