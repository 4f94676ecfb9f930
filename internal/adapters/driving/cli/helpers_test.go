package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fieldsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fieldsync/internal/config"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/services"
)

// fakeCatalog records catalog calls and backs them with memory stores.
type fakeCatalog struct {
	resolver *memory.EntityResolver
	fields   *memory.FieldCatalog
	files    *memory.FileStore
	err      error
}

func (c *fakeCatalog) Map(_ context.Context, parentType string, entityID, recordID int64) error {
	if c.err != nil {
		return c.err
	}
	c.resolver.Map(parentType, entityID, recordID)
	return nil
}

func (c *fakeCatalog) AddField(_ context.Context, recordID int64, def domain.FieldDef) error {
	if c.err != nil {
		return c.err
	}
	c.fields.AddField(recordID, def)
	return nil
}

func (c *fakeCatalog) AddFile(_ context.Context, localPath string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.files.Add(localPath), nil
}

// harness is a FieldSyncService over in-memory adapters, installed as the
// CLI's services for one test.
type harness struct {
	crm     *memory.CRM
	fields  *memory.FieldStore
	catalog *fakeCatalog
	config  *memory.ConfigStore
	svc     *services.FieldSyncService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		crm:    memory.NewCRM(),
		fields: memory.NewFieldStore(),
		catalog: &fakeCatalog{
			resolver: memory.NewEntityResolver(),
			fields:   memory.NewFieldCatalog(),
			files:    memory.NewFileStore(),
		},
		config: memory.NewConfigStore(),
	}
	h.svc = services.NewFieldSyncService(
		h.crm, h.fields, h.catalog.fields, h.catalog.resolver,
		memory.NewMetadataStore(), h.catalog.files,
	)

	cfg := config.Default()
	cfg.SpoolDir = t.TempDir()
	SetServices(&Services{
		FieldSync:   h.svc,
		Catalog:     h.catalog,
		ConfigStore: h.config,
		Config:      cfg,
	})
	t.Cleanup(func() { SetServices(nil) })
	return h
}

// linkPhones maps contact 7 to record 42 with a phone field.
func (h *harness) linkPhones(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.catalog.Map(ctx, domain.ParentContact, 7, 42))
	require.NoError(t, h.catalog.AddField(ctx, 42, domain.FieldDef{Selector: "field_phone", Kind: domain.KindPhone}))
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	// Flag values outlive a run; start each one clean.
	pushFile, pushForce, pushJSON = "", false, false
	statusJSON = false
	watchMetricsAddr = ""
	fieldFilters, fieldLabel = nil, ""
	opts = Options{}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// isolateEnv keeps config.Load away from the developer's environment.
func isolateEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	for _, key := range config.Keys() {
		t.Setenv(config.EnvName(key), "")
		t.Setenv(config.EnvName(key)+"_FILE", "")
	}
}
