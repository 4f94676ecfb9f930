// Package cli provides the fieldsync command-line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fieldsync/internal/config"
	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driving"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

// skipServices marks commands that run without opening the store.
const skipServices = "skip-services"

// Catalog maintains the Content side: which records mirror which CRM
// entities, which fields they carry, and which files they own.
type Catalog interface {
	Map(ctx context.Context, parentType string, entityID, recordID int64) error
	AddField(ctx context.Context, recordID int64, def domain.FieldDef) error
	AddFile(ctx context.Context, localPath string) (int64, error)
}

// Services are the dependencies commands run against.
type Services struct {
	FieldSync   driving.FieldSync
	Catalog     Catalog
	ConfigStore driven.ConfigStore
	Config      *config.Config

	// Close releases the services. May be nil.
	Close func() error
}

// Options are the global flags, passed to the bootstrap.
type Options struct {
	ConfigDir string
	DataDir   string
	LogFormat string
	Verbose   bool
}

// Bootstrap builds Services for a command invocation.
type Bootstrap func(opts Options) (*Services, error)

var (
	version = "dev"

	// Global flags.
	opts Options

	bootstrap Bootstrap

	// Service instances, set by SetServices.
	fieldSync   driving.FieldSync
	catalog     Catalog
	configStore driven.ConfigStore
	runtimeCfg  *config.Config
	closeFn     func() error
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Keep Content record-set fields and CRM child records in sync",
	Long: `fieldsync mirrors multi-row Content fields (addresses, phones, emails,
multi-value sets and attachments) onto CRM child records, and CRM changes
back onto those fields, without the two sides echoing each other's edits.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "", "Directory holding config.toml")
	rootCmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "Directory holding the database and files")
	rootCmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "Log format: console or json")
}

// SetVersion sets the version string reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap installs the function that builds services on first use.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices installs ready-made services.
func SetServices(s *Services) {
	if s == nil {
		fieldSync, catalog, configStore, runtimeCfg, closeFn = nil, nil, nil, nil, nil
		return
	}
	fieldSync = s.FieldSync
	catalog = s.Catalog
	configStore = s.ConfigStore
	runtimeCfg = s.Config
	closeFn = s.Close
}

// Execute runs the root command. Services are closed even when the command
// fails, which skips the post-run hook.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := teardown(rootCmd, nil); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(opts.Verbose)
	if opts.LogFormat != "" {
		if opts.LogFormat != string(logger.FormatConsole) && opts.LogFormat != string(logger.FormatJSON) {
			return errors.New("--log-format must be console or json")
		}
		logger.SetFormat(logger.Format(opts.LogFormat))
	}

	if cmd.Annotations[skipServices] == "true" || fieldSync != nil || bootstrap == nil {
		return nil
	}

	s, err := bootstrap(opts)
	if err != nil {
		return err
	}
	SetServices(s)
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if closeFn == nil {
		return nil
	}
	err := closeFn()
	closeFn = nil
	return err
}
