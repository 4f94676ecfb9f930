package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/fieldsync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/fieldsync/internal/adapters/driven/crm/rest"
	"github.com/custodia-labs/fieldsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fieldsync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/fieldsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/fieldsync/internal/config"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
	"github.com/custodia-labs/fieldsync/internal/core/services"
	"github.com/custodia-labs/fieldsync/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap wires configuration, storage and the CRM client into the
// field sync service.
func bootstrap(opts cli.Options) (*cli.Services, error) {
	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	cfg, err := config.Load(configStore)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		if cfg.SpoolDir == filepath.Join(cfg.DataDir, "spool") {
			cfg.SpoolDir = filepath.Join(opts.DataDir, "spool")
		}
		cfg.DataDir = opts.DataDir
	}

	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if opts.LogFormat == "" {
		logger.SetFormat(logger.Format(cfg.Log.Format))
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var (
		crm   driven.CRMClient
		fetch sqlite.Fetcher
	)
	if cfg.DryRun() {
		logger.Warn("crm.base_url is not set, running against an in-memory CRM")
		crm = memory.NewCRM()
	} else {
		rps := cfg.CRM.RatePerSecond
		if rps == 0 {
			rps = -1 // unlimited
		}
		client, err := rest.NewClient(rest.Config{
			BaseURL:         cfg.CRM.BaseURL,
			Token:           cfg.CRM.Token,
			Timeout:         cfg.CRM.Timeout,
			RatePerSecond:   rps,
			Burst:           cfg.CRM.Burst,
			BreakerFailures: uint32(cfg.CRM.BreakerFailures),
		})
		if err != nil {
			store.Close()
			return nil, err
		}
		crm = client
		fetch = client.Download
	}

	svc := services.NewFieldSyncService(
		crm,
		store.FieldStore(),
		store.FieldCatalog(),
		store.EntityResolver(),
		store.MetadataStore(),
		store.FileStore(fetch),
		services.WithCRMTimeout(cfg.CRM.Timeout),
	)
	logger.Debug("Store: %s", store.Path())

	return &cli.Services{
		FieldSync:   svc,
		Catalog:     store,
		ConfigStore: configStore,
		Config:      cfg,
		Close:       store.Close,
	}, nil
}
