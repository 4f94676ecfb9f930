package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/fieldsync/internal/logger"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch [spool-dir]",
	Short: "Apply CRM notifications as they land in a spool directory",
	Long: `Watch applies every *.json event file written to the spool directory
(default: spool_dir from the configuration). Files already present are
applied first, in name order.

Applied files move to processed/. Files with a failing event move to
failed/ next to a .err file describing the failure. Write files under a
temporary name and rename them to *.json when complete.

With --metrics-addr (or metrics.addr) Prometheus metrics are served at
/metrics while watching.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if fieldSync == nil {
		return errNotConfigured
	}

	dir := ""
	if len(args) == 1 {
		dir = args[0]
	} else if runtimeCfg != nil {
		dir = runtimeCfg.SpoolDir
	}
	if dir == "" {
		return errors.New("no spool directory given and spool_dir is not configured")
	}

	addr := watchMetricsAddr
	if addr == "" && runtimeCfg != nil {
		addr = runtimeCfg.Metrics.Addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr != "" {
		srv := serveMetrics(addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		cmd.Printf("Serving metrics on http://%s/metrics\n", addr)
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	return newSpool(dir, fieldSync).Run(ctx)
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "metrics server stopped")
		}
	}()
	return srv
}
