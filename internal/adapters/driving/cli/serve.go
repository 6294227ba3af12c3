package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

var (
	serveMetricsAddr string
	serveWatch       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler until interrupted",
	Long: `Runs the pipeline and the checkpoint sweep on their configured intervals.
When a metrics address is set, Prometheus metrics are served at /metrics.
With --watch, changes to the source trigger a pipeline run as well.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also run the pipeline when the source changes")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "listen address for /metrics (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errNotConfigured("scheduler")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := metricsAddr
	if serveMetricsAddr != "" {
		addr = serveMetricsAddr
	}

	g, ctx := errgroup.WithContext(ctx)

	if addr != "" && metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		cmd.Printf("Serving metrics on %s/metrics\n", addr)
	}

	if (serveWatch || watchDefault) && sourceWatcher != nil {
		g.Go(func() error {
			err := sourceWatcher.Watch(ctx, func() {
				if err := scheduler.Trigger(ctx, domain.TaskIDPipelineRun); err != nil {
					cmd.PrintErrf("Cannot trigger pipeline run: %v\n", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		cmd.Println("Watching the source for changes.")
	}

	g.Go(func() error {
		defer stop()
		err := scheduler.Start(ctx)
		_ = scheduler.Stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	cmd.Println("Scheduler started. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		return err
	}
	cmd.Println("Scheduler stopped.")
	return nil
}
