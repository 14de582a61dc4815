package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jward/lineage"
)

var flagMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch [type...]",
	Short: "Keep the index and hierarchies current as files change",
	Long: "Indexes the workspace, then re-indexes changed documents as they are saved. " +
		"Hierarchies of the given types are built up front and rebuilt whenever a change invalidates them.",
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9464")
	watchCmd.Flags().StringVar(&flagProject, "project", "", "search subtypes only in projects visible from this one")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.LoadWorkspace(ctx, cfg); err != nil {
		return fmt.Errorf("loading workspace: %w", err)
	}
	if err := engine.IndexWorkspace(ctx); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	if flagMetricsAddr != "" {
		stop := serveMetrics(flagMetricsAddr, logger)
		defer stop()
	}

	stale := make(chan *lineage.TypeHierarchy, len(args)+1)
	var hierarchies []*lineage.TypeHierarchy
	for _, name := range args {
		focus, err := findFocus(engine, name)
		if err != nil {
			return err
		}
		h, err := engine.TypeHierarchy(ctx, focus, lineage.HierarchyOptions{Project: flagProject})
		if err != nil {
			return err
		}
		h.AddListener(lineage.ListenerFunc(func(src lineage.Source) error {
			select {
			case stale <- h:
			default:
				// A refresh for h is already queued.
			}
			return nil
		}))
		hierarchies = append(hierarchies, h)
	}
	go refreshLoop(ctx, stale, logger)

	fmt.Fprintf(os.Stderr, "Watching %s (ctrl-c to stop)\n", engine.Root())
	err = engine.Watch(ctx, hierarchies...)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// refreshLoop rebuilds invalidated hierarchies and prints each result.
func refreshLoop(ctx context.Context, stale <-chan *lineage.TypeHierarchy, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-stale:
			if err := h.Refresh(ctx); err != nil {
				logger.Warn("refresh failed", "type", h.Focus().QualifiedName(), "error", err)
				continue
			}
			_ = writeResult(os.Stdout, CLIResult{Command: "watch", Results: CLIInvalidation{
				Focus:   h.Focus().QualifiedName(),
				BuildID: h.BuildID(),
				Types:   h.Graph().Size(),
			}})
		}
	}
}

// serveMetrics exposes the prometheus registry until the returned stop
// function runs.
func serveMetrics(addr string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("metrics server starting", "addr", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
