package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/lineage"
	"github.com/jward/lineage/internal/config"
)

var (
	flagDB         string
	flagConfig     string
	flagFormat     string
	flagVerbose    bool
	flagScriptsDir string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lineage",
	Short:         "Java type hierarchies from a persistent index",
	Long:          "Lineage indexes Java sources and class archives into SQLite and computes super- and subtype hierarchies that stay valid as the workspace changes.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: workspace.db from the config)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: nearest "+config.FileName+")")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&flagScriptsDir, "scripts-dir", "", "load Risor scripts from disk instead of the embedded ones")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(hierarchyCmd)
	rootCmd.AddCommand(subtypesCmd)
	rootCmd.AddCommand(supertypesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// --- index ---

var flagSerial bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the workspace",
	Long:  "Records the configured projects and roots, then parses every source file and archive under them into the database. Unchanged documents are skipped.",
	Args:  cobra.NoArgs,
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagSerial, "serial", false, "index on one goroutine")
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var opts []lineage.Option
	if flagSerial {
		opts = append(opts, lineage.WithParallel(false))
	}
	engine, err := openEngine(cfg, opts...)
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
	fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", cfg.Workspace.Root, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath(cfg))
	return nil
}

// --- workspace helpers ---

// loadConfig reads --config, or the nearest config file above the working
// directory.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting cwd: %w", err)
		}
		found, ok := findConfig(cwd)
		if !ok {
			return nil, fmt.Errorf("no %s found above %s (run 'lineage init' first)", config.FileName, cwd)
		}
		path = found
	}
	return config.Load(path)
}

// findConfig walks up from startDir looking for the config file.
func findConfig(startDir string) (string, bool) {
	dir := startDir
	for {
		p := filepath.Join(dir, config.FileName)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// dbPath returns the database path from the --db flag or the config.
func dbPath(cfg *config.Config) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(cfg.Workspace.Root, flagDB)
	}
	return cfg.Workspace.DB
}

func openEngine(cfg *config.Config, extra ...lineage.Option) (*lineage.Engine, error) {
	db := dbPath(cfg)
	if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(db), err)
	}
	opts := []lineage.Option{lineage.WithWorkspace(cfg), lineage.WithLogger(newLogger())}
	if flagScriptsDir != "" {
		opts = append(opts, lineage.WithScriptsDir(flagScriptsDir))
	}
	engine, err := lineage.New(db, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}
