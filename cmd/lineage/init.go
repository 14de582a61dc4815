package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/lineage/internal/config"
)

var (
	flagForce    bool
	flagProjects []string
	flagDepends  []string
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a workspace config",
	Long: "Writes " + config.FileName + " with the default settings and the given projects. " +
		"Projects are name:root pairs; repeat --project for more roots of the same project.",
	Example: "  lineage init --project core:core/src --project app:app/src --depends app:core",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runInit,
}

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite an existing config")
	initCmd.Flags().StringArrayVar(&flagProjects, "project", nil, "project root as name:root")
	initCmd.Flags().StringArrayVar(&flagDepends, "depends", nil, "project dependency as name:dependency")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	cfg, err := buildConfig(flagProjects, flagDepends)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	path := filepath.Join(dir, config.FileName)
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !flagForce {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err != nil {
		return err
	}
	if err := config.Write(f, cfg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

// buildConfig turns name:value flag pairs into a default config with
// projects in first-seen order.
func buildConfig(projects, depends []string) (*config.Config, error) {
	cfg := config.Default()
	index := map[string]int{}
	for _, pv := range projects {
		name, root, err := splitPair("project", pv)
		if err != nil {
			return nil, err
		}
		i, ok := index[name]
		if !ok {
			i = len(cfg.Projects)
			index[name] = i
			cfg.Projects = append(cfg.Projects, config.Project{Name: name})
		}
		cfg.Projects[i].Roots = append(cfg.Projects[i].Roots, root)
	}
	for _, dv := range depends {
		name, dep, err := splitPair("depends", dv)
		if err != nil {
			return nil, err
		}
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("--depends %s: unknown project %q", dv, name)
		}
		cfg.Projects[i].DependsOn = append(cfg.Projects[i].DependsOn, dep)
	}
	return cfg, nil
}

func splitPair(flag, v string) (string, string, error) {
	a, b, ok := strings.Cut(v, ":")
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !ok || a == "" || b == "" {
		return "", "", fmt.Errorf("--%s %q: want name:value", flag, v)
	}
	return a, b, nil
}
