package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/lineage"
)

var (
	flagSupertypesOnly bool
	flagProject        string
	flagCache          bool
)

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy <type>",
	Short: "Print the type hierarchy of a type",
	Long: "Builds the supertypes and subtypes of a type given by qualified name (com.acme.Outer.Inner) or handle (path#package#name). " +
		"With --cache a hierarchy cached for the current index is reused, and a fresh build is cached.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, cached, err := buildHierarchy(cmd.Context(), args[0], !flagSupertypesOnly)
		if err != nil {
			return outputError("hierarchy", err)
		}
		return outputResult(CLIResult{Command: "hierarchy", Results: toCLIHierarchy(h, cached)})
	},
}

var subtypesCmd = &cobra.Command{
	Use:   "subtypes <type>",
	Short: "List every subtype of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, _, err := buildHierarchy(cmd.Context(), args[0], true)
		if err != nil {
			return outputError("subtypes", err)
		}
		g := h.Graph()
		return outputResult(CLIResult{Command: "subtypes", Results: toCLITypes(g, g.GetAllSubtypes(h.Focus()))})
	},
}

var supertypesCmd = &cobra.Command{
	Use:   "supertypes <type>",
	Short: "List every supertype of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, _, err := buildHierarchy(cmd.Context(), args[0], false)
		if err != nil {
			return outputError("supertypes", err)
		}
		g := h.Graph()
		return outputResult(CLIResult{Command: "supertypes", Results: toCLITypes(g, g.GetAllSupertypes(h.Focus()))})
	},
}

func init() {
	hierarchyCmd.Flags().BoolVar(&flagSupertypesOnly, "supertypes", false, "leave out subtypes")
	for _, c := range []*cobra.Command{hierarchyCmd, subtypesCmd, supertypesCmd} {
		c.Flags().StringVar(&flagProject, "project", "", "search subtypes only in projects visible from this one")
		c.Flags().BoolVar(&flagCache, "cache", false, "reuse and store cached hierarchies")
	}
}

// buildHierarchy resolves name to a type and builds its hierarchy. It
// reports whether the hierarchy came from the cache.
func buildHierarchy(ctx context.Context, name string, subtypes bool) (*lineage.TypeHierarchy, bool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, false, err
	}
	engine, err := openEngine(cfg)
	if err != nil {
		return nil, false, err
	}
	defer engine.Close()

	focus, err := findFocus(engine, name)
	if err != nil {
		return nil, false, err
	}
	opts := lineage.HierarchyOptions{ComputeSubtypes: subtypes, Project: flagProject}

	if flagCache {
		h, err := engine.LoadHierarchy(ctx, focus, opts)
		if err == nil {
			return h, true, nil
		}
		if !errors.Is(err, lineage.ErrNotCached) {
			return nil, false, err
		}
	}

	var h *lineage.TypeHierarchy
	if subtypes {
		h, err = engine.TypeHierarchy(ctx, focus, opts)
	} else {
		h, err = engine.SupertypeHierarchy(ctx, focus, opts)
	}
	if err != nil {
		return nil, false, err
	}
	if flagCache {
		if err := engine.StoreHierarchy(ctx, h); err != nil {
			return nil, false, fmt.Errorf("caching hierarchy: %w", err)
		}
	}
	return h, false, nil
}

// findFocus picks the single type declared under name. Ambiguous names
// list the candidates' handles.
func findFocus(engine *lineage.Engine, name string) (lineage.TypeRef, error) {
	found, err := engine.FindType(name)
	if err != nil {
		return lineage.TypeRef{}, err
	}
	if len(found) > 1 {
		fmt.Fprintf(os.Stderr, "%s is declared %d times; pass a handle:\n", name, len(found))
		for _, t := range found {
			fmt.Fprintf(os.Stderr, "  %s\n", t.Handle())
		}
		return lineage.TypeRef{}, fmt.Errorf("ambiguous type %q", name)
	}
	return found[0], nil
}
