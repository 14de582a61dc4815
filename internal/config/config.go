// Package config loads lineage.toml, the description of a Java workspace:
// its projects, their classpath roots and dependencies, and the indexing,
// watching and resolution settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

// FileName is the configuration file looked up in the workspace root.
const FileName = "lineage.toml"

// Resolver kinds.
const (
	ResolverIndex  = "index"
	ResolverScript = "script"
)

type Config struct {
	Workspace Workspace `toml:"workspace"`
	Projects  []Project `toml:"projects"`
	Index     Index     `toml:"index"`
	Watch     Watch     `toml:"watch"`
	Resolver  Resolver  `toml:"resolver"`
	Cache     Cache     `toml:"cache"`
}

type Workspace struct {
	// Root is the directory document paths are relative to. A relative
	// root is taken relative to the configuration file.
	Root string `toml:"root"`
	DB   string `toml:"db"`
}

// Project is one named project. Roots are workspace-relative and ordered:
// a root's position is its classpath index.
type Project struct {
	Name      string   `toml:"name"`
	Roots     []string `toml:"roots"`
	DependsOn []string `toml:"depends_on"`
}

type Index struct {
	Parallel bool     `toml:"parallel"`
	Workers  int      `toml:"workers"`
	Exclude  []string `toml:"exclude"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
	Rate     float64       `toml:"rate"` // flushes per second
	Burst    int           `toml:"burst"`
}

type Resolver struct {
	Kind   string `toml:"kind"`
	Script string `toml:"script"`
}

type Cache struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the settings used for anything a file leaves out.
func Default() *Config {
	return &Config{
		Workspace: Workspace{Root: ".", DB: ".lineage/index.db"},
		Index: Index{
			Parallel: true,
			Workers:  runtime.NumCPU(),
			Exclude:  []string{"**/.git/**", "**/target/**", "**/build/**"},
		},
		Watch:    Watch{Debounce: 200 * time.Millisecond, Rate: 2, Burst: 4},
		Resolver: Resolver{Kind: ResolverIndex, Script: "resolve/java.risor"},
		Cache:    Cache{Enabled: true},
	}
}

// Load reads the file at path over the defaults, normalizes it and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.Workspace.Root) {
		cfg.Workspace.Root = filepath.Join(filepath.Dir(path), cfg.Workspace.Root)
	}
	if cfg.Workspace.DB != "" && !filepath.IsAbs(cfg.Workspace.DB) {
		cfg.Workspace.DB = filepath.Join(cfg.Workspace.Root, cfg.Workspace.DB)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg *Config) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return enc.Encode(cfg)
}

func (c *Config) normalize() {
	for i := range c.Projects {
		p := &c.Projects[i]
		p.Name = strings.TrimSpace(p.Name)
		for j, r := range p.Roots {
			p.Roots[j] = path.Clean(filepath.ToSlash(strings.TrimSpace(r)))
		}
	}
	c.Resolver.Kind = strings.ToLower(strings.TrimSpace(c.Resolver.Kind))
}

// Project returns the project named name.
func (c *Config) Project(name string) (*Project, bool) {
	for i := range c.Projects {
		if c.Projects[i].Name == name {
			return &c.Projects[i], true
		}
	}
	return nil, false
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	names := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("projects[%d]: name is required", i))
			continue
		case strings.ContainsAny(p.Name, "/|#\\"):
			errs = append(errs, fmt.Errorf("project %q: name must not contain '/', '|', '#' or '\\'", p.Name))
		case names[p.Name]:
			errs = append(errs, fmt.Errorf("project %q: defined twice", p.Name))
		}
		names[p.Name] = true
		if len(p.Roots) == 0 {
			errs = append(errs, fmt.Errorf("project %q: no roots", p.Name))
		}
		for _, r := range p.Roots {
			if r != p.Name && !strings.HasPrefix(r, p.Name+"/") {
				errs = append(errs, fmt.Errorf("project %q: root %q is outside the project directory", p.Name, r))
			}
		}
	}
	for _, p := range c.Projects {
		for _, d := range p.DependsOn {
			switch {
			case d == p.Name:
				errs = append(errs, fmt.Errorf("project %q: depends on itself", p.Name))
			case !names[d]:
				errs = append(errs, fmt.Errorf("project %q: unknown dependency %q", p.Name, d))
			}
		}
	}
	if cycle := c.dependencyCycle(); cycle != nil {
		errs = append(errs, fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> ")))
	}

	for _, pattern := range c.Index.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("index.exclude %q: %w", pattern, err))
		}
	}
	if c.Index.Parallel && c.Index.Workers < 1 {
		errs = append(errs, fmt.Errorf("index.workers must be at least 1, got %d", c.Index.Workers))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative"))
	}
	if c.Watch.Rate <= 0 || c.Watch.Burst < 1 {
		errs = append(errs, fmt.Errorf("watch.rate must be positive and watch.burst at least 1"))
	}
	switch c.Resolver.Kind {
	case ResolverIndex:
	case ResolverScript:
		if c.Resolver.Script == "" {
			errs = append(errs, fmt.Errorf("resolver.script is required for the script resolver"))
		}
	default:
		errs = append(errs, fmt.Errorf("resolver.kind %q: want %q or %q", c.Resolver.Kind, ResolverIndex, ResolverScript))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// dependencyCycle returns the projects of one dependency cycle, the first
// repeated at the end, or nil.
func (c *Config) dependencyCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	deps := make(map[string][]string, len(c.Projects))
	var order []string
	for _, p := range c.Projects {
		deps[p.Name] = p.DependsOn
		order = append(order, p.Name)
	}
	slices.Sort(order)

	state := make(map[string]int, len(order))
	var stack []string
	var visit func(string) []string
	visit = func(p string) []string {
		state[p] = visiting
		stack = append(stack, p)
		for _, d := range deps[p] {
			if d == p {
				continue
			}
			switch state[d] {
			case visiting:
				i := slices.Index(stack, d)
				return append(slices.Clone(stack[i:]), d)
			case unvisited:
				if _, known := deps[d]; !known {
					continue
				}
				if cycle := visit(d); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[p] = done
		return nil
	}
	for _, p := range order {
		if state[p] == unvisited {
			if cycle := visit(p); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Excluder matches workspace-relative paths against exclude globs.
type Excluder struct {
	globs []glob.Glob
}

// Excluder compiles the index exclude patterns.
func (i Index) Excluder() (*Excluder, error) {
	e := &Excluder{}
	for _, pattern := range i.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("config: exclude %q: %w", pattern, err)
		}
		e.globs = append(e.globs, g)
	}
	return e, nil
}

// Match reports whether p is excluded. A nil Excluder excludes nothing.
func (e *Excluder) Match(p string) bool {
	if e == nil {
		return false
	}
	p = filepath.ToSlash(p)
	for _, g := range e.globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}
