package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func validConfig() *Config {
	cfg := Default()
	cfg.Projects = []Project{
		{Name: "core", Roots: []string{"core/src", "core/lib/guava.jar"}},
		{Name: "app", Roots: []string{"app/src"}, DependsOn: []string{"core"}},
	}
	return cfg
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Parallel()
	p := writeConfig(t, `
[workspace]
root = "ws"

[[projects]]
name = "core"
roots = ["core/src/", " core/lib/a.jar"]

[[projects]]
name = "app"
roots = ["app/src"]
depends_on = ["core"]

[watch]
debounce = "50ms"

[resolver]
kind = "Script"
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(p), "ws"), cfg.Workspace.Root)
	assert.Equal(t, filepath.Join(cfg.Workspace.Root, ".lineage/index.db"), cfg.Workspace.DB)
	require.Len(t, cfg.Projects, 2)
	assert.Equal(t, []string{"core/src", "core/lib/a.jar"}, cfg.Projects[0].Roots)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 4, cfg.Watch.Burst, "untouched fields keep defaults")
	assert.Equal(t, ResolverScript, cfg.Resolver.Kind)
	assert.Equal(t, "resolve/java.risor", cfg.Resolver.Script)
	assert.True(t, cfg.Cache.Enabled)

	app, ok := cfg.Project("app")
	require.True(t, ok)
	assert.Equal(t, []string{"core"}, app.DependsOn)
	_, ok = cfg.Project("missing")
	assert.False(t, ok)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[[projects]\nname ="))
	assert.ErrorContains(t, err, "decode")

	_, err = Load(writeConfig(t, "[[projects]]\nname = \"core\"\n"))
	assert.ErrorContains(t, err, "no roots")
}

func TestWrite_RoundTrips(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, cfg))

	p := writeConfig(t, buf.String())
	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg.Projects, got.Projects)
	assert.Equal(t, cfg.Watch, got.Watch)
	assert.Equal(t, cfg.Index, got.Index)
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no roots", func(c *Config) { c.Projects[1].Roots = nil }, `project "app": no roots`},
		{"root outside project", func(c *Config) { c.Projects[1].Roots = []string{"core/src"} }, "outside the project directory"},
		{"empty name", func(c *Config) { c.Projects[0].Name = "" }, "name is required"},
		{"separator in name", func(c *Config) {
			c.Projects = append(c.Projects, Project{Name: "a#b", Roots: []string{"a#b/src"}})
		}, "must not contain"},
		{"duplicate", func(c *Config) {
			c.Projects = append(c.Projects, Project{Name: "core", Roots: []string{"core/other"}})
		}, "defined twice"},
		{"unknown dependency", func(c *Config) { c.Projects[1].DependsOn = []string{"nope"} }, `unknown dependency "nope"`},
		{"self dependency", func(c *Config) { c.Projects[0].DependsOn = []string{"core"} }, "depends on itself"},
		{"cycle", func(c *Config) { c.Projects[0].DependsOn = []string{"app"} }, "dependency cycle: app -> core -> app"},
		{"bad glob", func(c *Config) { c.Index.Exclude = []string{"[a-"} }, "index.exclude"},
		{"no workers", func(c *Config) { c.Index.Workers = 0 }, "index.workers"},
		{"serial needs no workers", func(c *Config) { c.Index.Parallel, c.Index.Workers = false, 0 }, ""},
		{"rate", func(c *Config) { c.Watch.Rate = 0 }, "watch.rate"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{"unknown resolver", func(c *Config) { c.Resolver.Kind = "magic" }, `resolver.kind "magic"`},
		{"script without path", func(c *Config) { c.Resolver = Resolver{Kind: ResolverScript} }, "resolver.script"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Projects[0].Roots = nil
	cfg.Resolver.Kind = "magic"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "no roots")
	assert.ErrorContains(t, err, "resolver.kind")
}

// =============================================================================
// Excluder
// =============================================================================

func TestExcluder(t *testing.T) {
	t.Parallel()
	e, err := Default().Index.Excluder()
	require.NoError(t, err)

	assert.True(t, e.Match("core/.git/HEAD"))
	assert.True(t, e.Match("app/target/classes/A.class"))
	assert.False(t, e.Match("core/src/com/acme/A.java"))

	var none *Excluder
	assert.False(t, none.Match("anything"))

	_, err = Index{Exclude: []string{"[a-"}}.Excluder()
	assert.Error(t, err)
}
