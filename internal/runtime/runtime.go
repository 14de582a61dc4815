package runtime

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"go.opentelemetry.io/otel/attribute"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/store"
)

const scriptExt = ".risor"

// Runtime runs Risor scripts with Java tree builtins and, when an index is
// attached, read access to it.
type Runtime struct {
	store   *store.Store
	scripts scriptSource
	trees   *treeTable
	logger  *slog.Logger
}

// scriptSource is where scripts and their imports come from.
type scriptSource interface {
	read(path string) ([]byte, error)
	importer(globals []string) importer.Importer
}

// dirSource reads scripts from disk. Relative paths resolve against dir.
type dirSource struct{ dir string }

func (d dirSource) read(path string) ([]byte, error) {
	if !filepath.IsAbs(path) && d.dir != "" {
		path = filepath.Join(d.dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "loading script"), "path", path)
	}
	return data, nil
}

func (d dirSource) importer(globals []string) importer.Importer {
	if d.dir == "" {
		return nil
	}
	return importer.NewLocalImporter(importer.LocalImporterOptions{
		GlobalNames: globals,
		SourceDir:   d.dir,
		Extensions:  []string{scriptExt},
	})
}

// fsSource reads scripts from an fs.FS, typically the embedded defaults.
type fsSource struct{ fsys fs.FS }

func (f fsSource) read(path string) ([]byte, error) {
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	data, err := fs.ReadFile(f.fsys, path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "loading script from fs"), "path", path)
	}
	return data, nil
}

func (f fsSource) importer(globals []string) importer.Importer {
	return importer.NewFSImporter(importer.FSImporterOptions{
		GlobalNames: globals,
		SourceFS:    f.fsys,
		Extensions:  []string{scriptExt},
	})
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS loads scripts and resolves imports from fsys instead of the
// scripts directory.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.scripts = fsSource{fsys: fsys}
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime returns a Runtime over s, loading scripts from scriptsDir. s may
// be nil, in which case the index builtins are left out.
func NewRuntime(s *store.Store, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		store:   s,
		scripts: dirSource{dir: scriptsDir},
		trees:   newTreeTable(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadScript returns the source of the script at path.
func (r *Runtime) LoadScript(path string) (string, error) {
	data, err := r.scripts.read(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RunScript loads the script at path and runs it. extra globals are added
// to, and may replace, the builtins.
func (r *Runtime) RunScript(ctx context.Context, path string, extra map[string]any) error {
	src, err := r.LoadScript(path)
	if err != nil {
		return err
	}
	return r.eval(ctx, path, src, extra)
}

// RunSource runs inline script source.
func (r *Runtime) RunSource(ctx context.Context, source string, extra map[string]any) error {
	return r.eval(ctx, "<inline>", source, extra)
}

func (r *Runtime) eval(ctx context.Context, label, source string, extra map[string]any) (err error) {
	ctx, span := observability.StartSpan(ctx, "runtime.Eval", attribute.String("script", label))
	defer func() { observability.EndSpan(span, err) }()

	globals := r.buildGlobals(label, extra)
	names := make([]string, 0, len(globals))
	opts := make([]risor.Option, 0, len(globals)+1)
	for name, v := range globals {
		names = append(names, name)
		opts = append(opts, risor.WithGlobal(name, v))
	}
	if imp := r.scripts.importer(names); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}
	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return zerr.With(zerr.Wrap(err, "running script"), "script", label)
	}
	return nil
}

// buildGlobals returns the builtins for one run, with extra layered on top.
func (r *Runtime) buildGlobals(label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse_java":   makeParseJavaFn(r.trees),
		"declarations": makeDeclarationsFn(),
		"node_text":    makeNodeTextFn(r.trees),
		"field":        makeFieldFn(),
		"captures":     makeCapturesFn(r.trees),
		"log":          mustProxy(&scriptLog{logger: r.logger, script: label}),
	}
	if r.store != nil {
		globals["lookup_types"] = makeLookupTypesFn(r.store)
		globals["types_named"] = makeTypesNamedFn(r.store)
		globals["unit"] = makeUnitFn(r.store)
		globals["visible_projects"] = makeVisibleProjectsFn(r.store)
		globals["db_query"] = makeDBQueryFn(r.store)
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic("runtime: " + err.Error())
	}
	return p
}
