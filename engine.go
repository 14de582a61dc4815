package lineage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jward/lineage/internal/classfile"
	"github.com/jward/lineage/internal/config"
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/resolve"
	"github.com/jward/lineage/internal/runtime"
	"github.com/jward/lineage/internal/store"
	"github.com/jward/lineage/scripts"
)

// Engine orchestrates the lineage pipeline: workspace layout, indexing of
// sources and archives, hierarchy builds, the hierarchy cache, and change
// delivery to live hierarchies.
type Engine struct {
	store      *store.Store
	runtime    *runtime.Runtime
	scriptsDir string
	scriptsFS  fs.FS
	logger     *slog.Logger

	resolver   resolve.Resolver
	custom     bool   // resolver supplied through WithResolver
	scriptPath string // set when resolution runs a Risor script
	archives   *resolve.Archives

	cfg      *config.Config
	root     string // workspace directory
	excluder *config.Excluder

	useParallel bool
	workers     int

	mu     sync.Mutex
	owners []*TypeHierarchy // hierarchies receiving watch deltas
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel controls parallel indexing. When true (default),
// IndexWorkspace parses documents on a worker pool and commits their units
// in one transaction per document. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers caps the indexing pool.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithResolver replaces the resolver used by hierarchy builds.
func WithResolver(r resolve.Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
		e.custom = r != nil
	}
}

// WithScriptResolver resolves supertypes with the Risor script at
// scriptPath, loaded from the scripts filesystem.
func WithScriptResolver(scriptPath string) Option {
	return func(e *Engine) {
		e.scriptPath = scriptPath
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithScriptsFS loads Risor scripts from fsys instead of the embedded
// scripts.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads Risor scripts from a directory on disk.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
		e.scriptsFS = nil
	}
}

// WithWorkspace applies cfg's indexing and resolver settings. The layout
// itself is recorded by LoadWorkspace.
func WithWorkspace(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
		e.root = absDir(cfg.Workspace.Root)
		e.useParallel = cfg.Index.Parallel
		e.workers = cfg.Index.Workers
		if cfg.Resolver.Kind == config.ResolverScript {
			e.scriptPath = cfg.Resolver.Script
		}
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("lineage: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("lineage: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		scriptsFS:   scripts.FS,
		logger:      slog.Default(),
		useParallel: true,
		root:        ".",
	}
	for _, opt := range opts {
		opt(e)
	}
	e.root = absDir(e.root)
	if e.cfg != nil {
		if e.excluder, err = e.cfg.Index.Excluder(); err != nil {
			s.Close()
			return nil, fmt.Errorf("lineage: %w", err)
		}
	}

	var rtOpts []runtime.RuntimeOption
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	rtOpts = append(rtOpts, runtime.WithRuntimeLogger(e.logger))
	e.runtime = runtime.NewRuntime(s, e.scriptsDir, rtOpts...)

	e.pickResolver()
	e.archives = resolve.NewArchives(e.root)
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Root returns the workspace directory document paths are relative to.
func (e *Engine) Root() string {
	return e.root
}

// LoadWorkspace replaces the recorded projects, roots and dependencies with
// those of cfg. Indexed units are kept; IndexWorkspace drops the ones no
// longer under a root.
func (e *Engine) LoadWorkspace(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("lineage: %w", err)
	}
	WithWorkspace(cfg)(e)
	ex, err := cfg.Index.Excluder()
	if err != nil {
		return fmt.Errorf("lineage: %w", err)
	}
	e.excluder = ex
	e.archives = resolve.NewArchives(e.root)
	e.pickResolver()

	if err := e.store.ClearWorkspace(); err != nil {
		return fmt.Errorf("lineage: %w", err)
	}
	for _, p := range cfg.Projects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.store.PutProject(store.Project{Name: p.Name, Dir: p.Name}); err != nil {
			return fmt.Errorf("lineage: %w", err)
		}
		for i, r := range p.Roots {
			root := &store.Root{Project: p.Name, Path: r, Index: i, Kind: rootKind(r)}
			if err := e.store.PutRoot(root); err != nil {
				return fmt.Errorf("lineage: %w", err)
			}
		}
	}
	for _, p := range cfg.Projects {
		for _, d := range p.DependsOn {
			if err := e.store.PutDependency(p.Name, d); err != nil {
				return fmt.Errorf("lineage: %w", err)
			}
		}
	}
	e.logger.Info("workspace loaded", "root", e.root, "projects", len(cfg.Projects))
	return nil
}

// pickResolver chooses the script resolver when a script is configured and
// the index resolver otherwise, unless WithResolver supplied one.
func (e *Engine) pickResolver() {
	switch {
	case e.custom:
	case e.scriptPath != "":
		e.resolver = &resolve.ScriptResolver{Runtime: e.runtime, Script: e.scriptPath}
	default:
		e.resolver = &resolve.IndexResolver{}
	}
}

func rootKind(root string) string {
	if kind, ok := runtime.KindForFile(root); ok && kind == runtime.KindArchive {
		return store.RootArchive
	}
	return store.RootSource
}

// document is one file to index.
type document struct {
	Path      string // workspace-relative, slash-separated
	Kind      string // runtime.KindSource, KindClass or KindArchive
	Project   string
	Root      string
	RootIndex int
}

// indexResult reports what indexing one document did.
type indexResult struct {
	Seen    []string // document paths the file accounts for, written or not
	Written int
	Changes []unitChange
}

// unitChange is a unit's state before and after a re-index. Either side
// may be nil.
type unitChange struct {
	Prev, Next *store.Unit
}

// IndexWorkspace walks every root of the loaded workspace and indexes what
// it finds. Unchanged documents are skipped and units whose document is
// gone are deleted. Errors on individual documents are logged and
// collected; indexing continues.
func (e *Engine) IndexWorkspace(ctx context.Context) (err error) {
	if e.cfg == nil {
		return ErrNoWorkspace
	}
	ctx, span := observability.StartSpan(ctx, "lineage.IndexWorkspace",
		attribute.Bool("parallel", e.useParallel))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	docs, err := e.listDocuments()
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))

	var results []indexResult
	if e.useParallel {
		results, err = e.indexParallel(ctx, docs)
	} else {
		results, err = e.indexSerial(ctx, docs)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	seen := map[string]bool{}
	written := 0
	for _, r := range results {
		for _, p := range r.Seen {
			seen[p] = true
		}
		written += r.Written
	}
	removed, rerr := e.deleteVanished(seen)
	if rerr != nil && err == nil {
		err = rerr
	}
	e.logger.Info("workspace indexed",
		"documents", len(docs), "written", written, "removed", removed,
		"duration", time.Since(start))
	return err
}

func (e *Engine) indexSerial(ctx context.Context, docs []document) ([]indexResult, error) {
	results := make([]indexResult, 0, len(docs))
	var errs []error
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r, err := e.indexDocument(ctx, e.store, d, false)
		results = append(results, r)
		if err != nil {
			e.logger.Warn("indexing failed, skipping", "path", d.Path, "error", err)
			errs = append(errs, fmt.Errorf("index %s: %w", d.Path, err))
		}
	}
	if len(errs) > 0 {
		return results, fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return results, nil
}

// deleteVanished removes indexed units that no walked document accounts
// for.
func (e *Engine) deleteVanished(seen map[string]bool) (int, error) {
	paths, err := e.store.UnitPaths("")
	if err != nil {
		return 0, fmt.Errorf("lineage: %w", err)
	}
	n := 0
	for _, p := range paths {
		if seen[p] {
			continue
		}
		if err := e.store.DeleteUnit(p); err != nil {
			return n, fmt.Errorf("lineage: %w", err)
		}
		n++
	}
	return n, nil
}

// listDocuments walks the roots of every project. Source roots yield .java
// and .class files; archive roots yield the archive itself.
func (e *Engine) listDocuments() ([]document, error) {
	var docs []document
	for _, p := range e.cfg.Projects {
		for i, r := range p.Roots {
			abs := e.abs(r)
			info, err := os.Stat(abs)
			if os.IsNotExist(err) {
				e.logger.Warn("root does not exist", "project", p.Name, "root", r)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("lineage: stat root %s: %w", r, err)
			}
			if !info.IsDir() {
				if kind, ok := runtime.KindForFile(r); ok && kind == runtime.KindArchive {
					docs = append(docs, document{Path: r, Kind: kind, Project: p.Name, Root: r, RootIndex: i})
				}
				continue
			}
			err = filepath.WalkDir(abs, func(file string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				rel := e.rel(file)
				if e.excluder.Match(rel) || (d.IsDir() && e.excluder.Match(rel+"/")) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					return nil
				}
				kind, ok := runtime.KindForFile(file)
				if !ok || kind == runtime.KindArchive {
					return nil
				}
				docs = append(docs, document{Path: rel, Kind: kind, Project: p.Name, Root: r, RootIndex: i})
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("lineage: walk root %s: %w", r, err)
			}
		}
	}
	return docs, nil
}

// IndexFiles re-indexes the given documents, given as workspace-relative or
// absolute paths. A path that no longer exists drops its units.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	_, err := e.reindex(ctx, paths)
	return err
}

// reindex indexes paths one by one and reports the unit changes.
func (e *Engine) reindex(ctx context.Context, paths []string) ([]unitChange, error) {
	var changes []unitChange
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		rel := e.rel(p)
		c, err := e.reindexOne(ctx, rel)
		changes = append(changes, c...)
		if err != nil {
			e.logger.Warn("indexing failed, skipping", "path", rel, "error", err)
			errs = append(errs, fmt.Errorf("index %s: %w", rel, err))
		}
	}
	if len(errs) > 0 {
		return changes, fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return changes, nil
}

func (e *Engine) reindexOne(ctx context.Context, rel string) ([]unitChange, error) {
	kind, ok := runtime.KindForFile(rel)
	if !ok {
		return nil, nil
	}
	if _, err := os.Stat(e.abs(rel)); os.IsNotExist(err) {
		return e.dropDocument(rel, kind)
	}
	root, err := e.store.RootOf(rel)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, nil // not on any classpath
	}
	if kind == runtime.KindArchive && root.Path != rel {
		return nil, nil // archives only count as roots
	}
	d := document{Path: rel, Kind: kind, Project: root.Project, Root: root.Path, RootIndex: root.Index}
	r, err := e.indexDocument(ctx, e.store, d, true)
	return r.Changes, err
}

// dropDocument deletes the units of a vanished document.
func (e *Engine) dropDocument(rel, kind string) ([]unitChange, error) {
	paths := []string{rel}
	if kind == runtime.KindArchive {
		var err error
		if paths, err = e.entryPaths(rel); err != nil {
			return nil, err
		}
	}
	var changes []unitChange
	for _, p := range paths {
		prev, err := e.store.UnitByPath(p)
		if err != nil {
			return changes, err
		}
		if prev == nil {
			continue
		}
		if err := e.store.DeleteUnit(p); err != nil {
			return changes, err
		}
		changes = append(changes, unitChange{Prev: prev})
	}
	return changes, nil
}

// entryPaths lists the indexed entries of the archive at rel.
func (e *Engine) entryPaths(rel string) ([]string, error) {
	all, err := e.store.UnitPaths(projectOf(rel))
	if err != nil {
		return nil, err
	}
	prefix := rel + hierarchy.ArchiveSeparator
	var out []string
	for _, p := range all {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

// indexDocument indexes one document into ds. With track set, the previous
// and new units are returned as changes.
func (e *Engine) indexDocument(ctx context.Context, ds store.DataStore, d document, track bool) (indexResult, error) {
	res := indexResult{Seen: []string{d.Path}}
	content, err := os.ReadFile(e.abs(d.Path))
	if err != nil {
		return res, fmt.Errorf("read file: %w", err)
	}
	hash := store.HashContent(content)

	if d.Kind == runtime.KindArchive {
		return e.indexArchive(ctx, ds, d, hash, track)
	}

	existing, err := ds.UnitHash(d.Path)
	if err != nil {
		return res, fmt.Errorf("lookup unit: %w", err)
	}
	if existing == hash {
		return res, nil // unchanged
	}

	var u *store.Unit
	switch d.Kind {
	case runtime.KindSource:
		u, err = runtime.ParseJava(ctx, d.Path, content)
	case runtime.KindClass:
		var c *classfile.Class
		if c, err = classfile.Parse(content); err == nil {
			u = runtime.ClassUnit(d.Path, c, hash)
		}
	}
	if err != nil {
		return res, err
	}
	var prev *store.Unit
	if track {
		if prev, err = e.store.UnitByPath(d.Path); err != nil {
			return res, err
		}
	}
	e.place(u, d)
	if err := ds.ReplaceUnit(u); err != nil {
		return res, err
	}
	observability.IndexUnitsTotal.WithLabelValues(d.Kind).Inc()
	res.Written = 1
	if track {
		res.Changes = append(res.Changes, unitChange{Prev: prev, Next: u})
	}
	return res, nil
}

// indexArchive indexes every class entry of an archive. Entry units carry
// the archive's hash, so an unchanged archive is skipped as a whole.
func (e *Engine) indexArchive(ctx context.Context, ds store.DataStore, d document, hash string, track bool) (indexResult, error) {
	existing, err := e.entryPaths(d.Path)
	if err != nil {
		return indexResult{Seen: []string{d.Path}}, err
	}
	// Entries stay accounted for even when the archive fails to read.
	res := indexResult{Seen: slices.Clone(existing)}
	if len(existing) > 0 {
		old, err := ds.UnitHash(existing[0])
		if err != nil {
			return res, fmt.Errorf("lookup unit: %w", err)
		}
		if old == hash {
			return res, nil
		}
	}

	a, err := classfile.OpenArchive(e.abs(d.Path))
	if err != nil {
		return res, err
	}
	defer a.Close()

	kept := map[string]bool{}
	err = a.Walk(func(entry string, c *classfile.Class, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		docPath := d.Path + hierarchy.ArchiveSeparator + entry
		if err != nil {
			e.logger.Warn("class file unreadable, skipping", "path", docPath, "error", err)
			return nil
		}
		if c.IsModuleInfo() {
			return nil
		}
		var prev *store.Unit
		if track {
			if prev, err = e.store.UnitByPath(docPath); err != nil {
				return err
			}
		}
		u := runtime.ClassUnit(docPath, c, hash)
		e.place(u, d)
		if err := ds.ReplaceUnit(u); err != nil {
			return err
		}
		observability.IndexUnitsTotal.WithLabelValues(runtime.KindClass).Inc()
		if !kept[docPath] && !slices.Contains(existing, docPath) {
			res.Seen = append(res.Seen, docPath)
		}
		kept[docPath] = true
		res.Written++
		if track {
			res.Changes = append(res.Changes, unitChange{Prev: prev, Next: u})
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	// Entries dropped from the archive.
	for _, p := range existing {
		if kept[p] {
			continue
		}
		if track {
			prev, err := e.store.UnitByPath(p)
			if err != nil {
				return res, err
			}
			res.Changes = append(res.Changes, unitChange{Prev: prev})
		}
		if err := ds.DeleteUnit(p); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Engine) place(u *store.Unit, d document) {
	u.Project = d.Project
	u.Root = d.Root
	u.RootIndex = d.RootIndex
	u.IndexedAt = time.Now()
}

// FindType returns the types declared under a dotted qualified name, e.g.
// com.acme.Outer.Inner, or under a handle. Types are sorted by document
// path.
func (e *Engine) FindType(name string) ([]TypeRef, error) {
	if strings.Contains(name, "#") {
		t, err := hierarchy.ParseHandle(name)
		if err != nil {
			return nil, fmt.Errorf("lineage: %w", err)
		}
		u, err := e.store.UnitByPath(t.Path)
		if err != nil {
			return nil, fmt.Errorf("lineage: %w", err)
		}
		if u != nil {
			for _, td := range u.Types {
				if td.Name == t.Name {
					return []TypeRef{t}, nil
				}
			}
		}
		return nil, fmt.Errorf("lineage: %s: %w", name, ErrTypeNotFound)
	}

	simple := name[strings.LastIndexByte(name, '.')+1:]
	decls, err := e.store.TypesNamed(simple)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	var out []TypeRef
	for _, td := range decls {
		if td.QualifiedName() == name {
			out = append(out, TypeRef{Path: td.Path, Package: td.Package, Name: td.Name})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("lineage: %s: %w", name, ErrTypeNotFound)
	}
	slices.SortFunc(out, func(a, b TypeRef) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// abs maps a workspace-relative path to the file system.
func (e *Engine) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

// rel maps a file system path to a workspace-relative one. Relative paths
// are taken as already workspace-relative.
func (e *Engine) rel(p string) string {
	if !filepath.IsAbs(p) {
		return path.Clean(filepath.ToSlash(p))
	}
	root, err := filepath.Abs(e.root)
	if err != nil {
		return filepath.ToSlash(p)
	}
	r, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func projectOf(docPath string) string {
	project, _, _ := strings.Cut(docPath, "/")
	return project
}
