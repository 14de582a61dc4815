package resolve

import (
	"cmp"
	"context"
	"log/slog"
	"path"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/discovery"
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/store"
)

// Workspace supplies per-project environments and the classpath position of
// candidate units.
type Workspace interface {
	Environment(ctx context.Context, project string, archives *ArchiveSet, opts ...EnvOption) (*Environment, error)
	RootOf(path string) (*store.Root, error)
}

// Request describes one build.
type Request struct {
	Focus           hierarchy.TypeRef // zero for a workspace-wide graph
	ComputeSubtypes bool
	Candidates      *discovery.Result // nil when only supertypes are computed
	WorkingCopies   map[string][]byte
}

// Coordinator orders candidate units, drives the Resolver project by
// project, and folds the results into a graph.
type Coordinator struct {
	Workspace Workspace
	Resolver  Resolver
	Archives  *Archives
	Logger    *slog.Logger
}

// Build resolves req into g. A failing unit or project is logged and
// skipped; only cancellation aborts the build, in which case g must be
// discarded.
func (c *Coordinator) Build(ctx context.Context, g *hierarchy.Graph, req Request) (err error) {
	ctx, span := observability.StartSpan(ctx, "resolve.Build",
		attribute.String("type", req.Focus.QualifiedName()),
		attribute.Bool("subtypes", req.ComputeSubtypes))
	defer func() { observability.EndSpan(span, err) }()

	logger := c.logger()
	set := c.Archives.Acquire()
	defer func() {
		if rerr := set.Release(); rerr != nil {
			logger.Warn("releasing archives", "error", rerr)
		}
	}()

	local := map[string]bool{}
	var placeholders map[string]*discovery.Placeholder
	paths := map[string]struct{}{}
	hasFocus := !req.Focus.IsZero()

	if hasFocus && req.Focus.IsLocal() {
		paths[req.Focus.Path] = struct{}{}
		local[req.Focus.Path] = true
	} else {
		if req.Candidates != nil {
			for p := range req.Candidates.Paths {
				paths[p] = struct{}{}
			}
			for p, l := range req.Candidates.LocalPaths {
				local[p] = l
			}
			placeholders = req.Candidates.Placeholders
		}
		for p := range req.WorkingCopies {
			paths[p] = struct{}{}
		}
		if hasFocus && !req.Focus.IsExternal() {
			paths[req.Focus.Path] = struct{}{}
		}
	}

	sink := newCollector(logger)
	for _, run := range c.partition(paths) {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "resolution canceled")
		}
		if err := c.resolveRun(ctx, run, set, req.WorkingCopies, placeholders, local, sink); err != nil {
			if ctx.Err() != nil {
				return zerr.Wrap(ctx.Err(), "resolution canceled")
			}
			logger.Warn("project resolution failed, skipping", "project", run[0].Project, "error", err)
		}
	}

	connect(g, sink, req.Focus, req.ComputeSubtypes)

	if hasFocus && !g.Contains(req.Focus) && !req.Focus.IsExternal() {
		// Nothing claimed the focus; resolve its unit on its own.
		single := newCollector(logger)
		run := []Candidate{c.candidate(req.Focus.Path)}
		if err := c.resolveRun(ctx, run, set, req.WorkingCopies, nil, map[string]bool{req.Focus.Path: req.Focus.IsLocal()}, single); err != nil {
			if ctx.Err() != nil {
				return zerr.Wrap(ctx.Err(), "resolution canceled")
			}
			logger.Warn("focus resolution failed", "type", req.Focus.QualifiedName(), "error", err)
		}
		connect(g, single, req.Focus, req.ComputeSubtypes)
	}
	if hasFocus && !g.Contains(req.Focus) {
		g.AddRootClass(req.Focus)
		if !req.Focus.IsExternal() {
			g.AddFile(req.Focus.Path, c.candidate(req.Focus.Path).Root, req.Focus)
		}
	}
	g.InitializeRegions()

	span.SetAttributes(
		attribute.Int("resolve.units", len(paths)),
		attribute.Int("resolve.failures", sink.failures),
		attribute.Int("graph.types", g.Size()))
	return nil
}

func (c *Coordinator) resolveRun(ctx context.Context, run []Candidate, set *ArchiveSet, copies map[string][]byte, placeholders map[string]*discovery.Placeholder, local map[string]bool, sink Sink) error {
	project := run[0].Project
	env, err := c.Workspace.Environment(ctx, project, set,
		WithWorkingCopies(copies),
		WithPlaceholders(placeholders),
		WithEnvLogger(c.logger()))
	if err != nil {
		return err
	}
	return c.Resolver.Resolve(ctx, env, run, local, sink)
}

// partition sorts paths, splits them into runs of one project, and orders
// each run by ascending root index, then descending name.
func (c *Coordinator) partition(paths map[string]struct{}) [][]Candidate {
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	slices.Sort(sorted)

	var runs [][]Candidate
	for _, p := range sorted {
		cand := c.candidate(p)
		if n := len(runs); n > 0 && runs[n-1][0].Project == cand.Project {
			runs[n-1] = append(runs[n-1], cand)
			continue
		}
		runs = append(runs, []Candidate{cand})
	}
	for _, run := range runs {
		slices.SortStableFunc(run, func(a, b Candidate) int {
			return cmp.Or(cmp.Compare(a.RootIndex, b.RootIndex), cmp.Compare(b.Name, a.Name))
		})
	}
	return runs
}

func (c *Coordinator) candidate(p string) Candidate {
	cand := Candidate{Path: p, Project: projectOf(p), Name: elementName(p)}
	if r, err := c.Workspace.RootOf(p); err == nil && r != nil {
		cand.Root, cand.RootIndex = r.Path, r.Index
	}
	return cand
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// elementName is the base name of a unit or archive entry without its
// extension.
func elementName(p string) string {
	if _, entry, ok := strings.Cut(p, hierarchy.ArchiveSeparator); ok {
		p = entry
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// collector is the Sink used by builds.
type collector struct {
	logger   *slog.Logger
	order    []hierarchy.TypeRef
	types    map[hierarchy.TypeRef]ResolvedType
	failures int
}

func newCollector(logger *slog.Logger) *collector {
	return &collector{logger: logger, types: map[hierarchy.TypeRef]ResolvedType{}}
}

func (s *collector) Report(rt ResolvedType) {
	if _, ok := s.types[rt.Type]; ok {
		return
	}
	s.types[rt.Type] = rt
	s.order = append(s.order, rt.Type)
}

func (s *collector) Fail(path string, err error) {
	s.failures++
	s.logger.Warn("unit resolution failed, skipping", "path", path, "error", err)
}

// connect adds the collected types related to focus to g. Without a focus
// every type is added. Supertypes that were referenced but never resolved
// from a unit enter as root classes. java.lang.Object goes last, and only
// when the focus's superclass resolved.
func connect(g *hierarchy.Graph, s *collector, focus hierarchy.TypeRef, computeSubtypes bool) {
	keep := related(s, focus, computeSubtypes)

	var object *ResolvedType
	var external []hierarchy.TypeRef
	for _, t := range s.order {
		if !keep[t] {
			continue
		}
		rt := s.types[t]
		if isObject(t) {
			object = &rt
			continue
		}
		add(g, rt)
		supers := rt.Interfaces
		if rt.Superclass != nil {
			supers = append(slices.Clone(supers), *rt.Superclass)
		}
		for _, st := range supers {
			if _, ok := s.types[st]; !ok && st.IsExternal() && !slices.Contains(external, st) {
				external = append(external, st)
			}
		}
	}
	for _, t := range external {
		if isObject(t) {
			if object == nil {
				object = &ResolvedType{Type: t}
			}
			continue
		}
		g.AddRootClass(t)
	}
	if object != nil {
		focusRT, ok := s.types[focus]
		if focus.IsZero() || isObject(focus) || !ok || focusRT.Superclass != nil || focusRT.Flags.IsInterface() {
			add(g, *object)
		}
	}
}

func add(g *hierarchy.Graph, rt ResolvedType) {
	t := rt.Type
	g.CacheFlags(t, rt.Flags)
	switch {
	case rt.Flags.IsInterface():
		g.AddInterface(t)
	case rt.Superclass == nil:
		g.AddRootClass(t)
	default:
		if !g.CacheSuperclass(t, *rt.Superclass) {
			// The edge would have closed a cycle; the class now tops its chain.
			g.AddRootClass(t)
		}
	}
	g.CacheSuperInterfaces(t, rt.Interfaces)
	for _, m := range rt.Missing {
		g.AddMissingType(m)
	}
	if !t.IsExternal() {
		g.AddFile(t.Path, rt.Root, t)
	}
}

// related returns the types that are supertypes of focus, or subtypes of
// focus when computeSubtypes is set, plus focus itself. Without a focus all
// collected types are related.
func related(s *collector, focus hierarchy.TypeRef, computeSubtypes bool) map[hierarchy.TypeRef]bool {
	keep := make(map[hierarchy.TypeRef]bool, len(s.order))
	if focus.IsZero() {
		for _, t := range s.order {
			keep[t] = true
		}
		return keep
	}

	walk := func(next func(hierarchy.TypeRef) []hierarchy.TypeRef) {
		stack := []hierarchy.TypeRef{focus}
		keep[focus] = true
		for len(stack) > 0 {
			t := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, n := range next(t) {
				if !keep[n] {
					keep[n] = true
					stack = append(stack, n)
				}
			}
		}
	}

	walk(func(t hierarchy.TypeRef) []hierarchy.TypeRef {
		rt, ok := s.types[t]
		if !ok {
			return nil
		}
		out := slices.Clone(rt.Interfaces)
		if rt.Superclass != nil && *rt.Superclass != t {
			out = append(out, *rt.Superclass)
		}
		return out
	})
	if !computeSubtypes {
		return keep
	}

	subtypes := map[hierarchy.TypeRef][]hierarchy.TypeRef{}
	for _, t := range s.order {
		rt := s.types[t]
		if rt.Superclass != nil && *rt.Superclass != t {
			subtypes[*rt.Superclass] = append(subtypes[*rt.Superclass], t)
		}
		for _, i := range rt.Interfaces {
			subtypes[i] = append(subtypes[i], t)
		}
	}
	walk(func(t hierarchy.TypeRef) []hierarchy.TypeRef { return subtypes[t] })
	return keep
}
