package lineage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/discovery"
	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/impact"
	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/resolve"
	"github.com/jward/lineage/internal/store"
)

// HierarchyOptions tune a TypeHierarchy.
type HierarchyOptions struct {
	// ComputeSubtypes searches for subtypes as well as supertypes.
	ComputeSubtypes bool
	// Project limits subtype discovery to the projects visible from it. ""
	// searches the whole workspace.
	Project string
	// WorkingCopies are in-memory sources that shadow the indexed units at
	// the same paths.
	WorkingCopies map[string][]byte
	// Owner is the working-copy owner of the focus unit, "" for the primary
	// copy.
	Owner string
}

// TypeHierarchy owns the hierarchy of one focus type. Readers get the
// current graph snapshot; Refresh builds a new one and swaps it in only on
// success.
type TypeHierarchy struct {
	engine *Engine
	focus  TypeRef
	opts   HierarchyOptions
	logger *slog.Logger

	graph        atomic.Pointer[hierarchy.Graph]
	buildID      atomic.Value // string
	needsRefresh atomic.Bool

	refreshMu sync.Mutex
	analyzer  *impact.Analyzer
	listeners hierarchy.Registry
}

var _ hierarchy.Source = (*TypeHierarchy)(nil)

// NewTypeHierarchy creates an owner for focus without building it.
func (e *Engine) NewTypeHierarchy(focus TypeRef, opts HierarchyOptions) *TypeHierarchy {
	h := &TypeHierarchy{
		engine: e,
		focus:  focus,
		opts:   opts,
		logger: e.logger.With("type", focus.QualifiedName()),
	}
	h.buildID.Store("")
	h.analyzer = &impact.Analyzer{
		Graph:      h.Graph,
		Workspace:  e.store,
		FocusOwner: opts.Owner,
		Logger:     h.logger,
	}
	h.listeners.OnFirst = func() { e.subscribe(h) }
	h.listeners.OnLast = func() { e.unsubscribe(h) }
	h.listeners.Logger = h.logger
	return h
}

// TypeHierarchy builds the super- and subtype hierarchy of focus.
func (e *Engine) TypeHierarchy(ctx context.Context, focus TypeRef, opts HierarchyOptions) (*TypeHierarchy, error) {
	opts.ComputeSubtypes = true
	h := e.NewTypeHierarchy(focus, opts)
	if err := h.Refresh(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// SupertypeHierarchy builds the supertype hierarchy of focus.
func (e *Engine) SupertypeHierarchy(ctx context.Context, focus TypeRef, opts HierarchyOptions) (*TypeHierarchy, error) {
	opts.ComputeSubtypes = false
	h := e.NewTypeHierarchy(focus, opts)
	if err := h.Refresh(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Graph returns the current snapshot, nil before the first build.
func (h *TypeHierarchy) Graph() *hierarchy.Graph { return h.graph.Load() }

// Focus returns the focus type.
func (h *TypeHierarchy) Focus() TypeRef { return h.focus }

// ComputeSubtypes reports whether the hierarchy includes subtypes.
func (h *TypeHierarchy) ComputeSubtypes() bool { return h.opts.ComputeSubtypes }

// BuildID identifies the build behind the current graph.
func (h *TypeHierarchy) BuildID() string { return h.buildID.Load().(string) }

// NeedsRefresh reports whether a delta has invalidated the current graph.
func (h *TypeHierarchy) NeedsRefresh() bool { return h.needsRefresh.Load() }

// SetWorkingCopies replaces the in-memory sources used by the next Refresh.
func (h *TypeHierarchy) SetWorkingCopies(copies map[string][]byte) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()
	h.opts.WorkingCopies = copies
}

// Refresh rebuilds the graph. Only one refresh runs at a time. On error or
// cancellation the previous graph stays in place.
func (h *TypeHierarchy) Refresh(ctx context.Context) (err error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	if h.focus.IsZero() {
		return zerr.New("lineage: a focus type is required")
	}
	buildID := uuid.NewString()
	logger := h.logger.With("build_id", buildID)
	ctx, span := observability.StartSpan(ctx, "lineage.Refresh",
		attribute.String("type", h.focus.QualifiedName()),
		attribute.String("build_id", buildID),
		attribute.Bool("subtypes", h.opts.ComputeSubtypes))
	defer func() { observability.EndSpan(span, err) }()
	defer func() {
		switch {
		case err == nil:
			observability.HierarchyBuildsTotal.WithLabelValues(observability.ResultOK).Inc()
		case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			observability.HierarchyBuildsTotal.WithLabelValues(observability.ResultCanceled).Inc()
		default:
			observability.HierarchyBuildsTotal.WithLabelValues(observability.ResultError).Inc()
		}
	}()

	e := h.engine
	g := hierarchy.New(
		hierarchy.WithLogger(logger),
		hierarchy.WithFocus(h.focus, h.opts.ComputeSubtypes),
		hierarchy.WithProject(h.opts.Project))

	var candidates *discovery.Result
	if h.opts.ComputeSubtypes {
		start := time.Now()
		scope, err := h.scope()
		if err != nil {
			return err
		}
		d := &discovery.Engine{Index: e.store, Scope: scope, Logger: logger}
		candidates, err = d.Discover(ctx, h.focus, discovery.Options{})
		if err != nil {
			return fmt.Errorf("lineage: %w", err)
		}
		observability.HierarchyBuildDuration.WithLabelValues(observability.PhaseDiscovery).Observe(time.Since(start).Seconds())
	}

	start := time.Now()
	c := &resolve.Coordinator{
		Workspace: &resolve.StoreWorkspace{Index: e.store},
		Resolver:  e.resolver,
		Archives:  e.archives,
		Logger:    logger,
	}
	err = c.Build(ctx, g, resolve.Request{
		Focus:           h.focus,
		ComputeSubtypes: h.opts.ComputeSubtypes,
		Candidates:      candidates,
		WorkingCopies:   h.opts.WorkingCopies,
	})
	if err != nil {
		return fmt.Errorf("lineage: %w", err)
	}
	observability.HierarchyBuildDuration.WithLabelValues(observability.PhaseResolution).Observe(time.Since(start).Seconds())

	h.publish(g, buildID)
	logger.Debug("hierarchy built", "types", g.Size(), "missing", len(g.MissingTypes()))
	return nil
}

// publish swaps g in and clears pending invalidations.
func (h *TypeHierarchy) publish(g *hierarchy.Graph, buildID string) {
	h.graph.Store(g)
	h.buildID.Store(buildID)
	h.needsRefresh.Store(false)
	h.analyzer.ResetChanges()
	observability.GraphTypes.Set(float64(g.Size()))
}

// scope limits discovery to the projects visible from the hierarchy's
// project.
func (h *TypeHierarchy) scope() (*store.Scope, error) {
	if h.opts.Project == "" {
		return nil, nil
	}
	visible, err := h.engine.store.VisibleProjects(h.opts.Project)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	return store.NewScope(visible, nil, nil)
}

// ElementChanged feeds a delta to the hierarchy. When the hierarchy is
// affected it is marked for refresh and listeners are told. Nothing happens
// while a refresh is already pending.
func (h *TypeHierarchy) ElementChanged(d *Delta, event EventType) bool {
	if h.needsRefresh.Load() || h.Graph() == nil {
		return false
	}
	if !h.analyzer.IsAffected(d, event) {
		return false
	}
	if h.needsRefresh.CompareAndSwap(false, true) {
		h.logger.Debug("hierarchy invalidated", "element", d.Element.Kind.String(), "path", d.Element.Path)
		// Each failing listener was already logged by the registry.
		if err := h.FireChange(); err != nil {
			h.logger.Debug("listeners failed", "error", err)
		}
	}
	return true
}

// HasFineGrainChanges reports whether batched working-copy edits call for
// a refresh.
func (h *TypeHierarchy) HasFineGrainChanges() bool {
	return h.analyzer.HasFineGrainChanges()
}

// AddListener registers l. The first listener subscribes the hierarchy to
// the engine's change delivery.
func (h *TypeHierarchy) AddListener(l Listener) { h.listeners.Add(l) }

// RemoveListener unregisters l. Removing the last listener unsubscribes.
func (h *TypeHierarchy) RemoveListener(l Listener) { h.listeners.Remove(l) }

// FireChange tells every listener that the hierarchy changed.
func (h *TypeHierarchy) FireChange() error { return h.listeners.Fire(h) }

// Store encodes the current graph to w.
func (h *TypeHierarchy) Store(w io.Writer) error {
	g := h.Graph()
	if g == nil {
		return zerr.New("lineage: hierarchy not built")
	}
	return hierarchy.Encode(w, g)
}

// Exists reports whether the focus type is still declared in the index.
// External types always exist.
func (h *TypeHierarchy) Exists() bool {
	if h.focus.IsExternal() {
		return true
	}
	if _, ok := h.opts.WorkingCopies[h.focus.Path]; ok {
		return true
	}
	u, err := h.engine.store.UnitByPath(h.focus.Path)
	if err != nil {
		h.logger.Debug("focus lookup failed", "error", err)
		return false
	}
	if u == nil {
		return false
	}
	for _, td := range u.Types {
		if td.Name == h.focus.Name {
			return true
		}
	}
	return false
}

// subscribe adds h to the hierarchies that receive watch deltas.
func (e *Engine) subscribe(h *TypeHierarchy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.owners {
		if o == h {
			return
		}
	}
	e.owners = append(e.owners, h)
}

func (e *Engine) unsubscribe(h *TypeHierarchy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, o := range e.owners {
		if o == h {
			e.owners = append(e.owners[:i], e.owners[i+1:]...)
			return
		}
	}
}

func (e *Engine) subscribers() []*TypeHierarchy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*TypeHierarchy(nil), e.owners...)
}
