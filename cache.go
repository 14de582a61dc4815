package lineage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/store"
)

// StoreHierarchy writes h's current graph to the hierarchy cache, tagged
// with the index fingerprint it was built against.
func (e *Engine) StoreHierarchy(ctx context.Context, h *TypeHierarchy) (err error) {
	_, span := observability.StartSpan(ctx, "lineage.StoreHierarchy",
		attribute.String("type", h.focus.QualifiedName()))
	defer func() { observability.EndSpan(span, err) }()

	var buf bytes.Buffer
	if err := h.Store(&buf); err != nil {
		return fmt.Errorf("lineage: encode hierarchy: %w", err)
	}
	fp, err := e.store.Fingerprint()
	if err != nil {
		return fmt.Errorf("lineage: %w", err)
	}
	err = e.store.PutHierarchy(&store.CachedHierarchy{
		FocusHandle:     h.focus.Handle(),
		ComputeSubtypes: h.opts.ComputeSubtypes,
		Data:            buf.Bytes(),
		GraphHash:       fp,
		BuildID:         h.BuildID(),
		BuiltAt:         time.Now(),
	})
	if err != nil {
		return fmt.Errorf("lineage: %w", err)
	}
	return nil
}

// LoadHierarchy returns the cached hierarchy of focus. It fails with
// ErrNotCached when there is no entry or the index changed since the entry
// was written.
func (e *Engine) LoadHierarchy(ctx context.Context, focus TypeRef, opts HierarchyOptions) (_ *TypeHierarchy, err error) {
	_, span := observability.StartSpan(ctx, "lineage.LoadHierarchy",
		attribute.String("type", focus.QualifiedName()))
	defer func() { observability.EndSpan(span, err) }()

	c, err := e.store.Hierarchy(focus.Handle(), opts.ComputeSubtypes)
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	if c == nil {
		return nil, zerr.With(ErrNotCached, "type", focus.QualifiedName())
	}
	fp, err := e.store.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("lineage: %w", err)
	}
	if fp != c.GraphHash {
		return nil, zerr.With(zerr.Wrap(ErrNotCached, "index changed since the hierarchy was cached"),
			"type", focus.QualifiedName())
	}

	g, err := hierarchy.Decode(bytes.NewReader(c.Data), &focus, hierarchy.IdentityResolver)
	if err != nil {
		return nil, fmt.Errorf("lineage: decode cached hierarchy: %w", err)
	}
	if g.Project() != opts.Project {
		return nil, zerr.With(zerr.Wrap(ErrNotCached, "cached for another project"),
			"type", focus.QualifiedName(), "project", g.Project())
	}
	g.SetFocus(focus)
	g.RestoreFiles(func(path string) string {
		r, err := e.store.RootOf(path)
		if err != nil || r == nil {
			return ""
		}
		return r.Path
	})

	h := e.NewTypeHierarchy(focus, opts)
	h.publish(g, c.BuildID)
	e.logger.Debug("hierarchy loaded from cache", "type", focus.QualifiedName(), "build_id", c.BuildID)
	return h, nil
}

// ClearCache empties the hierarchy cache and reports how many entries it
// held.
func (e *Engine) ClearCache() (int64, error) {
	n, err := e.store.DeleteHierarchies()
	if err != nil {
		return 0, fmt.Errorf("lineage: %w", err)
	}
	return n, nil
}
