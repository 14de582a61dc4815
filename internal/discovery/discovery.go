// Package discovery finds every document that might declare a subtype of a
// focus type. It runs a breadth-first search over the index's supertype
// references: each declaration found naming a known supertype becomes a
// supertype query of its own, until no new names turn up.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/observability"
	"github.com/jward/lineage/internal/store"
)

// ErrCanceled is returned when the context ends during a search. It wraps
// the context's error.
var ErrCanceled = zerr.New("discovery canceled")

// objectName is the simple name of the universal base class. Every type is
// a subtype of it, so a query for it selects the whole index.
const objectName = "Object"

// Index answers supertype queries. *store.Store implements it.
type Index interface {
	SupertypeReferences(ctx context.Context, simpleName string, scope *store.Scope, fn func(*store.IndexRecord) error) error
}

var _ Index = (*store.Store)(nil)

// Engine runs subtype searches against an index.
type Engine struct {
	Index  Index
	Scope  *store.Scope // nil searches the whole workspace
	Logger *slog.Logger
}

// Options tune a single search.
type Options struct {
	// Progress, when set, is called after each query with the number of
	// queries issued and the number still pending.
	Progress func(queries, pending int)
}

// Result is the candidate set of one search.
type Result struct {
	Paths        map[string]struct{}
	LocalPaths   map[string]bool // paths declaring local or anonymous subtypes
	Placeholders map[string]*Placeholder
	Queries      int
	MatchedAll   bool // the search reached Object and selected everything
}

func newResult() *Result {
	return &Result{
		Paths:        map[string]struct{}{},
		LocalPaths:   map[string]bool{},
		Placeholders: map[string]*Placeholder{},
	}
}

// Sorted returns the candidate paths in lexicographic order.
func (r *Result) Sorted() []string {
	out := make([]string, 0, len(r.Paths))
	for p := range r.Paths {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Has reports whether path is a candidate.
func (r *Result) Has(path string) bool {
	_, ok := r.Paths[path]
	return ok
}

type supertypeQuery struct {
	qualifiedName string
	simpleName    string
}

// Discover searches for the documents that might declare a subtype of focus.
func (e *Engine) Discover(ctx context.Context, focus hierarchy.TypeRef, opts Options) (_ *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "discovery.Discover",
		attribute.String("type", focus.QualifiedName()))
	defer func() { observability.EndSpan(span, err) }()

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := newResult()
	foundSuperNames := map[string]struct{}{focus.QualifiedName(): {}}
	queue := newWorkQueue[supertypeQuery](8)
	queue.push(supertypeQuery{qualifiedName: focus.QualifiedName(), simpleName: focus.SimpleName()})

	for queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", ErrCanceled, err), "search stopped"), "queries", res.Queries)
		}
		q := queue.pop()

		simpleName := q.simpleName
		if simpleName == objectName {
			simpleName = store.MatchAll
			res.MatchedAll = true
		}

		res.Queries++
		observability.DiscoveryQueriesTotal.Inc()
		err := e.Index.SupertypeReferences(ctx, simpleName, e.Scope, func(rec *store.IndexRecord) error {
			if !e.accept(res, rec) || res.MatchedAll {
				return nil
			}
			name := qualifiedName(rec)
			if _, seen := foundSuperNames[name]; seen {
				return nil
			}
			foundSuperNames[name] = struct{}{}
			queue.push(supertypeQuery{qualifiedName: name, simpleName: rec.SimpleName})
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", ErrCanceled, ctxErr), "search stopped"), "queries", res.Queries)
			}
			return nil, zerr.With(zerr.Wrap(err, "supertype query"), "name", q.qualifiedName)
		}
		if opts.Progress != nil {
			opts.Progress(res.Queries, queue.len())
		}
		if res.MatchedAll {
			break
		}
	}

	logger.Debug("discovery done",
		"type", focus.QualifiedName(),
		"paths", len(res.Paths),
		"queries", res.Queries,
		"match_all", res.MatchedAll)
	span.SetAttributes(
		attribute.Int("discovery.paths", len(res.Paths)),
		attribute.Int("discovery.queries", res.Queries))
	return res, nil
}

// accept records rec's document as a candidate. It reports whether the
// matched type may itself have subtypes outside its unit.
func (e *Engine) accept(res *Result, rec *store.IndexRecord) bool {
	archive := strings.Contains(rec.DocumentPath, hierarchy.ArchiveSeparator)
	if archive {
		p, ok := res.Placeholders[rec.DocumentPath]
		if !ok {
			p = newPlaceholder(rec)
			res.Placeholders[rec.DocumentPath] = p
		}
		p.addSupertype(rec)
	}

	if !rec.IsLocal {
		res.Paths[rec.DocumentPath] = struct{}{}
		return true
	}

	unit := rec.DocumentPath
	if archive {
		var ok bool
		if unit, ok = declaringEntry(rec.DocumentPath); !ok {
			// No $ in the entry name: the type cannot be local after all.
			res.Paths[rec.DocumentPath] = struct{}{}
			return true
		}
	}
	res.Paths[unit] = struct{}{}
	res.LocalPaths[unit] = true
	return false
}

// declaringEntry maps the class file of a local or anonymous type to the
// class file of its top-level type, e.g. a.jar|p/Outer$1.class to
// a.jar|p/Outer.class.
func declaringEntry(docPath string) (string, bool) {
	archive, entry, _ := strings.Cut(docPath, hierarchy.ArchiveSeparator)
	dir, base := path.Split(entry)
	i := strings.IndexByte(base, '$')
	if i < 0 {
		return "", false
	}
	return archive + hierarchy.ArchiveSeparator + dir + base[:i] + path.Ext(base), true
}

func qualifiedName(rec *store.IndexRecord) string {
	name := strings.ReplaceAll(rec.Name, "$", ".")
	if rec.Package == "" {
		return name
	}
	return rec.Package + "." + name
}
