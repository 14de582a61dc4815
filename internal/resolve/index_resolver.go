package resolve

import (
	"context"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/store"
)

// IndexResolver resolves supertypes from the declarations in the index.
// Supertypes that land in units outside the batch are loaded and resolved
// too, so the chain above every candidate is complete.
type IndexResolver struct{}

var _ Resolver = (*IndexResolver)(nil)

// Resolve implements Resolver.
func (r *IndexResolver) Resolve(ctx context.Context, env *Environment, units []Candidate, local map[string]bool, sink Sink) error {
	run := &indexRun{env: env, sink: sink, reported: map[hierarchy.TypeRef]bool{}, queued: map[string]bool{}}
	for _, c := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		run.queued[c.Path] = true
		run.unit(ctx, c.Path, local[c.Path])
		if local[c.Path] {
			for _, p := range env.LocalEntries(c.Path) {
				run.queued[p] = true
				run.unit(ctx, p, true)
			}
		}
	}
	for len(run.work) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := run.work[0]
		run.work = run.work[1:]
		run.unit(ctx, p, false)
	}
	return nil
}

type indexRun struct {
	env      *Environment
	sink     Sink
	reported map[hierarchy.TypeRef]bool
	queued   map[string]bool
	work     []string
}

func (r *indexRun) unit(ctx context.Context, path string, withLocal bool) {
	u, err := r.env.Unit(ctx, path)
	if err != nil {
		r.sink.Fail(path, err)
		return
	}
	for i := range u.Types {
		td := &u.Types[i]
		if td.IsLocal && !withLocal {
			continue
		}
		rt, err := r.resolveType(ctx, u, td)
		if err != nil {
			r.sink.Fail(path, err)
			return
		}
		if r.reported[rt.Type] {
			continue
		}
		r.reported[rt.Type] = true
		r.sink.Report(rt)
		if rt.Superclass != nil {
			r.follow(*rt.Superclass)
		}
		for _, s := range rt.Interfaces {
			r.follow(s)
		}
	}
}

// follow queues the unit declaring t when it has not been seen yet.
func (r *indexRun) follow(t hierarchy.TypeRef) {
	if t.IsExternal() || r.queued[t.Path] || r.env.Loaded(t.Path) {
		return
	}
	r.queued[t.Path] = true
	r.work = append(r.work, t.Path)
}

func (r *indexRun) resolveType(ctx context.Context, u *store.Unit, td *store.TypeDecl) (ResolvedType, error) {
	t := hierarchy.TypeRef{Path: u.Path, Package: u.Package, Name: td.Name}
	flags := hierarchy.Flags(td.Modifiers)
	if td.IsInterface {
		flags |= hierarchy.FlagInterface
	}
	rt := ResolvedType{Type: t, Root: u.Root, Flags: flags}

	bind := func(written string) (*store.TypeDecl, error) {
		found, err := r.env.ResolveName(ctx, u, td, written)
		if err != nil {
			return nil, err
		}
		if found == nil {
			rt.Missing = append(rt.Missing, lastSegment(compactName(store.StripTypeArguments(written))))
		}
		return found, nil
	}

	if !td.IsInterface {
		anonymous := td.IsLocal && td.SimpleName == ""
		switch {
		case td.Superclass != "":
			found, err := bind(td.Superclass)
			if err != nil {
				return rt, err
			}
			switch {
			case found == nil:
				if isObjectName(td.Superclass) {
					obj := hierarchy.ObjectRef
					rt.Superclass = &obj
					rt.Missing = rt.Missing[:len(rt.Missing)-1]
				}
			case anonymous && found.IsInterface:
				rt.Interfaces = append(rt.Interfaces, declRef(found))
				sc, err := r.implicitSuperclass(ctx, "Object")
				if err != nil {
					return rt, err
				}
				rt.Superclass = &sc
			default:
				sc := declRef(found)
				rt.Superclass = &sc
			}
		case !isObject(t):
			sc, err := r.implicitSuperclass(ctx, implicitSuperclassName(td))
			if err != nil {
				return rt, err
			}
			rt.Superclass = &sc
		}
	}

	for _, written := range td.Interfaces {
		found, err := bind(written)
		if err != nil {
			return rt, err
		}
		if found != nil {
			rt.Interfaces = append(rt.Interfaces, declRef(found))
		}
	}
	return rt, nil
}

// implicitSuperclass returns the java.lang type a class extends without an
// extends clause, falling back to an external ref when it is not indexed.
func (r *indexRun) implicitSuperclass(ctx context.Context, name string) (hierarchy.TypeRef, error) {
	found, err := r.env.Lookup(ctx, "java.lang", name)
	if err != nil {
		return hierarchy.TypeRef{}, err
	}
	if found != nil {
		return declRef(found), nil
	}
	return hierarchy.TypeRef{Package: "java.lang", Name: name}, nil
}

func implicitSuperclassName(td *store.TypeDecl) string {
	switch td.Kind {
	case store.KindEnum:
		return "Enum"
	case store.KindRecord:
		return "Record"
	}
	return "Object"
}

func declRef(td *store.TypeDecl) hierarchy.TypeRef {
	return hierarchy.TypeRef{Path: td.Path, Package: td.Package, Name: td.Name}
}

func isObject(t hierarchy.TypeRef) bool {
	return t.Package == hierarchy.ObjectRef.Package && t.Name == hierarchy.ObjectRef.Name
}

func isObjectName(written string) bool {
	n := compactName(store.StripTypeArguments(written))
	return n == "Object" || n == "java.lang.Object"
}
