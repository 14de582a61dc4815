package resolve

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"
	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/runtime"
	"github.com/jward/lineage/internal/store"
)

// ScriptResolver delegates supertype binding to a Risor script. The script
// sees these globals besides the runtime's own:
//
//	units                        candidate units, as maps with a handle per type
//	local                        map of unit paths whose local types are wanted
//	load(path)                   another unit, or nil when it cannot be read
//	local_entries(path)          class files of local types inside an archive entry
//	resolve(path, type, written) the declaration a supertype name binds to, or nil
//	lookup(package, name)        a visible type by binary name, or nil
//	simple_name(written)         the simple name a missing supertype is recorded under
//	report(map)                  records a type: handle, flags, is_interface, superclass, interfaces, missing
//	fail(path, message)          skips a unit
type ScriptResolver struct {
	Runtime *runtime.Runtime
	Script  string // script path, relative to the runtime's scripts
}

var _ Resolver = (*ScriptResolver)(nil)

// Resolve implements Resolver.
func (r *ScriptResolver) Resolve(ctx context.Context, env *Environment, units []Candidate, local map[string]bool, sink Sink) error {
	list := make([]object.Object, 0, len(units))
	for _, c := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		u, err := env.Unit(ctx, c.Path)
		if err != nil {
			sink.Fail(c.Path, err)
			continue
		}
		list = append(list, unitWithHandles(u))
	}
	localObj := make(map[string]object.Object, len(local))
	for p, l := range local {
		localObj[p] = object.NewBool(l)
	}

	b := &scriptBindings{env: env, sink: sink}
	globals := map[string]any{
		"units":         object.NewList(list),
		"local":         object.NewMap(localObj),
		"load":          object.NewBuiltin("load", b.load),
		"local_entries": object.NewBuiltin("local_entries", b.localEntries),
		"resolve":       object.NewBuiltin("resolve", b.resolve),
		"lookup":        object.NewBuiltin("lookup", b.lookup),
		"simple_name":   object.NewBuiltin("simple_name", simpleName),
		"report":        object.NewBuiltin("report", b.report),
		"fail":          object.NewBuiltin("fail", b.fail),
	}
	if err := r.Runtime.RunScript(ctx, r.Script, globals); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return zerr.With(zerr.Wrap(err, "resolver script"), "project", env.Project)
	}
	return nil
}

type scriptBindings struct {
	env  *Environment
	sink Sink
}

func (b *scriptBindings) load(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("load", 1, len(args))
	}
	p, ok := args[0].(*object.String)
	if !ok {
		return object.Errorf("load: expected string, got %s", args[0].Type())
	}
	u, err := b.env.Unit(ctx, p.Value())
	if err != nil {
		b.sink.Fail(p.Value(), err)
		return object.Nil
	}
	return unitWithHandles(u)
}

func (b *scriptBindings) localEntries(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("local_entries", 1, len(args))
	}
	p, ok := args[0].(*object.String)
	if !ok {
		return object.Errorf("local_entries: expected string, got %s", args[0].Type())
	}
	entries := b.env.LocalEntries(p.Value())
	out := make([]object.Object, 0, len(entries))
	for _, e := range entries {
		out = append(out, object.NewString(e))
	}
	return object.NewList(out)
}

func (b *scriptBindings) resolve(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 3 {
		return object.NewArgsError("resolve", 3, len(args))
	}
	strs, err := stringArgs(args)
	if err != nil {
		return object.Errorf("resolve: %v", err)
	}
	path, typeName, written := strs[0], strs[1], strs[2]
	u, err := b.env.Unit(ctx, path)
	if err != nil {
		return object.Errorf("resolve: %v", err)
	}
	var td *store.TypeDecl
	for i := range u.Types {
		if u.Types[i].Name == typeName {
			td = &u.Types[i]
			break
		}
	}
	if td == nil {
		return object.Errorf("resolve: no type %s in %s", typeName, path)
	}
	found, err := b.env.ResolveName(ctx, u, td, written)
	if err != nil {
		return object.Errorf("resolve: %v", err)
	}
	return declWithHandle(found)
}

func (b *scriptBindings) lookup(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("lookup", 2, len(args))
	}
	pkg, ok1 := args[0].(*object.String)
	name, ok2 := args[1].(*object.String)
	if !ok1 || !ok2 {
		return object.Errorf("lookup: expected package and name strings")
	}
	found, err := b.env.Lookup(ctx, pkg.Value(), name.Value())
	if err != nil {
		return object.Errorf("lookup: %v", err)
	}
	return declWithHandle(found)
}

func (b *scriptBindings) report(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("report", 1, len(args))
	}
	m, err := runtime.AsFields(args[0])
	if err != nil {
		return object.Errorf("report: %v", err)
	}
	t, err := hierarchy.ParseHandle(m.String("handle"))
	if err != nil {
		return object.Errorf("report: %v", err)
	}
	rt := ResolvedType{Type: t, Flags: hierarchy.Flags(m.Int("flags"))}
	if m.Bool("is_interface") {
		rt.Flags |= hierarchy.FlagInterface
	}
	if !t.IsExternal() {
		if u, err := b.env.Unit(ctx, t.Path); err == nil {
			rt.Root = u.Root
		}
	}
	if h := m.String("superclass"); h != "" {
		sc, err := hierarchy.ParseHandle(h)
		if err != nil {
			return object.Errorf("report: superclass: %v", err)
		}
		rt.Superclass = &sc
	}
	ifaces, err := m.Strings("interfaces")
	if err != nil {
		return object.Errorf("report: interfaces: %v", err)
	}
	for _, h := range ifaces {
		i, err := hierarchy.ParseHandle(h)
		if err != nil {
			return object.Errorf("report: interface: %v", err)
		}
		rt.Interfaces = append(rt.Interfaces, i)
	}
	missing, err := m.Strings("missing")
	if err != nil {
		return object.Errorf("report: missing: %v", err)
	}
	if len(missing) > 0 {
		rt.Missing = missing
	}
	b.sink.Report(rt)
	return object.Nil
}

func (b *scriptBindings) fail(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewArgsError("fail", 2, len(args))
	}
	strs, err := stringArgs(args)
	if err != nil {
		return object.Errorf("fail: %v", err)
	}
	b.sink.Fail(strs[0], zerr.New(strs[1]))
	return object.Nil
}

func simpleName(ctx context.Context, args ...object.Object) object.Object {
	if len(args) != 1 {
		return object.NewArgsError("simple_name", 1, len(args))
	}
	strs, err := stringArgs(args)
	if err != nil {
		return object.Errorf("simple_name: %v", err)
	}
	return object.NewString(lastSegment(compactName(store.StripTypeArguments(strs[0]))))
}

func stringArgs(args []object.Object) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := a.(*object.String)
		if !ok {
			return nil, fmt.Errorf("argument %d: expected string, got %s", i+1, a.Type())
		}
		out[i] = s.Value()
	}
	return out, nil
}

func declWithHandle(td *store.TypeDecl) object.Object {
	if td == nil {
		return object.Nil
	}
	obj := runtime.DeclObject(td).(*object.Map)
	obj.Set("handle", object.NewString(declRef(td).Handle()))
	return obj
}

func unitWithHandles(u *store.Unit) object.Object {
	types := make([]object.Object, 0, len(u.Types))
	for i := range u.Types {
		types = append(types, declWithHandle(unitDecl(u, &u.Types[i])))
	}
	obj := runtime.UnitObject(u).(*object.Map)
	obj.Set("types", object.NewList(types))
	return obj
}
