package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/lineage/internal/store"
)

// Host functions over the type index. Risor scripts cannot construct Go
// struct pointers, so these exchange plain maps and lists.

func makeLookupTypesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("lookup_types", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 2 || len(args) > 3 {
			return object.NewArgsError("lookup_types", 2, len(args))
		}
		pkg, err := toString(args[0])
		if err != nil {
			return object.Errorf("lookup_types: package: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("lookup_types: name: %v", err)
		}
		var projects []string
		if len(args) == 3 {
			if projects, err = toStringList(args[2]); err != nil {
				return object.Errorf("lookup_types: projects: %v", err)
			}
		}
		types, queryErr := s.LookupTypes(pkg, name, projects)
		if queryErr != nil {
			return object.Errorf("lookup_types: %v", queryErr)
		}
		return declsToList(types)
	})
}

func makeTypesNamedFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("types_named", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("types_named", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("types_named: %v", err)
		}
		types, queryErr := s.TypesNamed(name)
		if queryErr != nil {
			return object.Errorf("types_named: %v", queryErr)
		}
		return declsToList(types)
	})
}

func makeUnitFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("unit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("unit", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("unit: %v", err)
		}
		u, queryErr := s.UnitByPath(path)
		if queryErr != nil {
			return object.Errorf("unit: %v", queryErr)
		}
		if u == nil {
			return object.Nil
		}
		return UnitObject(u)
	})
}

func makeVisibleProjectsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("visible_projects", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("visible_projects", 1, len(args))
		}
		project, err := toString(args[0])
		if err != nil {
			return object.Errorf("visible_projects: %v", err)
		}
		projects, queryErr := s.VisibleProjects(project)
		if queryErr != nil {
			return object.Errorf("visible_projects: %v", queryErr)
		}
		return stringsToList(projects)
	})
}

// db_query(sql, args...) → [{column: value}]
//
// Only SELECT statements run.
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) == 0 {
			return object.NewArgsError("db_query", 1, 0)
		}
		query, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		if !isSelect(query) {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}
		params := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			params = append(params, a.Interface())
		}
		rows, err := s.DB().QueryContext(ctx, query, params...)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer rows.Close()
		out, err := rowsToList(rows)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		return out
	})
}

func cellObject(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case int64:
		return object.NewInt(v)
	case float64:
		return object.NewFloat(v)
	case bool:
		return object.NewBool(v)
	case []byte:
		return object.NewString(string(v))
	case string:
		return object.NewString(v)
	}
	return object.NewString(fmt.Sprint(v))
}

func isSelect(query string) bool {
	fields := strings.Fields(query)
	return len(fields) > 0 && strings.EqualFold(fields[0], "SELECT")
}

func rowsToList(rows *sql.Rows) (object.Object, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []object.Object{}
	cells := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]object.Object, len(cols))
		for i, col := range cols {
			row[col] = cellObject(cells[i])
		}
		out = append(out, object.NewMap(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return object.NewList(out), nil
}

// --- Conversions ---

// DeclObject converts a type declaration to a Risor map.
func DeclObject(td *store.TypeDecl) object.Object {
	return object.NewMap(map[string]object.Object{
		"path":            object.NewString(td.Path),
		"package":         object.NewString(td.Package),
		"project":         object.NewString(td.Project),
		"name":            object.NewString(td.Name),
		"simple_name":     object.NewString(td.SimpleName),
		"enclosing_name":  object.NewString(td.EnclosingName),
		"modifiers":       object.NewInt(int64(td.Modifiers)),
		"type_parameters": object.NewString(td.TypeParameters),
		"is_interface":    object.NewBool(td.IsInterface),
		"is_local":        object.NewBool(td.IsLocal),
		"kind":            object.NewString(td.Kind),
		"superclass":      object.NewString(td.Superclass),
		"interfaces":      stringsToList(td.Interfaces),
	})
}

// UnitObject converts a unit with its imports and types to a Risor map.
func UnitObject(u *store.Unit) object.Object {
	imports := make([]object.Object, 0, len(u.Imports))
	for _, imp := range u.Imports {
		imports = append(imports, object.NewMap(map[string]object.Object{
			"name":      object.NewString(imp.Name),
			"on_demand": object.NewBool(imp.OnDemand),
			"static":    object.NewBool(imp.Static),
		}))
	}
	types := make([]object.Object, 0, len(u.Types))
	for i := range u.Types {
		td := u.Types[i]
		td.Path, td.Package, td.Project = u.Path, u.Package, u.Project
		types = append(types, DeclObject(&td))
	}
	return object.NewMap(map[string]object.Object{
		"path":    object.NewString(u.Path),
		"project": object.NewString(u.Project),
		"package": object.NewString(u.Package),
		"imports": object.NewList(imports),
		"types":   object.NewList(types),
	})
}

func declsToList(types []*store.TypeDecl) object.Object {
	results := make([]object.Object, 0, len(types))
	for _, td := range types {
		results = append(results, DeclObject(td))
	}
	return object.NewList(results)
}

func stringsToList(ss []string) object.Object {
	items := make([]object.Object, 0, len(ss))
	for _, s := range ss {
		items = append(items, object.NewString(s))
	}
	return object.NewList(items)
}

// Fields is a script map read by key. Missing or mistyped entries read as
// zero values.
type Fields map[string]object.Object

// AsFields unwraps a Risor map.
func AsFields(obj object.Object) (Fields, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return Fields(m.Value()), nil
}

func (f Fields) String(key string) string {
	s, _ := f[key].(*object.String)
	if s == nil {
		return ""
	}
	return s.Value()
}

// Int accepts floats, truncating them.
func (f Fields) Int(key string) int {
	switch v := f[key].(type) {
	case *object.Int:
		return int(v.Value())
	case *object.Float:
		return int(v.Value())
	}
	return 0
}

func (f Fields) Bool(key string) bool {
	b, _ := f[key].(*object.Bool)
	return b != nil && b.Value()
}

// Strings reads a list of strings; nil or absent is an empty list.
func (f Fields) Strings(key string) ([]string, error) {
	switch v := f[key].(type) {
	case nil, *object.NilType:
		return nil, nil
	default:
		return toStringList(v)
	}
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

func toStringList(obj object.Object) ([]string, error) {
	l, ok := obj.(*object.List)
	if !ok {
		return nil, fmt.Errorf("expected list, got %s", obj.Type())
	}
	out := make([]string, 0, len(l.Value()))
	for _, item := range l.Value() {
		s, err := toString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
