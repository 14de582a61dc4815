package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// MatchAll as a simple name asks SupertypeReferences for every indexed type.
const MatchAll = ""

// Scope limits index queries to a set of projects and document paths. A nil
// Scope covers the whole workspace.
type Scope struct {
	Projects []string
	include  []glob.Glob
	exclude  []glob.Glob
}

// NewScope builds a scope. Include and exclude are glob patterns over
// document paths; a path must match some include (when any are given) and
// no exclude.
func NewScope(projects, include, exclude []string) (*Scope, error) {
	s := &Scope{Projects: projects}
	for _, p := range include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", p, err)
		}
		s.include = append(s.include, g)
	}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// Contains reports whether a document of project at path is in scope.
func (s *Scope) Contains(project, path string) bool {
	if s == nil {
		return true
	}
	if len(s.Projects) > 0 && !slices.Contains(s.Projects, project) {
		return false
	}
	// Archive entries are matched by their archive.
	if i := strings.IndexByte(path, '|'); i >= 0 {
		path = path[:i]
	}
	if len(s.include) > 0 && !slices.ContainsFunc(s.include, func(g glob.Glob) bool { return g.Match(path) }) {
		return false
	}
	return !slices.ContainsFunc(s.exclude, func(g glob.Glob) bool { return g.Match(path) })
}

// SupertypeReferences streams one record per (type, direct supertype) pair
// whose supertype simple name is simpleName. With MatchAll every indexed
// type is reported, including types that declare no supertype. Records
// arrive in document path order. An error from fn stops the query and is
// returned.
func (s *Store) SupertypeReferences(ctx context.Context, simpleName string, scope *Scope, fn func(*IndexRecord) error) error {
	q := `SELECT u.path, t.is_local, t.modifiers, u.package, t.simple_name, t.enclosing_name, t.type_params,
		t.is_interface, COALESCE(r.simple_name, ''), COALESCE(r.qualification, ''), COALESCE(r.kind, ''),
		t.name, u.project
	FROM types t
	JOIN units u ON u.id = t.unit_id
	LEFT JOIN supertype_refs r ON r.type_id = t.id`
	var where []string
	var args []any
	if simpleName != MatchAll {
		where = append(where, "r.simple_name = ?")
		args = append(args, simpleName)
	}
	if scope != nil && len(scope.Projects) > 0 {
		where = append(where, "u.project IN ("+placeholderList(len(scope.Projects))+")")
		args = append(args, stringsToArgs(scope.Projects)...)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY u.path, t.id, r.position"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("supertype references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := &IndexRecord{}
		if err := rows.Scan(
			&rec.DocumentPath, &rec.IsLocal, &rec.Modifiers, &rec.Package, &rec.SimpleName, &rec.EnclosingName,
			&rec.TypeParameters, &rec.IsInterface, &rec.SuperSimpleName, &rec.SuperQualification, &rec.SuperKind,
			&rec.Name, &rec.Project,
		); err != nil {
			return fmt.Errorf("scan supertype reference: %w", err)
		}
		if !scope.Contains(rec.Project, rec.DocumentPath) {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}
