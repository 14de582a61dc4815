package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// --- Projects ---

// PutProject inserts or updates a project.
func (s *Store) PutProject(p Project) error {
	_, err := s.db.Exec(
		"INSERT INTO projects (name, dir) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET dir = excluded.dir",
		p.Name, p.Dir,
	)
	if err != nil {
		return fmt.Errorf("put project %q: %w", p.Name, err)
	}
	return nil
}

// Projects lists all projects by name.
func (s *Store) Projects() ([]Project, error) {
	rows, err := s.db.Query("SELECT name, dir FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}
	defer rows.Close()
	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Name, &p.Dir); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ClearWorkspace drops projects, their roots and dependencies. Indexed
// units are kept.
func (s *Store) ClearWorkspace() error {
	if _, err := s.db.Exec("DELETE FROM projects"); err != nil {
		return fmt.Errorf("clear workspace: %w", err)
	}
	return nil
}

// --- Roots ---

// PutRoot inserts or updates the root at r.Path and sets r.ID.
func (s *Store) PutRoot(r *Root) error {
	err := s.db.QueryRow(
		`INSERT INTO roots (project, path, root_index, kind) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET project = excluded.project, root_index = excluded.root_index, kind = excluded.kind
		 RETURNING id`,
		r.Project, r.Path, r.Index, r.Kind,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("put root %q: %w", r.Path, err)
	}
	return nil
}

// Roots lists the classpath of project in order. An empty project lists
// every root of the workspace.
func (s *Store) Roots(project string) ([]*Root, error) {
	q := "SELECT id, project, path, root_index, kind FROM roots"
	var args []any
	if project != "" {
		q += " WHERE project = ?"
		args = append(args, project)
	}
	rows, err := s.db.Query(q+" ORDER BY project, root_index", args...)
	if err != nil {
		return nil, fmt.Errorf("roots: %w", err)
	}
	defer rows.Close()
	var roots []*Root
	for rows.Next() {
		r := &Root{}
		if err := rows.Scan(&r.ID, &r.Project, &r.Path, &r.Index, &r.Kind); err != nil {
			return nil, fmt.Errorf("scan root: %w", err)
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

// RootOf returns the root that contains the document at path, or nil when
// no root does. The longest matching root wins.
func (s *Store) RootOf(path string) (*Root, error) {
	roots, err := s.Roots("")
	if err != nil {
		return nil, err
	}
	container, _, _ := strings.Cut(path, "|")
	var best *Root
	for _, r := range roots {
		if container != r.Path && !strings.HasPrefix(container, r.Path+"/") {
			continue
		}
		if best == nil || len(r.Path) > len(best.Path) {
			best = r
		}
	}
	return best, nil
}

// --- Dependencies ---

// PutDependency records that project sees the types of dependsOn.
func (s *Store) PutDependency(project, dependsOn string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO project_deps (project, depends_on) VALUES (?, ?)", project, dependsOn,
	)
	if err != nil {
		return fmt.Errorf("put dependency %s -> %s: %w", project, dependsOn, err)
	}
	return nil
}

// Dependencies lists the direct dependencies of project.
func (s *Store) Dependencies(project string) ([]string, error) {
	rows, err := s.db.Query("SELECT depends_on FROM project_deps WHERE project = ? ORDER BY depends_on", project)
	if err != nil {
		return nil, fmt.Errorf("dependencies: %w", err)
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// VisibleProjects returns project followed by every project it depends on,
// directly or transitively, in breadth-first order.
func (s *Store) VisibleProjects(project string) ([]string, error) {
	seen := map[string]bool{project: true}
	order := []string{project}
	for i := 0; i < len(order); i++ {
		deps, err := s.Dependencies(order[i])
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				order = append(order, d)
			}
		}
	}
	return order, nil
}

// DependsOn reports whether project depends on other, directly or
// transitively. A project does not depend on itself.
func (s *Store) DependsOn(project, other string) (bool, error) {
	if project == other {
		return false, nil
	}
	visible, err := s.VisibleProjects(project)
	if err != nil {
		return false, err
	}
	for _, p := range visible[1:] {
		if p == other {
			return true, nil
		}
	}
	return false, nil
}

// ProjectExists reports whether a project of that name is configured.
func (s *Store) ProjectExists(name string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM projects WHERE name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("project exists: %w", err)
	}
	return true, nil
}
