package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// --- Unit writes ---

// ReplaceUnit stores u, dropping whatever was indexed under u.Path before.
// IDs of u and its types are set on success.
func (s *Store) ReplaceUnit(u *Unit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace unit: begin: %w", err)
	}
	defer tx.Rollback()

	if err := replaceUnitTx(tx, u); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace unit: commit: %w", err)
	}
	return nil
}

// DeleteUnit removes a unit and everything declared in it.
func (s *Store) DeleteUnit(path string) error {
	if _, err := s.db.Exec("DELETE FROM units WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	return nil
}

func replaceUnitTx(tx *sql.Tx, u *Unit) error {
	if _, err := tx.Exec("DELETE FROM units WHERE path = ?", u.Path); err != nil {
		return fmt.Errorf("replace unit %q: %w", u.Path, err)
	}
	res, err := tx.Exec(
		`INSERT INTO units (path, project, root, root_index, package, hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Path, u.Project, u.Root, u.RootIndex, u.Package, u.Hash, u.IndexedAt,
	)
	if err != nil {
		return fmt.Errorf("insert unit %q: %w", u.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id

	for _, imp := range u.Imports {
		if _, err := tx.Exec(
			"INSERT INTO imports (unit_id, name, on_demand, is_static) VALUES (?, ?, ?, ?)",
			id, imp.Name, imp.OnDemand, imp.Static,
		); err != nil {
			return fmt.Errorf("insert import %q: %w", imp.Name, err)
		}
	}
	for i := range u.Types {
		td := &u.Types[i]
		td.UnitID = id
		if err := insertTypeTx(tx, td); err != nil {
			return err
		}
	}
	return nil
}

func insertTypeTx(tx *sql.Tx, td *TypeDecl) error {
	res, err := tx.Exec(
		`INSERT INTO types (unit_id, name, simple_name, enclosing_name, modifiers, type_params,
			is_interface, is_local, kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		td.UnitID, td.Name, td.SimpleName, td.EnclosingName, td.Modifiers, td.TypeParameters,
		td.IsInterface, td.IsLocal, td.Kind,
	)
	if err != nil {
		return fmt.Errorf("insert type %q: %w", td.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	td.ID = id

	pos := 0
	if td.Superclass != "" {
		if err := insertSuperRefTx(tx, id, td.Superclass, SuperClass, pos); err != nil {
			return err
		}
		pos++
	}
	for _, name := range td.Interfaces {
		if err := insertSuperRefTx(tx, id, name, SuperInterface, pos); err != nil {
			return err
		}
		pos++
	}
	return nil
}

func insertSuperRefTx(tx *sql.Tx, typeID int64, written, kind string, pos int) error {
	qual, simple := SplitQualified(written)
	if simple == "" {
		return nil
	}
	_, err := tx.Exec(
		"INSERT INTO supertype_refs (type_id, simple_name, qualification, kind, position) VALUES (?, ?, ?, ?, ?)",
		typeID, simple, qual, kind, pos,
	)
	if err != nil {
		return fmt.Errorf("insert supertype reference %q: %w", written, err)
	}
	return nil
}

// --- Unit reads ---

const unitCols = `id, path, project, root, root_index, package, hash, indexed_at`

func scanUnit(scanner interface{ Scan(...any) error }) (*Unit, error) {
	u := &Unit{}
	var hash sql.NullString
	var indexedAt sql.NullTime
	if err := scanner.Scan(&u.ID, &u.Path, &u.Project, &u.Root, &u.RootIndex, &u.Package, &hash, &indexedAt); err != nil {
		return nil, err
	}
	u.Hash = hash.String
	u.IndexedAt = indexedAt.Time
	return u, nil
}

// UnitByPath loads a unit with its imports and types. Returns nil, nil when
// the path is not indexed.
func (s *Store) UnitByPath(path string) (*Unit, error) {
	u, err := scanUnit(s.db.QueryRow("SELECT "+unitCols+" FROM units WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unit by path: %w", err)
	}
	if u.Imports, err = s.ImportsOf(u.ID); err != nil {
		return nil, err
	}
	types, err := s.queryTypes("WHERE t.unit_id = ? ORDER BY t.id", u.ID)
	if err != nil {
		return nil, fmt.Errorf("types of unit: %w", err)
	}
	for _, td := range types {
		u.Types = append(u.Types, *td)
	}
	return u, nil
}

// UnitHash returns the content hash recorded for path, or "" when the path
// is not indexed.
func (s *Store) UnitHash(path string) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRow("SELECT hash FROM units WHERE path = ?", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("unit hash: %w", err)
	}
	return hash.String, nil
}

// UnitPaths lists indexed document paths of project in path order. An empty
// project lists the whole index.
func (s *Store) UnitPaths(project string) ([]string, error) {
	q := "SELECT path FROM units"
	var args []any
	if project != "" {
		q += " WHERE project = ?"
		args = append(args, project)
	}
	rows, err := s.db.Query(q+" ORDER BY path", args...)
	if err != nil {
		return nil, fmt.Errorf("unit paths: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan unit path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ImportsOf returns a unit's imports in declaration order.
func (s *Store) ImportsOf(unitID int64) ([]Import, error) {
	rows, err := s.db.Query("SELECT name, on_demand, is_static FROM imports WHERE unit_id = ? ORDER BY id", unitID)
	if err != nil {
		return nil, fmt.Errorf("imports of unit: %w", err)
	}
	defer rows.Close()
	var imports []Import
	for rows.Next() {
		var imp Import
		if err := rows.Scan(&imp.Name, &imp.OnDemand, &imp.Static); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// LookupTypes finds declarations of the binary name in package pkg among the
// given projects (all projects when empty), ordered by project and classpath
// position.
func (s *Store) LookupTypes(pkg, name string, projects []string) ([]*TypeDecl, error) {
	where := "WHERE u.package = ? AND t.name = ?"
	args := []any{pkg, name}
	if len(projects) > 0 {
		where += " AND u.project IN (" + placeholderList(len(projects)) + ")"
		args = append(args, stringsToArgs(projects)...)
	}
	types, err := s.queryTypes(where+" ORDER BY u.project, u.root_index, u.path", args...)
	if err != nil {
		return nil, fmt.Errorf("lookup types: %w", err)
	}
	return types, nil
}

// TypesNamed finds every declaration whose simple name is simpleName.
func (s *Store) TypesNamed(simpleName string) ([]*TypeDecl, error) {
	types, err := s.queryTypes("WHERE t.simple_name = ? ORDER BY u.path, t.id", simpleName)
	if err != nil {
		return nil, fmt.Errorf("types named: %w", err)
	}
	return types, nil
}

// PackageExists reports whether any unit of the given projects declares pkg.
func (s *Store) PackageExists(pkg string, projects []string) (bool, error) {
	q := "SELECT 1 FROM units WHERE package = ?"
	args := []any{pkg}
	if len(projects) > 0 {
		q += " AND project IN (" + placeholderList(len(projects)) + ")"
		args = append(args, stringsToArgs(projects)...)
	}
	var one int
	err := s.db.QueryRow(q+" LIMIT 1", args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("package exists: %w", err)
	}
	return true, nil
}

const typeCols = `t.id, t.unit_id, t.name, t.simple_name, t.enclosing_name, t.modifiers, t.type_params,
	t.is_interface, t.is_local, t.kind, u.path, u.package, u.project`

// queryTypes loads types matching the trailing clause, together with their
// supertype references.
func (s *Store) queryTypes(clause string, args ...any) ([]*TypeDecl, error) {
	rows, err := s.db.Query("SELECT "+typeCols+" FROM types t JOIN units u ON u.id = t.unit_id "+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []*TypeDecl
	byID := map[int64]*TypeDecl{}
	for rows.Next() {
		td := &TypeDecl{}
		if err := rows.Scan(
			&td.ID, &td.UnitID, &td.Name, &td.SimpleName, &td.EnclosingName, &td.Modifiers, &td.TypeParameters,
			&td.IsInterface, &td.IsLocal, &td.Kind, &td.Path, &td.Package, &td.Project,
		); err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		types = append(types, td)
		byID[td.ID] = td
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, nil
	}
	if err := s.attachSupertypes(byID); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) attachSupertypes(byID map[int64]*TypeDecl) error {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	rows, err := s.db.Query(
		"SELECT type_id, simple_name, qualification, kind FROM supertype_refs WHERE type_id IN ("+
			placeholderList(len(ids))+") ORDER BY type_id, position",
		int64sToArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("supertype references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typeID int64
		var simple, qual, kind string
		if err := rows.Scan(&typeID, &simple, &qual, &kind); err != nil {
			return fmt.Errorf("scan supertype reference: %w", err)
		}
		written := simple
		if qual != "" {
			written = qual + "." + simple
		}
		td := byID[typeID]
		if kind == SuperClass {
			td.Superclass = written
		} else {
			td.Interfaces = append(td.Interfaces, written)
		}
	}
	return rows.Err()
}

// QualifiedName returns the dotted source name of td, e.g. com.acme.Outer.Inner.
func (td *TypeDecl) QualifiedName() string {
	name := strings.ReplaceAll(td.Name, "$", ".")
	if td.Package == "" {
		return name
	}
	return td.Package + "." + name
}
