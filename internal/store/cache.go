package store

import (
	"database/sql"
	"fmt"
)

// PutHierarchy stores an encoded hierarchy, replacing any earlier entry for
// the same focus and direction.
func (s *Store) PutHierarchy(c *CachedHierarchy) error {
	_, err := s.db.Exec(
		`INSERT INTO hierarchy_cache (focus_handle, compute_subtypes, data, graph_hash, build_id, built_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(focus_handle, compute_subtypes) DO UPDATE SET
		   data = excluded.data, graph_hash = excluded.graph_hash,
		   build_id = excluded.build_id, built_at = excluded.built_at`,
		c.FocusHandle, c.ComputeSubtypes, c.Data, c.GraphHash, c.BuildID, c.BuiltAt,
	)
	if err != nil {
		return fmt.Errorf("put hierarchy: %w", err)
	}
	return nil
}

// Hierarchy returns the cached hierarchy for a focus handle, or nil, nil when
// there is none. The workspace-scoped hierarchy uses the empty handle.
func (s *Store) Hierarchy(focusHandle string, computeSubtypes bool) (*CachedHierarchy, error) {
	c := &CachedHierarchy{}
	var builtAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT focus_handle, compute_subtypes, data, graph_hash, build_id, built_at
		 FROM hierarchy_cache WHERE focus_handle = ? AND compute_subtypes = ?`,
		focusHandle, computeSubtypes,
	).Scan(&c.FocusHandle, &c.ComputeSubtypes, &c.Data, &c.GraphHash, &c.BuildID, &builtAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hierarchy: %w", err)
	}
	c.BuiltAt = builtAt.Time
	return c, nil
}

// DeleteHierarchies clears the cache and reports how many entries it held.
func (s *Store) DeleteHierarchies() (int64, error) {
	res, err := s.db.Exec("DELETE FROM hierarchy_cache")
	if err != nil {
		return 0, fmt.Errorf("delete hierarchies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
