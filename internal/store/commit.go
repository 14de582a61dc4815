package store

import "fmt"

// CommitBatch applies everything buffered in a BatchedStore within a single
// transaction. Deletions run first, then unit writes in the order they were
// buffered, so the last write for a path wins. Fake IDs are replaced by the
// real ones assigned by SQLite.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, path := range batch.Deletes {
		if _, err := tx.Exec("DELETE FROM units WHERE path = ?", path); err != nil {
			return fmt.Errorf("commit batch: delete %q: %w", path, err)
		}
	}
	for i := range batch.Units {
		if err := replaceUnitTx(tx, &batch.Units[i]); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	batch.Units = nil
	batch.Deletes = nil
	return nil
}
