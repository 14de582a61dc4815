package store

import "sync"

// BatchedStore buffers unit writes in memory using fake (negative) IDs. It
// implements DataStore so indexing workers can write to it without knowing
// whether they're hitting SQLite or an in-memory buffer.
//
// Thread safety: the mutex protects fake ID allocation and the buffers.
// UnitHash is answered from the buffer first and then passed through to the
// underlying Store, which is safe for concurrent reads.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Units   []Unit
	Deletes []string

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// ReplaceUnit buffers u. A later write for the same path supersedes it.
func (b *BatchedStore) ReplaceUnit(u *Unit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u.ID = b.allocFakeID()
	for i := range u.Types {
		u.Types[i].ID = b.allocFakeID()
		u.Types[i].UnitID = u.ID
	}
	b.Units = append(b.Units, *u)
	return nil
}

// DeleteUnit buffers the removal of path.
func (b *BatchedStore) DeleteUnit(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes = append(b.Deletes, path)
	return nil
}

// UnitHash returns the hash of the latest buffered write for path, falling
// back to the database.
func (b *BatchedStore) UnitHash(path string) (string, error) {
	b.mu.Lock()
	for i := len(b.Units) - 1; i >= 0; i-- {
		if b.Units[i].Path == path {
			h := b.Units[i].Hash
			b.mu.Unlock()
			return h, nil
		}
	}
	b.mu.Unlock()
	return b.store.UnitHash(path)
}

// Len reports the number of buffered writes and deletions.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Units) + len(b.Deletes)
}
