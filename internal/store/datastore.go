package store

// DataStore is the interface for indexing-phase data access. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel
// indexing) implement this interface.
type DataStore interface {
	ReplaceUnit(u *Unit) error
	DeleteUnit(path string) error

	// UnitHash lets indexers skip documents whose content is unchanged.
	UnitHash(path string) (string, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
