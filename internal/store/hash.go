package store

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HashContent returns the hex digest recorded for a unit's bytes.
func HashContent(b []byte) string {
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

// Fingerprint folds the path and content hash of every indexed unit into one
// digest. It changes whenever any unit is added, removed or re-indexed with
// different content.
func (s *Store) Fingerprint() (string, error) {
	rows, err := s.db.Query("SELECT path, COALESCE(hash, '') FROM units ORDER BY path")
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	defer rows.Close()
	d := xxhash.New()
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return "", fmt.Errorf("scan fingerprint row: %w", err)
		}
		_, _ = d.WriteString(path)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(hash)
		_, _ = d.Write([]byte{'\n'})
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strconv.FormatUint(d.Sum64(), 16), nil
}
