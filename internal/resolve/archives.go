package resolve

import (
	"fmt"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/zerr"

	"github.com/jward/lineage/internal/classfile"
	"github.com/jward/lineage/internal/hierarchy"
)

// Archives hands out the archive handles used during builds. Handles are
// opened on first use and shared by every build holding the current set;
// they are closed when the last holder releases it.
type Archives struct {
	Dir string // workspace directory archive paths are relative to

	mu      sync.Mutex
	current *ArchiveSet
}

// NewArchives creates an Archives rooted at dir.
func NewArchives(dir string) *Archives {
	return &Archives{Dir: dir}
}

// Acquire returns the shared archive set, creating it if no build holds
// one. Every Acquire must be paired with a Release.
func (a *Archives) Acquire() *ArchiveSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		a.current = &ArchiveSet{owner: a, dir: a.Dir, open: map[string]*classfile.Archive{}}
	}
	a.current.refs++
	return a.current
}

func (a *Archives) release(s *ArchiveSet) error {
	a.mu.Lock()
	s.refs--
	if s.refs > 0 {
		a.mu.Unlock()
		return nil
	}
	if a.current == s {
		a.current = nil
	}
	a.mu.Unlock()
	return s.closeAll()
}

// ArchiveSet caches open archives for the builds holding it.
type ArchiveSet struct {
	owner *Archives
	dir   string
	refs  int // guarded by owner.mu

	mu   sync.Mutex
	open map[string]*classfile.Archive
}

// Release gives the set back. The last release closes every archive.
func (s *ArchiveSet) Release() error {
	return s.owner.release(s)
}

// Archive returns the open archive at the workspace-relative path.
func (s *ArchiveSet) Archive(path string) (*classfile.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.open[path]; ok {
		return a, nil
	}
	a, err := classfile.OpenArchive(filepath.Join(s.dir, filepath.FromSlash(path)))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(fmt.Errorf("%w: %w", hierarchy.ErrModelAccess, err), "opening archive"), "archive", path)
	}
	s.open[path] = a
	return a, nil
}

// Class reads the class file behind a document path of the form
// archive|entry.
func (s *ArchiveSet) Class(docPath string) (*classfile.Class, error) {
	archive, entry, ok := strings.Cut(docPath, hierarchy.ArchiveSeparator)
	if !ok {
		return nil, zerr.With(zerr.Wrap(hierarchy.ErrModelAccess, "not an archive entry"), "path", docPath)
	}
	a, err := s.Archive(archive)
	if err != nil {
		return nil, err
	}
	return a.Class(entry)
}

// Len returns the number of open archives.
func (s *ArchiveSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

func (s *ArchiveSet) closeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for path, a := range s.open {
		if err := a.Close(); err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(err, "close archive"), "archive", path))
		}
		delete(s.open, path)
	}
	return errors.Join(errs...)
}
