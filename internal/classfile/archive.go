package classfile

import (
	"archive/zip"
	"path"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Archive is an open jar or zip of class files.
type Archive struct {
	zr *zip.ReadCloser
}

// OpenArchive opens the archive at path.
func OpenArchive(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "open archive"), "path", path)
	}
	return &Archive{zr: zr}, nil
}

// Close releases the archive.
func (a *Archive) Close() error {
	return a.zr.Close()
}

// Entries lists the class entries of the archive in name order, leaving out
// module and package descriptors and multi-release variants.
func (a *Archive) Entries() []string {
	var names []string
	for _, f := range a.zr.File {
		if isTypeEntry(f.Name) {
			names = append(names, f.Name)
		}
	}
	slices.Sort(names)
	return names
}

// Class parses one entry.
func (a *Archive) Class(entry string) (*Class, error) {
	for _, f := range a.zr.File {
		if f.Name != entry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "open archive entry"), "entry", entry)
		}
		defer rc.Close()
		c, err := Read(rc)
		if err != nil {
			return nil, zerr.With(err, "entry", entry)
		}
		return c, nil
	}
	return nil, zerr.With(zerr.New("no such archive entry"), "entry", entry)
}

// Walk parses every class entry in name order. An error from fn stops the
// walk. Entries that fail to parse are passed to fn with a nil class and the
// parse error.
func (a *Archive) Walk(fn func(entry string, c *Class, err error) error) error {
	for _, name := range a.Entries() {
		c, err := a.Class(name)
		if err := fn(name, c, err); err != nil {
			return err
		}
	}
	return nil
}

func isTypeEntry(name string) bool {
	if !strings.HasSuffix(name, ".class") || strings.HasPrefix(name, "META-INF/") {
		return false
	}
	base := path.Base(name)
	return base != "module-info.class" && base != "package-info.class"
}
