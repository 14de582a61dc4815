package discovery

import (
	"slices"

	"github.com/jward/lineage/internal/store"
)

// Placeholder describes a type from a compiled archive using only what the
// index reported, so resolution can link it without opening the archive.
// Its supertypes are the ones seen in matches, not necessarily all of them.
type Placeholder struct {
	Path           string
	Package        string
	Name           string // binary name within the archive entry
	SimpleName     string
	EnclosingName  string
	Modifiers      int
	TypeParameters string
	IsInterface    bool
	IsLocal        bool
	Supertypes     []Supertype
}

// Supertype is a supertype reference as the index stores it.
type Supertype struct {
	SimpleName    string
	Qualification string
	Kind          string // store.SuperClass or store.SuperInterface
}

// Written returns the reference as it would appear in source.
func (s Supertype) Written() string {
	if s.Qualification == "" {
		return s.SimpleName
	}
	return s.Qualification + "." + s.SimpleName
}

func newPlaceholder(rec *store.IndexRecord) *Placeholder {
	return &Placeholder{
		Path:           rec.DocumentPath,
		Package:        rec.Package,
		Name:           rec.Name,
		SimpleName:     rec.SimpleName,
		EnclosingName:  rec.EnclosingName,
		Modifiers:      rec.Modifiers,
		TypeParameters: rec.TypeParameters,
		IsInterface:    rec.IsInterface,
		IsLocal:        rec.IsLocal,
	}
}

func (p *Placeholder) addSupertype(rec *store.IndexRecord) {
	if rec.SuperSimpleName == "" {
		return
	}
	s := Supertype{SimpleName: rec.SuperSimpleName, Qualification: rec.SuperQualification, Kind: rec.SuperKind}
	if !slices.Contains(p.Supertypes, s) {
		p.Supertypes = append(p.Supertypes, s)
	}
}

// Decl converts the placeholder to a type declaration with its known
// supertypes written out.
func (p *Placeholder) Decl() store.TypeDecl {
	td := store.TypeDecl{
		Name:           p.Name,
		SimpleName:     p.SimpleName,
		EnclosingName:  p.EnclosingName,
		Modifiers:      p.Modifiers,
		TypeParameters: p.TypeParameters,
		IsInterface:    p.IsInterface,
		IsLocal:        p.IsLocal,
		Kind:           store.KindClass,
		Path:           p.Path,
		Package:        p.Package,
	}
	if p.IsInterface {
		td.Kind = store.KindInterface
	}
	for _, s := range p.Supertypes {
		if s.Kind == store.SuperClass {
			td.Superclass = s.Written()
			continue
		}
		td.Interfaces = append(td.Interfaces, s.Written())
	}
	return td
}
