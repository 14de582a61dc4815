package main

import (
	"github.com/jward/lineage"
)

// CLIResult is the top-level JSON envelope for every command that prints
// results.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIType is a JSON-friendly type of a hierarchy.
type CLIType struct {
	Handle     string   `json:"handle"`
	Name       string   `json:"name"`
	Path       string   `json:"path,omitempty"`
	Interface  bool     `json:"interface"`
	Superclass string   `json:"superclass,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
}

// CLIHierarchy is a JSON-friendly hierarchy.
type CLIHierarchy struct {
	Focus    CLIType   `json:"focus"`
	BuildID  string    `json:"build_id"`
	Cached   bool      `json:"cached"`
	Subtypes bool      `json:"subtypes"`
	Project  string    `json:"project,omitempty"`
	Types    []CLIType `json:"types"`
	Missing  []string  `json:"missing,omitempty"`

	tree string // text rendering
}

// CLIInvalidation reports a hierarchy a workspace change invalidated.
type CLIInvalidation struct {
	Focus   string `json:"focus"`
	BuildID string `json:"build_id"`
	Types   int    `json:"types"`
}

func toCLIType(g *lineage.Graph, t lineage.TypeRef) CLIType {
	ct := CLIType{
		Handle:    t.Handle(),
		Name:      t.QualifiedName(),
		Path:      t.Path,
		Interface: g.IsInterface(t),
	}
	if sc, ok := g.GetSuperclass(t); ok {
		ct.Superclass = sc.QualifiedName()
	}
	for _, i := range g.GetSuperInterfaces(t) {
		ct.Interfaces = append(ct.Interfaces, i.QualifiedName())
	}
	return ct
}

func toCLITypes(g *lineage.Graph, types []lineage.TypeRef) []CLIType {
	out := make([]CLIType, 0, len(types))
	for _, t := range types {
		out = append(out, toCLIType(g, t))
	}
	return out
}

func toCLIHierarchy(h *lineage.TypeHierarchy, cached bool) CLIHierarchy {
	g := h.Graph()
	return CLIHierarchy{
		Focus:    toCLIType(g, h.Focus()),
		BuildID:  h.BuildID(),
		Cached:   cached,
		Subtypes: h.ComputeSubtypes(),
		Project:  g.Project(),
		Types:    toCLITypes(g, g.GetAllTypes()),
		Missing:  g.MissingTypes(),
		tree:     g.String(),
	}
}
