package store

import "time"

// Root kinds.
const (
	RootSource  = "source"
	RootArchive = "archive"
)

// Supertype reference kinds.
const (
	SuperClass     = "class"
	SuperInterface = "interface"
)

// Type declaration kinds.
const (
	KindClass      = "class"
	KindInterface  = "interface"
	KindEnum       = "enum"
	KindRecord     = "record"
	KindAnnotation = "annotation"
)

// Project is a named unit of the workspace with its own classpath.
type Project struct {
	Name string
	Dir  string // workspace-relative directory
}

// Root is one classpath entry of a project: a source directory or an archive.
type Root struct {
	ID      int64
	Project string
	Path    string // workspace-relative
	Index   int    // position on the project's classpath
	Kind    string // RootSource or RootArchive
}

// Import is one import declaration of a source unit.
type Import struct {
	Name     string // dotted name without the trailing .*
	OnDemand bool
	Static   bool
}

// TypeDecl is a class or interface declared in a unit. Supertypes are kept
// as written (qualifier and simple name, without type arguments); binding
// them to declarations is the resolver's job.
type TypeDecl struct {
	ID             int64
	UnitID         int64
	Name           string // Outer$Inner for member types, Outer$1 for anonymous ones
	SimpleName     string
	EnclosingName  string // binary name of the enclosing type, empty for top-level types
	Modifiers      int
	TypeParameters string
	IsInterface    bool
	IsLocal        bool
	Kind           string
	Superclass     string // empty when none is declared
	Interfaces     []string

	// Denormalized from the unit on reads.
	Path    string
	Package string
	Project string
}

// Unit is one indexed document: a source file or an archive entry.
type Unit struct {
	ID        int64
	Path      string // document path; archive entries use archive|entry
	Project   string
	Root      string
	RootIndex int
	Package   string
	Hash      string
	IndexedAt time.Time
	Imports   []Import
	Types     []TypeDecl
}

// IndexRecord is one answer of a supertype query: a type declaring
// SuperSimpleName as a direct supertype.
type IndexRecord struct {
	DocumentPath       string
	IsLocal            bool
	Modifiers          int
	Package            string
	SimpleName         string
	EnclosingName      string
	TypeParameters     string
	IsInterface        bool
	SuperSimpleName    string
	SuperQualification string
	SuperKind          string
	Name               string // binary name within the unit
	Project            string
}

// CachedHierarchy is an encoded hierarchy kept across runs.
type CachedHierarchy struct {
	FocusHandle     string
	ComputeSubtypes bool
	Data            []byte
	GraphHash       string
	BuildID         string
	BuiltAt         time.Time
}
