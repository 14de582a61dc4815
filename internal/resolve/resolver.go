// Package resolve turns candidate units into hierarchy edges. A Coordinator
// orders and partitions candidates by project and drives a Resolver, which
// binds each declared supertype name to a type; the Coordinator then folds
// the resolved types into a hierarchy.Graph.
package resolve

import (
	"context"

	"github.com/jward/lineage/internal/hierarchy"
)

// Candidate is a unit to resolve.
type Candidate struct {
	Path      string
	Project   string
	Root      string
	RootIndex int
	Name      string // file or entry base name, used for ordering
}

// ResolvedType is one type with its supertypes bound.
type ResolvedType struct {
	Type       hierarchy.TypeRef
	Root       string
	Flags      hierarchy.Flags
	Superclass *hierarchy.TypeRef // nil for interfaces and unresolved superclasses
	Interfaces []hierarchy.TypeRef
	Missing    []string // simple names of supertypes that did not resolve
}

// Sink receives the output of a Resolver.
type Sink interface {
	Report(rt ResolvedType)
	// Fail records that the unit at path could not be resolved. The unit is
	// skipped; the batch continues.
	Fail(path string, err error)
}

// Resolver binds the supertypes of every type declared in units. Types
// marked local (by unit path) are only resolved for units in local. A
// returned error aborts the project's batch; per-unit problems go to
// sink.Fail instead.
type Resolver interface {
	Resolve(ctx context.Context, env *Environment, units []Candidate, local map[string]bool, sink Sink) error
}
