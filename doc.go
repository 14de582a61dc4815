// Package lineage computes and maintains type hierarchies for Java
// workspaces. It indexes source units and compiled archives into SQLite,
// discovers candidate subtypes through that index, resolves them project by
// project into a hierarchy graph, and decides whether workspace changes
// invalidate a graph it has built.
//
// # Pipeline
//
//  1. Index: every root of every project is walked. Sources are parsed with
//     tree-sitter, archives are read entry by entry with the class-file
//     reader, and each unit's declared types and supertypes (as written) go
//     to SQLite. Unchanged documents are skipped by content hash.
//
//  2. Discover: for a focus type, the index is queried for every type that
//     names the focus, or one of its subtypes found so far, as a supertype.
//
//  3. Resolve: candidate units are partitioned by project and handed to a
//     resolver, which binds each supertype name to a declaration on the
//     project's classpath. The results are folded into a [Graph].
//
// # Usage
//
//	cfg, err := config.Load("lineage.toml")
//	e, err := lineage.New(cfg.Workspace.DB, lineage.WithWorkspace(cfg))
//	defer e.Close()
//
//	err = e.LoadWorkspace(ctx, cfg)
//	err = e.IndexWorkspace(ctx)
//
//	focus, err := e.FindType("com.acme.Shape")
//	h, err := e.TypeHierarchy(ctx, focus[0], lineage.HierarchyOptions{})
//	subs := h.Graph().GetAllSubtypes(focus[0])
//
// # Keeping hierarchies fresh
//
// [Engine.Watch] re-indexes documents as they change on disk, diffs their
// declarations against the indexed ones, and feeds the resulting deltas to
// every [TypeHierarchy] with listeners. A hierarchy that a delta may affect
// is marked with [TypeHierarchy.NeedsRefresh] and its listeners are called;
// [TypeHierarchy.Refresh] rebuilds it.
//
// # Cache
//
// [Engine.StoreHierarchy] writes a graph in the compact hierarchy format
// together with a fingerprint of the index; [Engine.LoadHierarchy] returns
// it while the index is unchanged.
//
// # Scripts
//
// Resolution can be delegated to a Risor script (see [WithScriptResolver]).
// The embedded default, scripts/resolve/java.risor, mirrors the built-in
// resolver.
package lineage
