package lineage

import (
	"context"
	"strings"

	"github.com/jward/lineage/internal/hierarchy"
	"github.com/jward/lineage/internal/impact"
	"github.com/jward/lineage/internal/watch"
)

// Watch re-indexes changed documents under the workspace roots until ctx
// is done, and delivers the resulting deltas to hierarchies and to every
// hierarchy that has listeners.
func (e *Engine) Watch(ctx context.Context, hierarchies ...*TypeHierarchy) error {
	if e.cfg == nil {
		return ErrNoWorkspace
	}
	for _, h := range hierarchies {
		e.subscribe(h)
		defer e.unsubscribe(h)
	}

	opts, err := watch.OptionsFrom(e.cfg, e.logger)
	if err != nil {
		return err
	}
	w, err := watch.New(e.root, opts, e.applyChanges)
	if err != nil {
		return err
	}
	var dirs []string
	for _, p := range e.cfg.Projects {
		dirs = append(dirs, p.Roots...)
	}
	if err := w.Add(dirs...); err != nil {
		return err
	}
	e.logger.Info("watching workspace", "root", e.root, "roots", len(dirs))
	return w.Run(ctx)
}

// applyChanges re-indexes paths and delivers the deltas.
func (e *Engine) applyChanges(ctx context.Context, paths []string) {
	changes, err := e.reindex(ctx, paths)
	if err != nil {
		e.logger.Warn("re-indexing changed documents", "error", err)
	}
	deltas := e.deltas(changes)
	n := e.Deliver(deltas, impact.PostChange)
	e.logger.Debug("changes applied", "paths", len(paths), "deltas", len(deltas), "invalidated", n)
}

// Deliver hands deltas to every subscribed hierarchy and returns how many
// hierarchies they invalidated.
func (e *Engine) Deliver(deltas []*Delta, event EventType) int {
	n := 0
	for _, h := range e.subscribers() {
		for _, d := range deltas {
			if h.ElementChanged(d, event) {
				n++
				break
			}
		}
	}
	return n
}

// deltas turns unit changes into deltas. Archive entries are grouped under
// a root delta for their archive; a source unit whose package vanished
// with it also yields a package removal.
func (e *Engine) deltas(changes []unitChange) []*Delta {
	var out []*Delta
	archives := map[string]*Delta{}
	for _, c := range changes {
		d := impact.Diff(c.Prev, c.Next)
		if d == nil {
			continue
		}
		u := c.Next
		if u == nil {
			u = c.Prev
		}
		d.Element.Root = u.Root

		archive, _, isEntry := strings.Cut(u.Path, hierarchy.ArchiveSeparator)
		if !isEntry {
			out = append(out, d)
			if c.Next == nil {
				if pd := e.packageRemoval(u); pd != nil {
					out = append(out, pd)
				}
			}
			continue
		}
		root, ok := archives[archive]
		if !ok {
			root = &Delta{
				Element: impact.Element{Kind: impact.KindRoot, Project: u.Project, Root: archive},
				Kind:    impact.Changed,
				Flags:   impact.FlagChildren | impact.FlagArchiveContentChanged,
			}
			archives[archive] = root
			out = append(out, root)
		}
		root.Children = append(root.Children, d)
	}
	return out
}

func (e *Engine) packageRemoval(u *Unit) *Delta {
	ok, err := e.store.PackageExists(u.Package, []string{u.Project})
	if err != nil || ok {
		return nil
	}
	return &Delta{
		Element: impact.Element{Kind: impact.KindPackage, Project: u.Project, Root: u.Root, Package: u.Package},
		Kind:    impact.Removed,
	}
}
