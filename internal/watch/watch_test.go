package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lineage/internal/config"
)

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) record(_ context.Context, paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, paths)
}

func (b *batches) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, batch := range b.got {
		out = append(out, batch...)
	}
	return out
}

func newWatcher(t *testing.T, root string, b *batches) *Watcher {
	t.Helper()
	ex, err := config.Index{Exclude: []string{"**/build/**"}}.Excluder()
	require.NoError(t, err)
	w, err := New(root, Options{Debounce: 10 * time.Millisecond, Rate: 100, Burst: 10, Exclude: ex}, b.record)
	require.NoError(t, err)
	return w
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
}

// =============================================================================
// Batching
// =============================================================================

func TestSchedule_DebouncesIntoOneSortedBatch(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	b := &batches{}
	w := newWatcher(t, root, b)
	t.Cleanup(func() { _ = w.fsw.Close() })

	w.schedule(filepath.Join(root, "core/src/B.java"))
	w.schedule(filepath.Join(root, "core/src/A.java"))
	w.schedule(filepath.Join(root, "core/src/A.java"))
	w.schedule(filepath.Join(root, "core/src/notes.txt"))
	w.schedule(filepath.Join(filepath.Dir(root), "elsewhere/C.java"))

	select {
	case batch := <-w.batches:
		assert.Equal(t, []string{"core/src/A.java", "core/src/B.java"}, batch)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch flushed")
	}
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	t.Parallel()
	w := newWatcher(t, t.TempDir(), &batches{})
	t.Cleanup(func() { _ = w.fsw.Close() })
	w.flush()
	assert.Empty(t, w.batches)
}

func TestExcluded(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	w := newWatcher(t, root, &batches{})
	t.Cleanup(func() { _ = w.fsw.Close() })

	assert.True(t, w.excluded(filepath.Join(root, "core/build")))
	assert.True(t, w.excluded(filepath.Join(root, "core/build/A.java")))
	assert.False(t, w.excluded(filepath.Join(root, "core/src/A.java")))
	assert.False(t, w.excluded(root))
	assert.True(t, w.excluded(filepath.Dir(root)), "outside the workspace")
}

func TestNew_RequiresCallback(t *testing.T) {
	t.Parallel()
	_, err := New(t.TempDir(), Options{}, nil)
	assert.Error(t, err)
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	opts, err := OptionsFrom(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Watch.Debounce, opts.Debounce)
	assert.Equal(t, cfg.Watch.Burst, opts.Burst)
	assert.True(t, opts.Exclude.Match("core/.git/config"))
}

// =============================================================================
// File system
// =============================================================================

func TestRun_ReportsChangedSources(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	mkdirs(t, root, "core/src/com/acme", "core/build")
	b := &batches{}
	w := newWatcher(t, root, b)
	require.NoError(t, w.Add("core/src", "core/lib/missing.jar", "core"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "core/build/Gen.java"), []byte("class Gen {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "core/src/com/acme/A.java"), []byte("class A {}"), 0o644))

	assert.Eventually(t, func() bool {
		for _, p := range b.all() {
			if p == "core/src/com/acme/A.java" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	// A directory created later is watched and its files reported.
	mkdirs(t, root, "core/src/com/acme/sub")
	require.NoError(t, os.WriteFile(filepath.Join(root, "core/src/com/acme/sub/S.java"), []byte("class S {}"), 0o644))
	assert.Eventually(t, func() bool {
		for _, p := range b.all() {
			if p == "core/src/com/acme/sub/S.java" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.NotContains(t, b.all(), "core/build/Gen.java")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
