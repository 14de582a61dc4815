package hierarchy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ g *Graph }

func (s staticSource) Graph() *Graph { return s.g }

type countingListener struct {
	calls int
	err   error
}

func (c *countingListener) TypeHierarchyChanged(Source) error {
	c.calls++
	return c.err
}

func TestRegistry_AddIgnoresDuplicates(t *testing.T) {
	t.Parallel()
	var subscribed, unsubscribed int
	r := &Registry{OnFirst: func() { subscribed++ }, OnLast: func() { unsubscribed++ }}
	l := &countingListener{}

	r.Add(l)
	r.Add(l)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, subscribed)

	r.Remove(l)
	r.Remove(l)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, unsubscribed)
}

func TestRegistry_OnLastOnlyWhenEmpty(t *testing.T) {
	t.Parallel()
	var unsubscribed int
	r := &Registry{OnLast: func() { unsubscribed++ }}
	a, b := &countingListener{}, &countingListener{}
	r.Add(a)
	r.Add(b)

	r.Remove(a)
	assert.Equal(t, 0, unsubscribed)
	r.Remove(b)
	assert.Equal(t, 1, unsubscribed)
}

func TestRegistry_FireIsolatesFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	failing := &countingListener{err: boom}
	healthy := &countingListener{}
	r := &Registry{}
	r.Add(failing)
	r.Add(healthy)

	err := r.Fire(staticSource{g: New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestRegistry_FireUsesSnapshot(t *testing.T) {
	t.Parallel()
	r := &Registry{}
	late := &countingListener{}
	var self Listener
	self = ListenerFunc(func(Source) error {
		r.Remove(self)
		r.Add(late)
		return nil
	})
	r.Add(self)

	require.NoError(t, r.Fire(staticSource{g: New()}))
	assert.Equal(t, 0, late.calls, "listeners added during delivery wait for the next change")
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Fire(staticSource{g: New()}))
	assert.Equal(t, 1, late.calls)
}
