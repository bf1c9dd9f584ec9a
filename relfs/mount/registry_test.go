//go:build linux

package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, 0, r.Len())

	m := &Context{Target: "/mnt/a", LoopDevice: 3}
	r.Register(m)

	got, ok := r.Lookup("/mnt/a")
	require.True(t, ok)
	assert.Equal(t, m, got)
	assert.Equal(t, 1, r.Len())

	_, ok = r.Lookup("/mnt/b")
	assert.False(t, ok)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&Context{Target: "/mnt/a", LoopDevice: LoopNone})

	assert.True(t, r.Unregister("/mnt/a"))
	assert.False(t, r.Unregister("/mnt/a"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryActiveUnder(t *testing.T) {
	r := NewRegistry()
	r.Register(&Context{Target: "/mnt/data", LoopDevice: LoopNone})
	r.Register(&Context{Target: "/mnt/data/nested", LoopDevice: 0})
	r.Register(&Context{Target: "/srv/other", LoopDevice: LoopNone})

	under := r.ActiveUnder("/mnt/data")
	require.Len(t, under, 2)
	assert.Equal(t, "/mnt/data", under[0].Target)
	assert.Equal(t, "/mnt/data/nested", under[1].Target)

	assert.Len(t, r.ActiveUnder("/var"), 0)
	assert.Len(t, r.ActiveUnder(""), 3)
}

func TestRegistryReplaceSameTarget(t *testing.T) {
	r := NewRegistry()
	r.Register(&Context{Target: "/mnt/a", LoopDevice: 1})
	r.Register(&Context{Target: "/mnt/a", LoopDevice: 2})

	got, ok := r.Lookup("/mnt/a")
	require.True(t, ok)
	assert.Equal(t, 2, got.LoopDevice)
	assert.Equal(t, 1, r.Len())
}
