//go:build linux

package mount

import (
	"sync"

	"github.com/armon/go-radix"
)

// Registry tracks the mounts a service currently holds, keyed by target
// path. The radix tree makes "what is mounted under this prefix" cheap,
// which is what unmount-before-remove callers ask.
type Registry struct {
	mu   sync.RWMutex
	tree *radix.Tree
}

// NewRegistry creates an empty mount registry.
func NewRegistry() *Registry {
	return &Registry{tree: radix.New()}
}

// Register records m as active. A later registration for the same
// target replaces the earlier one.
func (r *Registry) Register(m *Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Insert(m.Target, m)
}

// Unregister drops the mount at target, reporting whether it was known.
func (r *Registry) Unregister(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tree.Delete(target)
	return ok
}

// Lookup returns the active mount at exactly target.
func (r *Registry) Lookup(target string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.tree.Get(target)
	if !ok {
		return nil, false
	}
	return v.(*Context), true
}

// ActiveUnder returns every active mount whose target starts with
// prefix, deepest targets last.
func (r *Registry) ActiveUnder(prefix string) []*Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var mounts []*Context
	r.tree.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		mounts = append(mounts, v.(*Context))
		return false
	})
	return mounts
}

// Len reports the number of active mounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}
