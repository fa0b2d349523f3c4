// Package registry implements the storage-name registry: a
// mutex-guarded name-to-tree map letting a process open and address
// multiple independently-reclaimed stratum trees by name.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"stratum/pkg/stratum"
)

// Registry is a concurrent-safe name -> *stratum.Tree map: arbitrarily
// many named storages sharing one reclaimer and session registry.
type Registry struct {
	log *zap.Logger

	mu    sync.RWMutex
	trees map[string]*stratum.Tree
}

// New constructs an empty registry.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log, trees: make(map[string]*stratum.Tree)}
}

// Create installs a new, empty tree under name. Returns
// stratum.WarnUniqueRestriction if name is already registered, matching
// the core's own collision status rather than introducing a second
// "already exists" vocabulary at this layer.
func (r *Registry) Create(name string, reclaim *stratum.Reclaimer, sessions *stratum.SessionRegistry, metrics *stratum.Metrics) (*stratum.Tree, stratum.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trees[name]; ok {
		return nil, stratum.WarnUniqueRestriction
	}
	t := stratum.NewTree(reclaim, sessions, metrics)
	r.trees[name] = t
	r.log.Info("storage created", zap.String("name", name))
	return t, stratum.OK
}

// Delete removes name from the registry. The underlying tree's nodes
// are not explicitly torn down: dropping the last reference to it lets
// Go's GC reclaim everything once any in-flight readers finish, the
// same way a retired stratum node is freed once no session can still
// observe it.
func (r *Registry) Delete(name string) stratum.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trees[name]; !ok {
		return stratum.WarnStorageNotExist
	}
	delete(r.trees, name)
	r.log.Info("storage deleted", zap.String("name", name))
	return stratum.OK
}

// Find looks up name, returning stratum.WarnStorageNotExist if absent.
func (r *Registry) Find(name string) (*stratum.Tree, stratum.Status) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trees[name]
	if !ok {
		return nil, stratum.WarnStorageNotExist
	}
	return t, stratum.OK
}

// Names returns every currently registered storage name, in no
// particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.trees))
	for name := range r.trees {
		out = append(out, name)
	}
	return out
}

// DestroyAll drops every registered storage, returning
// stratum.OKDestroyAll.
func (r *Registry) DestroyAll() stratum.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees = make(map[string]*stratum.Tree)
	r.log.Info("all storages destroyed")
	return stratum.OKDestroyAll
}
