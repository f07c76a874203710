package token

import (
	"sort"
	"sync"

	"adtoken/internal/config"
	"adtoken/internal/store"
	"adtoken/pkg/logging"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBackend sets the durable backend shared by every context of the
// registry. Keys are namespaced by client_id.
func WithBackend(backend store.Backend) RegistryOption {
	return func(r *Registry) {
		r.backend = backend
	}
}

// WithContextOptions applies opts to every context the registry creates.
func WithContextOptions(opts ...ContextOption) RegistryOption {
	return func(r *Registry) {
		r.contextOpts = append(r.contextOpts, opts...)
	}
}

// Registry maps client_id to Context. Contexts stay registered until
// Remove is called.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*Context

	backend     store.Backend
	contextOpts []ContextOption
}

// NewRegistry creates an empty registry. Without WithBackend, credentials
// only live in memory.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		contexts: make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		r.backend = store.NewMemoryBackend()
	}
	return r
}

// Create validates cfg, builds a context and registers it under its
// client_id. An invalid configuration returns a *config.ConfigError and
// leaves the registry unchanged. An existing context with the same client_id
// is replaced.
func (r *Registry) Create(cfg config.Context, opts ...ContextOption) (*Context, error) {
	all := make([]ContextOption, 0, len(r.contextOpts)+len(opts))
	all = append(all, r.contextOpts...)
	all = append(all, opts...)

	tc, err := NewContext(cfg, r.backend, all...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contexts[cfg.ClientID]; exists {
		logging.Warn("TokenRegistry", "Replacing existing context for %s", cfg.ClientID)
	}
	r.contexts[cfg.ClientID] = tc
	logging.Debug("TokenRegistry", "Registered context %s (%d resources)", cfg.ClientID, len(cfg.ResourceList()))
	return tc, nil
}

// Get returns the context registered for clientID.
func (r *Registry) Get(clientID string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.contexts[clientID]
	return tc, ok
}

// Remove deregisters clientID. Cached credentials are kept in the durable
// tier; use Context.Logout to forget them. It reports whether a context was
// registered.
func (r *Registry) Remove(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[clientID]; !ok {
		return false
	}
	delete(r.contexts, clientID)
	logging.Debug("TokenRegistry", "Removed context %s", clientID)
	return true
}

// List returns the registered client_ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.contexts))
	for id := range r.contexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
