package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"adtoken/pkg/logging"
	"adtoken/pkg/oauth"
)

// DefaultWriteTimeout bounds a single asynchronous durable write.
const DefaultWriteTimeout = 10 * time.Second

const subsystem = "CredentialStore"

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithWriteTimeout sets the time budget of each asynchronous durable write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *CredentialStore) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// CredentialStore is the two-tier credential cache of one client_id.
// All methods are safe for concurrent use.
type CredentialStore struct {
	clientID     string
	backend      Backend
	writeTimeout time.Duration

	mu     sync.RWMutex
	memory map[string]*oauth.Credential // resource -> credential
	// gen is bumped by RemoveAll; durable reads that started under an older
	// generation are not written back into memory.
	gen uint64

	// seq numbers the latest scheduled durable write per key so that a slow
	// write never overwrites a newer one.
	seqMu sync.Mutex
	seq   map[string]uint64

	// ioMu serializes durable writes.
	ioMu    sync.Mutex
	pending sync.WaitGroup

	errMu    sync.Mutex
	writeErr []error
}

// New creates a CredentialStore for clientID on top of backend. A nil
// backend keeps credentials in this process only.
func New(clientID string, backend Backend, opts ...Option) *CredentialStore {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &CredentialStore{
		clientID:     clientID,
		backend:      backend,
		writeTimeout: DefaultWriteTimeout,
		memory:       make(map[string]*oauth.Credential),
		seq:          make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientID returns the client_id this store belongs to.
func (s *CredentialStore) ClientID() string {
	return s.clientID
}

// Get returns the credential for resource, or nil when none is cached.
// Memory is consulted first; the durable backend only on a memory miss.
// A durable miss is not an error.
func (s *CredentialStore) Get(ctx context.Context, resource string) (*oauth.Credential, error) {
	s.mu.RLock()
	cred, ok := s.memory[resource]
	gen := s.gen
	s.mu.RUnlock()
	if ok {
		return copyCredential(cred), nil
	}

	key := Key(s.clientID, resource)
	data, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, &oauth.PersistenceError{Op: "read", Key: key, Err: err}
	}
	if !found {
		return nil, nil
	}

	var loaded oauth.Credential
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, &oauth.PersistenceError{Op: "decode", Key: key, Err: err}
	}
	if loaded.Resource == "" {
		loaded.Resource = resource
	}

	s.mu.Lock()
	// A concurrent Put wins over what was read from the backend.
	if current, ok := s.memory[resource]; ok {
		s.mu.Unlock()
		return copyCredential(current), nil
	}
	if s.gen != gen {
		s.mu.Unlock()
		logging.Debug(subsystem, "Dropped stale read of %s after removal", key)
		return nil, nil
	}
	s.memory[resource] = copyCredential(&loaded)
	s.mu.Unlock()

	logging.Debug(subsystem, "Loaded credential %s from durable store", key)
	return &loaded, nil
}

// Put stores cred for resource. The memory write is synchronous and visible
// to every later Get; the durable write happens in the background. Durable
// failures are logged and reported by Flush.
func (s *CredentialStore) Put(ctx context.Context, resource string, cred *oauth.Credential) {
	if cred == nil {
		return
	}
	stored := copyCredential(cred)
	stored.Resource = resource

	s.mu.Lock()
	s.memory[resource] = stored
	s.mu.Unlock()

	key := Key(s.clientID, resource)
	data, err := json.Marshal(stored)
	if err != nil {
		s.recordWriteError(&oauth.PersistenceError{Op: "encode", Key: key, Err: err})
		return
	}

	n := s.nextSeq(key)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		s.ioMu.Lock()
		defer s.ioMu.Unlock()

		if !s.isLatest(key, n) {
			return
		}

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()

		if err := s.backend.Set(writeCtx, key, data); err != nil {
			s.recordWriteError(&oauth.PersistenceError{Op: "write", Key: key, Err: err})
		}
	}()
}

// SaveAll stores every credential, keyed by resource, in memory and then
// synchronously in the durable backend. Memory is updated even when the
// durable write fails.
func (s *CredentialStore) SaveAll(ctx context.Context, creds map[string]*oauth.Credential) error {
	if len(creds) == 0 {
		return nil
	}

	entries := make(map[string][]byte, len(creds))
	s.mu.Lock()
	for resource, cred := range creds {
		if cred == nil {
			continue
		}
		stored := copyCredential(cred)
		stored.Resource = resource
		s.memory[resource] = stored

		data, err := json.Marshal(stored)
		if err != nil {
			s.mu.Unlock()
			return &oauth.PersistenceError{Op: "encode", Key: Key(s.clientID, resource), Err: err}
		}
		entries[Key(s.clientID, resource)] = data
	}
	s.mu.Unlock()

	for key := range entries {
		s.nextSeq(key)
	}

	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if err := s.backend.MultiSet(ctx, entries); err != nil {
		return &oauth.PersistenceError{Op: "write", Key: keyPrefix(s.clientID) + "*", Err: err}
	}
	return nil
}

// RemoveAll forgets every credential of this client_id in both tiers.
// Background writes still queued for this client are discarded.
func (s *CredentialStore) RemoveAll(ctx context.Context) error {
	s.mu.Lock()
	s.memory = make(map[string]*oauth.Credential)
	s.gen++
	s.mu.Unlock()

	s.seqMu.Lock()
	for key := range s.seq {
		s.seq[key]++
	}
	s.seqMu.Unlock()

	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	prefix := keyPrefix(s.clientID)
	err := s.backend.DeletePrefix(ctx, prefix)

	// Reads that started while the delete was in flight may have seen the
	// old entries.
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	if err != nil {
		return &oauth.PersistenceError{Op: "delete", Key: prefix + "*", Err: err}
	}
	return nil
}

// Load warms the memory tier with every durable credential of this
// client_id that is not already in memory. It returns the number loaded.
func (s *CredentialStore) Load(ctx context.Context) (int, error) {
	prefix := keyPrefix(s.clientID)
	keys, err := s.backend.Keys(ctx, prefix)
	if err != nil {
		return 0, &oauth.PersistenceError{Op: "list", Key: prefix + "*", Err: err}
	}

	loaded := 0
	for _, key := range keys {
		resource := strings.TrimPrefix(key, prefix)
		s.mu.RLock()
		_, cached := s.memory[resource]
		s.mu.RUnlock()
		if cached {
			continue
		}
		cred, err := s.Get(ctx, resource)
		if err != nil {
			return loaded, err
		}
		if cred != nil {
			loaded++
		}
	}
	return loaded, nil
}

// Snapshot returns a copy of the memory tier keyed by resource.
func (s *CredentialStore) Snapshot() map[string]*oauth.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*oauth.Credential, len(s.memory))
	for resource, cred := range s.memory {
		out[resource] = copyCredential(cred)
	}
	return out
}

// Resources returns the resources currently in memory, sorted.
func (s *CredentialStore) Resources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.memory))
	for resource := range s.memory {
		out = append(out, resource)
	}
	sort.Strings(out)
	return out
}

// Peek returns the in-memory credential for resource without touching the
// durable backend.
func (s *CredentialStore) Peek(resource string) (*oauth.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.memory[resource]
	if !ok {
		return nil, false
	}
	return copyCredential(cred), true
}

// Flush waits for background writes and returns the durable write failures
// collected since the previous Flush, joined.
func (s *CredentialStore) Flush() error {
	s.pending.Wait()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := errors.Join(s.writeErr...)
	s.writeErr = nil
	return err
}

func (s *CredentialStore) nextSeq(key string) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq[key]++
	return s.seq[key]
}

func (s *CredentialStore) isLatest(key string, n uint64) bool {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.seq[key] == n
}

func (s *CredentialStore) recordWriteError(err *oauth.PersistenceError) {
	logging.Warn(subsystem, "Durable write failed, keeping in-memory credential: %v", err)
	s.errMu.Lock()
	s.writeErr = append(s.writeErr, err)
	s.errMu.Unlock()
}

func copyCredential(cred *oauth.Credential) *oauth.Credential {
	if cred == nil {
		return nil
	}
	out := *cred
	return &out
}
