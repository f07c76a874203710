package store

import "context"

// Backend is the durable key-value collaborator behind a CredentialStore.
// A missing key is a normal miss (ok=false, err=nil), not an error.
type Backend interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// MultiSet stores every entry. It is not required to be atomic.
	MultiSet(ctx context.Context, entries map[string][]byte) error

	// Keys lists all keys starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// DeletePrefix removes all keys starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Key returns the durable key for a credential: "{client_id}.{resource}".
func Key(clientID, resource string) string {
	return clientID + "." + resource
}

// keyPrefix returns the prefix shared by every key of clientID.
func keyPrefix(clientID string) string {
	return clientID + "."
}
