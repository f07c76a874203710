// Package store implements the two-tier credential cache used by token
// contexts.
//
// A CredentialStore belongs to exactly one client_id. Reads are served from
// memory first and fall back to a durable Backend on a miss. Writes land in
// memory synchronously and are persisted asynchronously; the in-memory value
// is authoritative for the lifetime of the process even if the durable write
// has not finished or has failed.
//
// Durable entries are keyed "{client_id}.{resource}" (see Key) and hold the
// JSON-encoded credential. Three backends are provided:
//
//   - MemoryBackend: process-local, useful for tests and ephemeral sessions
//   - FileBackend: any github.com/viant/afs URL (file://, mem://, ...)
//   - ValkeyBackend: a valkey or redis server via valkey-go
//
// Durable write failures never roll back the memory tier. They are logged
// and collected as *oauth.PersistenceError values, returned by Flush.
package store
