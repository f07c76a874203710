package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/valkey-io/valkey-go"
)

// scanBatchSize is the COUNT hint for SCAN iterations.
const scanBatchSize = 100

// ValkeyBackend stores entries as plain string values in valkey, with an
// optional key prefix to share a keyspace with other applications.
type ValkeyBackend struct {
	client valkey.Client
	prefix string
}

// DialValkey connects to a single valkey or redis server.
func DialValkey(address string) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{address},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", address, err)
	}
	return client, nil
}

// NewValkeyBackend wraps an existing client. The caller keeps ownership of
// the client and closes it.
func NewValkeyBackend(client valkey.Client, prefix string) *ValkeyBackend {
	return &ValkeyBackend{client: client, prefix: prefix}
}

// Get implements Backend.
func (v *ValkeyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("valkey GET %s: %w", key, err)
	}
	return data, true, nil
}

// Set implements Backend.
func (v *ValkeyBackend) Set(ctx context.Context, key string, value []byte) error {
	cmd := v.client.B().Set().Key(v.prefix + key).Value(valkey.BinaryString(value)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey SET %s: %w", key, err)
	}
	return nil
}

// MultiSet implements Backend. The SETs are pipelined rather than sent as
// one MSET so that keys may live in different cluster slots.
func (v *ValkeyBackend) MultiSet(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cmds := make(valkey.Commands, 0, len(keys))
	for _, key := range keys {
		cmds = append(cmds, v.client.B().Set().Key(v.prefix+key).Value(valkey.BinaryString(entries[key])).Build())
	}
	for i, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey SET %s: %w", keys[i], err)
		}
	}
	return nil
}

// Keys implements Backend.
func (v *ValkeyBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(v.prefix+prefix) + "*"
	seen := make(map[string]bool)
	var cursor uint64
	for {
		cmd := v.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build()
		entry, err := v.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("valkey SCAN %s: %w", pattern, err)
		}
		for _, element := range entry.Elements {
			seen[strings.TrimPrefix(element, v.prefix)] = true
		}
		if entry.Cursor == 0 {
			break
		}
		cursor = entry.Cursor
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix implements Backend. Like MultiSet it pipelines one DEL per
// key, since a multi-key DEL fails when the keys span cluster slots.
func (v *ValkeyBackend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := v.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	cmds := make(valkey.Commands, 0, len(keys))
	for _, key := range keys {
		cmds = append(cmds, v.client.B().Del().Key(v.prefix+key).Build())
	}
	for i, resp := range v.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey DEL %s: %w", keys[i], err)
		}
	}
	return nil
}

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
