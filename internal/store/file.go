package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

const (
	credentialFileExt  = ".json"
	credentialFileMode = 0o600
)

// FileBackend persists each entry as one JSON object under a base URL.
// Any scheme supported by afs works; file:// is the common case.
//
// Object names are the base64url-encoded key, so resource URLs never leak
// path separators into the object name.
type FileBackend struct {
	fs      afs.Service
	baseURL string
}

// NewFileBackend creates a backend rooted at baseURL, e.g.
// file:///home/me/.config/adtoken/credentials.
func NewFileBackend(baseURL string) *FileBackend {
	return &FileBackend{
		fs:      afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the directory URL entries are written to.
func (f *FileBackend) BaseURL() string {
	return f.baseURL
}

func encodeObjectName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + credentialFileExt
}

func decodeObjectName(name string) (string, bool) {
	if !strings.HasSuffix(name, credentialFileExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, credentialFileExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (f *FileBackend) objectURL(key string) string {
	return url.Join(f.baseURL, encodeObjectName(key))
}

// Get implements Backend.
func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	objectURL := f.objectURL(key)
	exists, err := f.fs.Exists(ctx, objectURL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat %s: %w", objectURL, err)
	}
	if !exists {
		return nil, false, nil
	}
	data, err := f.fs.DownloadWithURL(ctx, objectURL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to download %s: %w", objectURL, err)
	}
	return data, true, nil
}

// Set implements Backend.
func (f *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	objectURL := f.objectURL(key)
	if err := f.fs.Upload(ctx, objectURL, credentialFileMode, bytes.NewReader(value)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectURL, err)
	}
	return nil
}

// MultiSet implements Backend. Entries are written one by one in key order.
func (f *FileBackend) MultiSet(ctx context.Context, entries map[string][]byte) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := f.Set(ctx, key, entries[key]); err != nil {
			return err
		}
	}
	return nil
}

// Keys implements Backend.
func (f *FileBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	exists, err := f.fs.Exists(ctx, f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", f.baseURL, err)
	}
	if !exists {
		return nil, nil
	}

	objects, err := f.fs.List(ctx, f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.baseURL, err)
	}

	var keys []string
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		key, ok := decodeObjectName(object.Name())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix implements Backend.
func (f *FileBackend) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := f.Keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		objectURL := f.objectURL(key)
		if err := f.fs.Delete(ctx, objectURL); err != nil {
			return fmt.Errorf("failed to delete %s: %w", objectURL, err)
		}
	}
	return nil
}
