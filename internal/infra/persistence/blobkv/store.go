// Package blobkv persists state entries as objects in any blob store (local
// filesystem, S3/MinIO, memory). Each entry is one object under a root
// prefix; entry keys are path-escaped so arbitrary state keys map to safe
// object names while prefix listing keeps working.
package blobkv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mfestate/internal/blob"
	"mfestate/pkg/domain"
)

var _ domain.Persister = (*Store)(nil)

// DefaultRoot is the object prefix used when none is configured.
const DefaultRoot = "state/"

// Store maps entries onto objects named Root+escape(key).
type Store struct {
	objects blob.Store
	root    string
}

// New wraps objects. An empty root uses DefaultRoot; a missing trailing slash
// is added.
func New(objects blob.Store, root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return &Store{objects: objects, root: root}
}

// escapeKey is applied per byte, so escapeKey(a+b) == escapeKey(a)+escapeKey(b)
// and prefixes survive escaping.
func escapeKey(key string) string {
	return strings.ReplaceAll(url.PathEscape(key), ".", "%2E")
}

func unescapeKey(name string) (string, error) {
	return url.PathUnescape(name)
}

// Entries lists objects under the escaped prefix and reads each one.
func (s *Store) Entries(ctx context.Context, prefix string) ([]domain.Entry, error) {
	objects, err := s.objects.Scan(ctx, s.root+escapeKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	out := make([]domain.Entry, 0, len(objects))
	for _, obj := range objects {
		key, err := unescapeKey(strings.TrimPrefix(obj.Key, s.root))
		if err != nil {
			continue
		}
		payload, err := s.objects.Read(ctx, obj.Key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Entry{Key: key, Payload: payload})
	}
	return out, nil
}

// Save writes payload as the object for key.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	if err := s.objects.Write(ctx, s.root+escapeKey(key), payload); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Remove deletes the object for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.objects.Remove(ctx, s.root+escapeKey(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Clear deletes every object under the escaped prefix.
func (s *Store) Clear(ctx context.Context, prefix string) error {
	objects, err := s.objects.Scan(ctx, s.root+escapeKey(prefix))
	if err != nil {
		return fmt.Errorf("scan %s: %w", s.root, err)
	}
	var errs []error
	for _, obj := range objects {
		if err := s.objects.Remove(ctx, obj.Key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", obj.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op; blob stores hold no releasable resources.
func (s *Store) Close() error { return nil }
