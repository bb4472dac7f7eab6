package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"mfestate/pkg/domain"
)

// registrar tracks registered tenants. Tenant keys live in the store under
// domain.TenantPrefix(id); the registrar only indexes metadata.
type registrar struct {
	mu      sync.RWMutex
	tenants map[string]domain.TenantMetadata
}

func newRegistrar() *registrar {
	return &registrar{tenants: make(map[string]domain.TenantMetadata)}
}

func validateTenantID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, ":") {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTenant, id)
	}
	return nil
}

// RegisterTenant records meta under meta.ID. RegisteredAt is stamped with the
// store clock when zero.
func (s *Store) RegisterTenant(meta domain.TenantMetadata) (domain.TenantMetadata, error) {
	if err := validateTenantID(meta.ID); err != nil {
		return domain.TenantMetadata{}, err
	}
	if meta.RegisteredAt.IsZero() {
		meta.RegisteredAt = s.now()
	}
	r := s.tenants
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[meta.ID]; exists {
		return domain.TenantMetadata{}, fmt.Errorf("%w: %s", domain.ErrTenantExists, meta.ID)
	}
	r.tenants[meta.ID] = meta
	s.logger.Debugf("tenant %s registered (%s %s)", meta.ID, meta.Framework, meta.Version)
	return meta, nil
}

// UnregisterTenant forgets id and deletes every key under its namespace,
// firing a normal "delete" event per key.
func (s *Store) UnregisterTenant(id string) error {
	if err := validateTenantID(id); err != nil {
		return err
	}
	r := s.tenants
	r.mu.Lock()
	_, exists := r.tenants[id]
	delete(r.tenants, id)
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrTenantNotFound, id)
	}
	keys := s.TenantKeys(id)
	for _, key := range keys {
		s.Delete(key)
	}
	s.logger.Debugf("tenant %s unregistered, %d keys removed", id, len(keys))
	return nil
}

// Tenants returns the registered tenants ordered by id.
func (s *Store) Tenants() []domain.TenantMetadata {
	r := s.tenants
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TenantMetadata, 0, len(r.tenants))
	for _, meta := range r.tenants {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tenant returns the metadata registered under id.
func (s *Store) Tenant(id string) (domain.TenantMetadata, bool) {
	r := s.tenants
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.tenants[id]
	return meta, ok
}

// TenantKeys returns the present keys under id's namespace in ascending order.
// Registration is not required.
func (s *Store) TenantKeys(id string) []string {
	prefix := domain.TenantPrefix(id)
	var out []string
	for _, key := range s.Keys() {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out
}
