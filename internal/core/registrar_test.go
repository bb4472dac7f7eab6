package core

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"mfestate/pkg/domain"
)

func TestRegisterTenantLifecycle(t *testing.T) {
	s := localStore(t)
	meta, err := s.RegisterTenant(domain.TenantMetadata{ID: "cart", Framework: "react", Version: "1.2.0"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if meta.RegisteredAt.IsZero() {
		t.Fatalf("expected RegisteredAt to be stamped")
	}
	if _, err := s.RegisterTenant(domain.TenantMetadata{ID: "cart"}); !errors.Is(err, domain.ErrTenantExists) {
		t.Fatalf("expected ErrTenantExists, got %v", err)
	}
	fixed := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if meta, _ := s.RegisterTenant(domain.TenantMetadata{ID: "account", RegisteredAt: fixed}); !meta.RegisteredAt.Equal(fixed) {
		t.Fatalf("explicit RegisteredAt overwritten")
	}

	var ids []string
	for _, tenant := range s.Tenants() {
		ids = append(ids, tenant.ID)
	}
	if !reflect.DeepEqual(ids, []string{"account", "cart"}) {
		t.Fatalf("unexpected tenant order %v", ids)
	}
	if got, ok := s.Tenant("cart"); !ok || got.Framework != "react" {
		t.Fatalf("unexpected tenant lookup %+v %v", got, ok)
	}
}

func TestUnregisterTenantDeletesItsKeys(t *testing.T) {
	s := localStore(t)
	if _, err := s.RegisterTenant(domain.TenantMetadata{ID: "cart"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Set(domain.TenantKey("cart", "items"), []any{"apple"})
	s.Set(domain.TenantKey("cart", "total"), 3)
	s.Set(domain.TenantKey("cartography", "maps"), 1)
	s.Set("shared", true)

	if keys := s.TenantKeys("cart"); len(keys) != 2 {
		t.Fatalf("expected 2 tenant keys, got %v", keys)
	}
	var sources []string
	s.SubscribeAll(func(ev domain.ChangeEvent) { sources = append(sources, ev.Source) })

	if err := s.UnregisterTenant("cart"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if len(s.TenantKeys("cart")) != 0 {
		t.Fatalf("tenant keys survived")
	}
	if len(s.TenantKeys("cartography")) != 1 || s.Get("shared") != true {
		t.Fatalf("unregister removed keys of other namespaces")
	}
	if !reflect.DeepEqual(sources, []string{domain.SourceDelete, domain.SourceDelete}) {
		t.Fatalf("unexpected events %v", sources)
	}
	if err := s.UnregisterTenant("cart"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestTenantIDValidation(t *testing.T) {
	s := localStore(t)
	for _, id := range []string{"", "  ", "a:b"} {
		if _, err := s.RegisterTenant(domain.TenantMetadata{ID: id}); !errors.Is(err, domain.ErrInvalidTenant) {
			t.Fatalf("RegisterTenant(%q): expected ErrInvalidTenant, got %v", id, err)
		}
		if err := s.UnregisterTenant(id); !errors.Is(err, domain.ErrInvalidTenant) {
			t.Fatalf("UnregisterTenant(%q): expected ErrInvalidTenant, got %v", id, err)
		}
	}
}
