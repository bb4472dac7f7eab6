package domain

import (
	"strings"
	"time"
)

// TenantNamespace is the reserved key prefix for tenant-owned keys:
// "tenant:<id>:<name>".
const TenantNamespace = "tenant"

// TenantMetadata describes a registered tenant (an independently deployed
// feature module). It owns no data; its keys are found by prefix.
type TenantMetadata struct {
	ID           string    `json:"id"`
	Framework    string    `json:"framework,omitempty"`
	Version      string    `json:"version,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// TenantPrefix returns the key prefix shared by every key owned by id.
func TenantPrefix(id string) string {
	return TenantNamespace + ":" + id + ":"
}

// TenantKey builds the namespaced key for name inside tenant id.
func TenantKey(id, name string) string {
	return TenantPrefix(id) + name
}

// TenantOf reports the tenant id encoded in key, if key follows the tenant
// namespace convention.
func TenantOf(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, TenantNamespace+":")
	if !ok {
		return "", false
	}
	id, _, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
