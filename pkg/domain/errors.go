package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantExists is returned when registering an id twice.
	ErrTenantExists = errors.New("tenant already registered")
	// ErrTenantNotFound is returned when unregistering an unknown id.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrInvalidTenant is returned for empty or malformed tenant ids.
	ErrInvalidTenant = errors.New("invalid tenant id")
	// ErrPayloadTooLarge is returned by transports with a message size limit.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrQuotaExceeded is returned by persisters with a storage quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrChannelClosed is returned when posting on a closed channel.
	ErrChannelClosed = errors.New("channel closed")
)

// ErrUnknownDriver is returned by driver factories for unrecognised names.
type ErrUnknownDriver struct {
	Kind string
	Name string
}

func (e ErrUnknownDriver) Error() string {
	return fmt.Sprintf("unknown %s driver %s", e.Kind, e.Name)
}
