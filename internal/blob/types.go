// Package blob selects an object store driver for the blob persistence
// backend. Only this package imports the infra drivers.
package blob

import "mfestate/internal/blob/core"

type (
	Driver = core.Driver
	Object = core.Object
	Store  = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)
