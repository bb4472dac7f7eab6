// Package core defines the object store contract shared by the blob drivers.
// Objects are small byte payloads addressed by slash-separated keys.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver names a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// Object describes a stored object without its content.
type Object struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// Store is a flat key/object namespace. Write replaces an existing object,
// Remove of a missing key succeeds and Scan is ordered by key ascending.
type Store interface {
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) ([]Object, error)
	Driver() Driver
}

// ErrNotFound is returned by Read for missing keys.
var ErrNotFound = errors.New("blob: not found")

// ErrInvalidKey is returned for keys a driver cannot address.
var ErrInvalidKey = errors.New("blob: invalid key")
