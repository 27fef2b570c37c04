// Package kv is the synchronous-from-the-caller key-value storage the watch
// subsystem persists into. The verbs mirror the browser storage API so the
// progress and library code reads the same against every backend.
//
// Backends: memory (development, tests), file (one atomically replaced file
// per key), redis and postgres. Namespace scopes any backend to one viewer
// profile.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned when a write would exceed the backend quota.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")
	// ErrInvalidKey is returned for keys a backend cannot represent.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Storage is a string key-value store.
type Storage interface {
	// GetItem returns the value for key and whether it exists.
	GetItem(ctx context.Context, key string) (string, bool, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error
}
