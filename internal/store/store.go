// Package store provides durable client-side state.
package store

import (
	"context"
	"errors"
)

// CredentialKey is the single durable key holding the session credential.
const CredentialKey = "token"

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("key not found")

// SessionStore is durable key/value persistence that survives restarts.
// Only the session manager reads or writes the credential key.
type SessionStore interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces the value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing storage.
	Close() error
}
