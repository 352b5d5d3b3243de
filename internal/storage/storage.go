// Package storage defines the persisted key-value store shared by the
// storefront aggregates, and the envelope format their state is saved in.
package storage

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// KV is a durable byte-valued key-value store.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes every key in one step: no reader observes a state where
	// only some of them are gone. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
