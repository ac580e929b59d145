package store

import (
	"context"
	"errors"
)

// Store persists opaque blobs by key. Implementations back model
// snapshots, the metric history log, and the healing ledger.
type Store interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrNotFound signals that a key is absent from the store.
var ErrNotFound = errors.New("store: key not found")

// Well-known keys shared by the engine components.
const (
	KeyModelSnapshot = "model/snapshot"
	KeyLedger        = "healing/ledger"
	KeyMetricHistory = "metrics/history"
)
