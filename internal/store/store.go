// Package store persists processed-reward records and provides the atomic
// reservation primitive the reward guard is built on.
//
// All implementations share one contract: Reserve is an atomic
// check-then-mark — two concurrent Reserve calls for the same key must
// never both succeed. Finalize upgrades a reservation to a permanent
// record; Release drops a reservation that was never finalized.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/open-format/rewarder/internal/model"
)

// ErrAlreadyProcessed is returned by Reserve when a record or a live
// reservation already exists for the key.
var ErrAlreadyProcessed = errors.New("store: already processed")

// ErrNotFound is returned by Get when no finalized record exists.
var ErrNotFound = errors.New("store: not found")

// Store is the processed-record contract. Implementations must be safe for
// concurrent use; reservation semantics are per key, so distinct keys never
// contend with each other beyond what the backend itself imposes.
type Store interface {
	// Reserve atomically marks key as being processed. Returns nil when the
	// caller owns issuance, ErrAlreadyProcessed otherwise.
	Reserve(ctx context.Context, key uuid.UUID) error

	// Finalize persists the full record for a previously reserved key.
	Finalize(ctx context.Context, key uuid.UUID, rec model.ProcessedReward) error

	// Release removes an unfinalized reservation so a later attempt can
	// retry. Releasing a finalized record is a no-op.
	Release(ctx context.Context, key uuid.UUID) error

	// Get returns the finalized record, or ErrNotFound when the key was
	// never finalized (including while it is merely reserved).
	Get(ctx context.Context, key uuid.UUID) (model.ProcessedReward, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
