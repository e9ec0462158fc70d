// Package storage defines the contract shared by the job config and
// execution history backends.
package storage

import (
	"context"

	"jobkeeper/internal/jobs"
)

// Store is a ConfigStore and ExecutionTracker backed by one database.
type Store interface {
	jobs.ConfigStore
	jobs.ExecutionTracker

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases resources the store owns.
	Close() error
}
