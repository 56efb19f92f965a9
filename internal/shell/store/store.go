package store

import (
	"context"

	"github.com/artpar/stagehand/internal/core/deployment"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the run history journal.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *deployment.RunRecord) error
	UpdateRun(ctx context.Context, run *deployment.RunRecord) error
	GetRun(ctx context.Context, id string) (*deployment.RunRecord, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]deployment.RunRecord, error)

	// Component result operations
	CreateComponentResult(ctx context.Context, result *deployment.ComponentRecord) error
	ListComponentResults(ctx context.Context, runID string) ([]deployment.ComponentRecord, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  20,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
