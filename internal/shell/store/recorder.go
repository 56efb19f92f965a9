package store

import (
	"context"

	"github.com/artpar/stagehand/internal/core/deployment"
)

// Recorder journals orchestration runs into a Store.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// RunStarted inserts the run.
func (r *Recorder) RunStarted(ctx context.Context, run *deployment.RunRecord) error {
	return r.store.CreateRun(ctx, run)
}

// ComponentFinished stores the component's result and the run's dispatch
// count together.
func (r *Recorder) ComponentFinished(ctx context.Context, run *deployment.RunRecord, result *deployment.ComponentRecord) error {
	return r.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateComponentResult(ctx, result); err != nil {
			return err
		}
		return tx.UpdateRun(ctx, run)
	})
}

// RunFinished stores the run's final state.
func (r *Recorder) RunFinished(ctx context.Context, run *deployment.RunRecord) error {
	return r.store.UpdateRun(ctx, run)
}
