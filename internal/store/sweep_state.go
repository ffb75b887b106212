package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
)

// SweepStateRepository persists when the expiry sweep last started.
type SweepStateRepository interface {
	// LastSweep returns the zero time if no sweep was ever recorded.
	LastSweep(ctx context.Context) (time.Time, error)
	MarkSweep(ctx context.Context, at time.Time) error
}

type sweepStateRepository struct {
	states docstore.Collection[model.SweepState]
}

// NewSweepStateRepository creates a SweepStateRepository on top of a sweep_states collection.
func NewSweepStateRepository(states docstore.Collection[model.SweepState]) SweepStateRepository {
	return &sweepStateRepository{states: states}
}

func (r *sweepStateRepository) LastSweep(ctx context.Context) (time.Time, error) {
	state, err := r.states.Get(ctx, model.ExpirySweepStateKey)
	if errors.Is(err, docstore.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sweep time: %w", err)
	}
	return state.LastSweepAt, nil
}

func (r *sweepStateRepository) MarkSweep(ctx context.Context, at time.Time) error {
	state := &model.SweepState{Name: model.ExpirySweepStateKey, LastSweepAt: at.UTC()}
	if err := r.states.Set(ctx, state); err != nil {
		return fmt.Errorf("failed to persist last sweep time: %w", err)
	}
	return nil
}
