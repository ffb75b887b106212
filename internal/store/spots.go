package store

import (
	"context"
	"errors"
	"fmt"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
)

// SpotRepository reads and writes spot rosters. Both roster mutations are
// single-document read-modify-write cycles, so concurrent check-ins at the
// same spot never drop each other's entry.
type SpotRepository interface {
	Get(ctx context.Context, spotKey string) (*model.Spot, error)
	// AddOccupant puts userID on the roster. A new visit increments total_users.
	AddOccupant(ctx context.Context, spotKey, userID string) error
	// RemoveOccupant takes userID off the roster, or returns ErrNotOccupying.
	RemoveOccupant(ctx context.Context, spotKey, userID string) error
	List(ctx context.Context) ([]model.Spot, error)
	Create(ctx context.Context, spot *model.Spot) error
}

type spotRepository struct {
	spots docstore.Collection[model.Spot]
}

// NewSpotRepository creates a SpotRepository on top of a spots collection.
func NewSpotRepository(spots docstore.Collection[model.Spot]) SpotRepository {
	return &spotRepository{spots: spots}
}

func (r *spotRepository) Get(ctx context.Context, spotKey string) (*model.Spot, error) {
	return r.spots.Get(ctx, spotKey)
}

func (r *spotRepository) AddOccupant(ctx context.Context, spotKey, userID string) error {
	err := r.spots.Mutate(ctx, spotKey, func(s *model.Spot) error {
		if !s.CheckedInUserIDs.Contains(userID) {
			s.CheckedInUserIDs = append(s.CheckedInUserIDs, userID)
			s.TotalUsers++
		}
		s.ActiveUsers = len(s.CheckedInUserIDs)
		s.TotalUsers = max(s.TotalUsers, s.ActiveUsers)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add user %s to spot %s: %w", userID, spotKey, err)
	}
	return nil
}

func (r *spotRepository) RemoveOccupant(ctx context.Context, spotKey, userID string) error {
	err := r.spots.Mutate(ctx, spotKey, func(s *model.Spot) error {
		if !s.CheckedInUserIDs.Contains(userID) {
			return ErrNotOccupying
		}
		s.CheckedInUserIDs = s.CheckedInUserIDs.Without(userID)
		s.ActiveUsers = len(s.CheckedInUserIDs)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove user %s from spot %s: %w", userID, spotKey, err)
	}
	return nil
}

func (r *spotRepository) List(ctx context.Context) ([]model.Spot, error) {
	return r.spots.List(ctx)
}

func (r *spotRepository) Create(ctx context.Context, spot *model.Spot) error {
	if _, err := r.spots.Get(ctx, spot.SpotKey); err == nil {
		return fmt.Errorf("spot %s: %w", spot.SpotKey, ErrAlreadyExists)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	spot.ActiveUsers = len(spot.CheckedInUserIDs)
	return r.spots.Set(ctx, spot)
}
