package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
)

// UserRepository reads and writes the occupancy fields of user records.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	// SetCheckIn points the user at spotKey until deadline.
	SetCheckIn(ctx context.Context, userID, spotKey string, deadline time.Time) error
	// ClearCheckIn removes the spot and deadline together.
	ClearCheckIn(ctx context.Context, userID string) error
	List(ctx context.Context) ([]model.User, error)
	Create(ctx context.Context, user *model.User) error
}

type userRepository struct {
	users docstore.Collection[model.User]
}

// NewUserRepository creates a UserRepository on top of a users collection.
func NewUserRepository(users docstore.Collection[model.User]) UserRepository {
	return &userRepository{users: users}
}

func (r *userRepository) Get(ctx context.Context, userID string) (*model.User, error) {
	return r.users.Get(ctx, userID)
}

func (r *userRepository) SetCheckIn(ctx context.Context, userID, spotKey string, deadline time.Time) error {
	err := r.users.Update(ctx, userID, docstore.Fields{
		"check_in_spot":      spotKey,
		"check_out_deadline": deadline.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to set check-in of user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepository) ClearCheckIn(ctx context.Context, userID string) error {
	err := r.users.Update(ctx, userID, docstore.Fields{
		"check_in_spot":      nil,
		"check_out_deadline": nil,
	})
	if err != nil {
		return fmt.Errorf("failed to clear check-in of user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepository) List(ctx context.Context) ([]model.User, error) {
	return r.users.List(ctx)
}

// Create registers a new user. The existence check and the write are two
// separate calls; a concurrent registration of the same ID ends with one record.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if _, err := r.users.Get(ctx, user.UserID); err == nil {
		return fmt.Errorf("user %s: %w", user.UserID, ErrAlreadyExists)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	return r.users.Set(ctx, user)
}
