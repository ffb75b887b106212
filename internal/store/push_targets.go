package store

import (
	"context"
	"errors"
	"fmt"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
)

// PushTargetRepository stores the web-push subscriptions of each user.
type PushTargetRepository interface {
	Get(ctx context.Context, userID string) (*model.PushTarget, error)
	// PutSubscription adds sub, replacing any subscription with the same endpoint.
	PutSubscription(ctx context.Context, userID string, sub model.PushSubscription) error
	// RemoveSubscription drops the subscription with the given endpoint, if any.
	RemoveSubscription(ctx context.Context, userID, endpoint string) error
}

type pushTargetRepository struct {
	targets docstore.Collection[model.PushTarget]
}

// NewPushTargetRepository creates a PushTargetRepository on top of a push_targets collection.
func NewPushTargetRepository(targets docstore.Collection[model.PushTarget]) PushTargetRepository {
	return &pushTargetRepository{targets: targets}
}

func (r *pushTargetRepository) Get(ctx context.Context, userID string) (*model.PushTarget, error) {
	return r.targets.Get(ctx, userID)
}

func (r *pushTargetRepository) PutSubscription(ctx context.Context, userID string, sub model.PushSubscription) error {
	err := r.targets.Mutate(ctx, userID, func(t *model.PushTarget) error {
		t.Subscriptions = append(withoutEndpoint(t.Subscriptions, sub.Endpoint), sub)
		return nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		err = r.targets.Set(ctx, &model.PushTarget{
			UserID:        userID,
			Subscriptions: model.SubscriptionList{sub},
		})
	}
	if err != nil {
		return fmt.Errorf("failed to save push subscription for user %s: %w", userID, err)
	}
	return nil
}

func (r *pushTargetRepository) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	err := r.targets.Mutate(ctx, userID, func(t *model.PushTarget) error {
		t.Subscriptions = withoutEndpoint(t.Subscriptions, endpoint)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove push subscription for user %s: %w", userID, err)
	}
	return nil
}

func withoutEndpoint(subs model.SubscriptionList, endpoint string) model.SubscriptionList {
	out := make(model.SubscriptionList, 0, len(subs))
	for _, s := range subs {
		if s.Endpoint != endpoint {
			out = append(out, s)
		}
	}
	return out
}
