package store

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
)

var (
	// ErrAlreadyExists is returned by Create when the document is already present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotOccupying is returned by RemoveOccupant when the user is not on the spot's roster.
	ErrNotOccupying = errors.New("user is not on the spot roster")
)

// Collection names shared by every backend.
const (
	usersCollection       = "users"
	spotsCollection       = "spots"
	sweepStatesCollection = "sweep_states"
	pushTargetsCollection = "push_targets"
)

// Store bundles the repositories backed by one document store.
type Store struct {
	Users       UserRepository
	Spots       SpotRepository
	SweepState  SweepStateRepository
	PushTargets PushTargetRepository
}

// NewGormStore creates a Store whose collections are GORM tables.
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Users: NewUserRepository(docstore.NewGormCollection(db, usersCollection, "user_id",
			func(u *model.User) string { return u.UserID })),
		Spots: NewSpotRepository(docstore.NewGormCollection(db, spotsCollection, "spot_key",
			func(s *model.Spot) string { return s.SpotKey })),
		SweepState: NewSweepStateRepository(docstore.NewGormCollection(db, sweepStatesCollection, "name",
			func(s *model.SweepState) string { return s.Name })),
		PushTargets: NewPushTargetRepository(docstore.NewGormCollection(db, pushTargetsCollection, "user_id",
			func(p *model.PushTarget) string { return p.UserID })),
	}
}

// NewRedisStore creates a Store whose collections live in Redis under keyPrefix.
func NewRedisStore(rdb *redis.Client, keyPrefix string) *Store {
	prefix := docstore.WithKeyPrefix(keyPrefix)
	return &Store{
		Users: NewUserRepository(docstore.NewRedisCollection(rdb, usersCollection,
			func(u *model.User) string { return u.UserID }, prefix)),
		Spots: NewSpotRepository(docstore.NewRedisCollection(rdb, spotsCollection,
			func(s *model.Spot) string { return s.SpotKey }, prefix)),
		SweepState: NewSweepStateRepository(docstore.NewRedisCollection(rdb, sweepStatesCollection,
			func(s *model.SweepState) string { return s.Name }, prefix)),
		PushTargets: NewPushTargetRepository(docstore.NewRedisCollection(rdb, pushTargetsCollection,
			func(p *model.PushTarget) string { return p.UserID }, prefix)),
	}
}
