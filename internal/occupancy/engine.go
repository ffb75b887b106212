// Package occupancy keeps user records and spot rosters consistent without a
// multi-document transaction. Each operation is an ordered sequence of
// single-document writes; check-in undoes its roster write once if the user
// write fails, check-out never re-adds a removed roster entry.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"slackspot-backend/internal/store"
)

// cleanupTimeout bounds writes that must finish after the caller's context ends.
const cleanupTimeout = 5 * time.Second

const (
	opCheckIn    = "check_in"
	opCheckOut   = "check_out"
	opChangeSpot = "change_spot"
)

// Recorder receives operation outcomes, typically for metrics.
type Recorder interface {
	ObserveOperation(operation, outcome string)
	PartialFailure(operation string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string) {}
func (nopRecorder) PartialFailure(string)           {}

// Engine runs check-in, check-out and spot changes against the user and spot repositories.
type Engine struct {
	users       store.UserRepository
	spots       store.SpotRepository
	now         func() time.Time
	maxDuration float64
	recorder    Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxDuration caps the check-in duration in hours.
func WithMaxDuration(hours float64) Option {
	return func(e *Engine) {
		if hours > 0 {
			e.maxDuration = hours
		}
	}
}

// WithRecorder reports every outcome to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(users store.UserRepository, spots store.SpotRepository, opts ...Option) *Engine {
	e := &Engine{
		users:       users,
		spots:       spots,
		now:         time.Now,
		maxDuration: 24,
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckIn puts userID on the roster of spotKey and then points the user at it
// for durationHours.
func (e *Engine) CheckIn(ctx context.Context, userID, spotKey string, durationHours float64) Result {
	res := e.checkIn(ctx, userID, spotKey, durationHours)
	e.recorder.ObserveOperation(opCheckIn, string(res.Outcome))
	return res
}

// CheckOut takes userID off the roster of spotKey and then clears the user's check-in.
func (e *Engine) CheckOut(ctx context.Context, userID, spotKey string) Result {
	res := e.checkOut(ctx, userID, spotKey)
	e.recorder.ObserveOperation(opCheckOut, string(res.Outcome))
	return res
}

// ChangeSpot checks the user out of their current spot and into newSpotKey.
// If the check-in fails the user stays checked out.
func (e *Engine) ChangeSpot(ctx context.Context, userID, newSpotKey string, durationHours float64) Result {
	res := e.changeSpot(ctx, userID, newSpotKey, durationHours)
	e.recorder.ObserveOperation(opChangeSpot, string(res.Outcome))
	return res
}

// IsCheckedIntoSpot reports whether the user record currently points at spotKey.
func (e *Engine) IsCheckedIntoSpot(ctx context.Context, userID, spotKey string) (bool, error) {
	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return false, classify(err)
	}
	return user.IsCheckedInto(spotKey), nil
}

// invalidInput returns why the arguments are rejected, or "".
func (e *Engine) invalidInput(userID, spotKey string, durationHours float64) string {
	switch {
	case strings.TrimSpace(userID) == "":
		return "user ID is empty"
	case strings.TrimSpace(spotKey) == "":
		return "spot key is empty"
	case math.IsNaN(durationHours) || durationHours <= 0:
		return fmt.Sprintf("duration must be positive, got %v hours", durationHours)
	case durationHours > e.maxDuration:
		return fmt.Sprintf("duration of %v hours exceeds the maximum of %v", durationHours, e.maxDuration)
	}
	return ""
}

func rejected(reason string) Result {
	return failed(OutcomeCheckInFailed, fmt.Errorf("%w: %s", ErrInvalidInput, reason), "Check-in failed: "+reason)
}

func (e *Engine) checkIn(ctx context.Context, userID, spotKey string, durationHours float64) Result {
	if reason := e.invalidInput(userID, spotKey, durationHours); reason != "" {
		return rejected(reason)
	}

	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return failed(OutcomeCheckInFailed, classify(err), "Check-in failed: could not load your profile")
	}
	if user.IsCheckedInto(spotKey) {
		return failed(OutcomeAlreadyCheckedInHere,
			fmt.Errorf("%w: user %s already checked in at %s", ErrInvariantViolation, userID, spotKey),
			fmt.Sprintf("You are already checked in at %s", spotKey))
	}
	if user.IsCheckedIn() {
		return failed(OutcomeMustCheckOutFirst,
			fmt.Errorf("%w: user %s is checked in at %s", ErrInvariantViolation, userID, *user.CheckInSpot),
			fmt.Sprintf("You are checked in at %s; check out there first", *user.CheckInSpot))
	}

	if err := e.spots.AddOccupant(ctx, spotKey, userID); err != nil {
		return failed(OutcomeCheckInFailed, classify(err), "Check-in failed: the spot could not be updated")
	}

	now := e.now()
	deadline := now.Add(time.Duration(durationHours * float64(time.Hour)))
	if err := e.users.SetCheckIn(ctx, userID, spotKey, deadline); err != nil {
		e.recorder.PartialFailure(opCheckIn)
		undoCtx, cancel := detached(ctx)
		defer cancel()
		if undoErr := e.spots.RemoveOccupant(undoCtx, spotKey, userID); undoErr != nil {
			log.Printf("Check-in of user %s at %s left a stale roster entry: user update failed: %v; undo failed: %v", userID, spotKey, err, undoErr)
		} else {
			log.Printf("Check-in of user %s at %s rolled back after user update failed: %v", userID, spotKey, err)
		}
		return failed(OutcomeCheckInFailed, fmt.Errorf("%w: %w", ErrPartialFailure, err),
			"Check-in failed: your profile could not be updated")
	}

	return ok(fmt.Sprintf("Checked in at %s, check-out due %s", spotKey,
		humanize.RelTime(deadline, now, "ago", "from now")))
}

func (e *Engine) checkOut(ctx context.Context, userID, spotKey string) Result {
	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return failed(OutcomeCheckOutFailed, classify(err), "Check-out failed: could not load your profile")
	}
	if !user.IsCheckedInto(spotKey) {
		return failed(OutcomeNotCheckedIn,
			fmt.Errorf("%w: user %s is not checked in at %s", ErrInvariantViolation, userID, spotKey),
			fmt.Sprintf("You are not checked in at %s", spotKey))
	}

	removed := true
	if err := e.spots.RemoveOccupant(ctx, spotKey, userID); err != nil {
		if !errors.Is(err, store.ErrNotOccupying) {
			return failed(OutcomeCheckOutFailed, classify(err), "Check-out failed: the spot could not be updated")
		}
		// Roster already lost the entry, e.g. an earlier check-out failed halfway.
		log.Printf("User %s was not on the roster of %s; clearing the check-in anyway", userID, spotKey)
		removed = false
	}

	// The roster no longer holds the user; finish even if the caller went away.
	clearCtx, cancel := detached(ctx)
	defer cancel()
	if err := e.users.ClearCheckIn(clearCtx, userID); err != nil {
		if !removed {
			return failed(OutcomeCheckOutFailed, classify(err), "Check-out failed: your profile could not be updated")
		}
		e.recorder.PartialFailure(opCheckOut)
		log.Printf("Check-out of user %s at %s is incomplete: removed from roster but user update failed: %v", userID, spotKey, err)
		return failed(OutcomeCheckOutFailed, fmt.Errorf("%w: %w", ErrPartialFailure, err),
			"Check-out failed: please try again")
	}

	return ok(fmt.Sprintf("Checked out of %s", spotKey))
}

// detached keeps ctx's values but not its cancellation, with its own deadline.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func (e *Engine) changeSpot(ctx context.Context, userID, newSpotKey string, durationHours float64) Result {
	if reason := e.invalidInput(userID, newSpotKey, durationHours); reason != "" {
		return rejected(reason)
	}

	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return failed(OutcomeCheckInFailed, classify(err), "Check-in failed: could not load your profile")
	}
	if !user.IsCheckedIn() {
		return e.checkIn(ctx, userID, newSpotKey, durationHours)
	}
	if user.IsCheckedInto(newSpotKey) {
		return failed(OutcomeAlreadyCheckedInHere,
			fmt.Errorf("%w: user %s already checked in at %s", ErrInvariantViolation, userID, newSpotKey),
			fmt.Sprintf("You are already checked in at %s", newSpotKey))
	}

	oldSpotKey := *user.CheckInSpot
	if res := e.checkOut(ctx, userID, oldSpotKey); !res.Succeeded() {
		return res
	}
	res := e.checkIn(ctx, userID, newSpotKey, durationHours)
	if !res.Succeeded() {
		res.Message = fmt.Sprintf("%s. You were checked out of %s", res.Message, oldSpotKey)
	}
	return res
}
