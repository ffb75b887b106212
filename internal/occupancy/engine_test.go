package occupancy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/model"
	"slackspot-backend/internal/store"
	"slackspot-backend/internal/testutil"
)

const (
	spotA = "10.0,20.0"
	spotB = "11.5,21.25"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

// faultyUsers wraps a real repository; a non-nil func field replaces that call.
type faultyUsers struct {
	store.UserRepository
	SetCheckInFunc   func(ctx context.Context, userID, spotKey string, deadline time.Time) error
	ClearCheckInFunc func(ctx context.Context, userID string) error
}

func (f *faultyUsers) SetCheckIn(ctx context.Context, userID, spotKey string, deadline time.Time) error {
	if f.SetCheckInFunc != nil {
		return f.SetCheckInFunc(ctx, userID, spotKey, deadline)
	}
	return f.UserRepository.SetCheckIn(ctx, userID, spotKey, deadline)
}

func (f *faultyUsers) ClearCheckIn(ctx context.Context, userID string) error {
	if f.ClearCheckInFunc != nil {
		return f.ClearCheckInFunc(ctx, userID)
	}
	return f.UserRepository.ClearCheckIn(ctx, userID)
}

type faultySpots struct {
	store.SpotRepository
	AddOccupantFunc    func(ctx context.Context, spotKey, userID string) error
	RemoveOccupantFunc func(ctx context.Context, spotKey, userID string) error
}

func (f *faultySpots) AddOccupant(ctx context.Context, spotKey, userID string) error {
	if f.AddOccupantFunc != nil {
		return f.AddOccupantFunc(ctx, spotKey, userID)
	}
	return f.SpotRepository.AddOccupant(ctx, spotKey, userID)
}

func (f *faultySpots) RemoveOccupant(ctx context.Context, spotKey, userID string) error {
	if f.RemoveOccupantFunc != nil {
		return f.RemoveOccupantFunc(ctx, spotKey, userID)
	}
	return f.SpotRepository.RemoveOccupant(ctx, spotKey, userID)
}

type recordedOutcome struct {
	operation string
	outcome   string
}

type mockRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
	partial  []string
}

func (m *mockRecorder) ObserveOperation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, recordedOutcome{operation, outcome})
}

func (m *mockRecorder) PartialFailure(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partial = append(m.partial, operation)
}

type fixture struct {
	store    *store.Store
	users    *faultyUsers
	spots    *faultySpots
	recorder *mockRecorder
	engine   *Engine
}

func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewGormStore(testutil.NewDB(t))
	for _, key := range []string{spotA, spotB} {
		require.NoError(t, s.Spots.Create(ctx, &model.Spot{SpotKey: key}))
	}
	for _, id := range userIDs {
		require.NoError(t, s.Users.Create(ctx, &model.User{UserID: id}))
	}

	f := &fixture{
		store:    s,
		users:    &faultyUsers{UserRepository: s.Users},
		spots:    &faultySpots{SpotRepository: s.Spots},
		recorder: &mockRecorder{},
	}
	f.engine = NewEngine(f.users, f.spots,
		WithClock(func() time.Time { return testNow }),
		WithMaxDuration(24),
		WithRecorder(f.recorder))
	return f
}

func (f *fixture) user(t *testing.T, userID string) *model.User {
	t.Helper()
	u, err := f.store.Users.Get(context.Background(), userID)
	require.NoError(t, err)
	return u
}

func (f *fixture) spot(t *testing.T, spotKey string) *model.Spot {
	t.Helper()
	s, err := f.store.Spots.Get(context.Background(), spotKey)
	require.NoError(t, err)
	return s
}

func unavailable(op string) error {
	return fmt.Errorf("%s: %w: connection reset", op, docstore.ErrUnavailable)
}

func TestCheckInThenCheckOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")

	res := f.engine.CheckIn(ctx, "userA", spotA, 2)
	require.True(t, res.Succeeded(), res.Message)
	assert.Nil(t, res.Err)
	assert.Contains(t, res.Message, "2 hours from now")

	spot := f.spot(t, spotA)
	assert.Equal(t, 1, spot.ActiveUsers)
	assert.Equal(t, 1, spot.TotalUsers)
	assert.Equal(t, model.Roster{"userA"}, spot.CheckedInUserIDs)

	user := f.user(t, "userA")
	require.NotNil(t, user.CheckInSpot)
	assert.Equal(t, spotA, *user.CheckInSpot)
	require.NotNil(t, user.CheckOutDeadline)
	assert.True(t, testNow.Add(2*time.Hour).Equal(*user.CheckOutDeadline))

	res = f.engine.CheckOut(ctx, "userA", spotA)
	require.True(t, res.Succeeded(), res.Message)

	spot = f.spot(t, spotA)
	assert.Equal(t, 0, spot.ActiveUsers)
	assert.Equal(t, 1, spot.TotalUsers)
	assert.Empty(t, spot.CheckedInUserIDs)
	assert.Nil(t, f.user(t, "userA").CheckInSpot)

	assert.Equal(t, []recordedOutcome{
		{opCheckIn, string(OutcomeOK)},
		{opCheckOut, string(OutcomeOK)},
	}, f.recorder.outcomes)
}

func TestCheckIn_AtMostOneSpot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")

	require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

	res := f.engine.CheckIn(ctx, "userA", spotB, 1)
	assert.Equal(t, OutcomeMustCheckOutFirst, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrInvariantViolation)
	assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)
	assert.Empty(t, f.spot(t, spotB).CheckedInUserIDs)

	res = f.engine.CheckIn(ctx, "userA", spotA, 1)
	assert.Equal(t, OutcomeAlreadyCheckedInHere, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrInvariantViolation)
	assert.Equal(t, 1, f.spot(t, spotA).TotalUsers)
}

func TestCheckIn_InvalidInput(t *testing.T) {
	testCases := []struct {
		name     string
		userID   string
		spotKey  string
		duration float64
	}{
		{"zero duration", "userA", spotA, 0},
		{"negative duration", "userA", spotA, -1},
		{"above maximum", "userA", spotA, 24.5},
		{"not a number", "userA", spotA, math.NaN()},
		{"infinite", "userA", spotA, math.Inf(1)},
		{"empty spot key", "userA", " ", 1},
		{"empty user ID", "", spotA, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "userA")
			res := f.engine.CheckIn(context.Background(), tc.userID, tc.spotKey, tc.duration)

			assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
			assert.ErrorIs(t, res.Err, ErrInvalidInput)
			assert.False(t, f.user(t, "userA").IsCheckedIn())
			assert.Empty(t, f.spot(t, spotA).CheckedInUserIDs)
		})
	}
}

func TestCheckIn_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")

	res := f.engine.CheckIn(ctx, "ghost", spotA, 1)
	assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.Empty(t, f.spot(t, spotA).CheckedInUserIDs)

	res = f.engine.CheckIn(ctx, "userA", "0,0", 1)
	assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
}

func TestCheckIn_RosterWriteFails(t *testing.T) {
	f := newFixture(t, "userA")
	f.spots.AddOccupantFunc = func(context.Context, string, string) error {
		return unavailable("add occupant")
	}

	res := f.engine.CheckIn(context.Background(), "userA", spotA, 1)
	assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrStoreUnavailable)
	assert.NotErrorIs(t, res.Err, ErrPartialFailure)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
	assert.Empty(t, f.recorder.partial)
}

func TestCheckIn_UserWriteFailsIsCompensated(t *testing.T) {
	f := newFixture(t, "userA")
	f.users.SetCheckInFunc = func(context.Context, string, string, time.Time) error {
		return unavailable("set check-in")
	}
	var undo int
	f.spots.RemoveOccupantFunc = func(ctx context.Context, spotKey, userID string) error {
		undo++
		return f.store.Spots.RemoveOccupant(ctx, spotKey, userID)
	}

	res := f.engine.CheckIn(context.Background(), "userA", spotA, 1)
	assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPartialFailure)
	assert.Equal(t, 1, undo, "exactly one compensating removal")

	spot := f.spot(t, spotA)
	assert.Empty(t, spot.CheckedInUserIDs)
	assert.Equal(t, 0, spot.ActiveUsers)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
	assert.Equal(t, []string{opCheckIn}, f.recorder.partial)
}

func TestCheckIn_CompensationFailsLeavesStaleEntry(t *testing.T) {
	f := newFixture(t, "userA")
	f.users.SetCheckInFunc = func(context.Context, string, string, time.Time) error {
		return unavailable("set check-in")
	}
	var undo int
	f.spots.RemoveOccupantFunc = func(context.Context, string, string) error {
		undo++
		return unavailable("remove occupant")
	}

	res := f.engine.CheckIn(context.Background(), "userA", spotA, 1)
	assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPartialFailure)
	assert.Equal(t, 1, undo, "the undo is not retried")
	assert.Equal(t, model.Roster{"userA"}, f.spot(t, spotA).CheckedInUserIDs)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
}

func TestCheckIn_UndoRunsAfterCallerCancels(t *testing.T) {
	f := newFixture(t, "userA")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The client goes away right after the roster write.
	f.spots.AddOccupantFunc = func(ctx context.Context, spotKey, userID string) error {
		err := f.store.Spots.AddOccupant(ctx, spotKey, userID)
		cancel()
		return err
	}

	res := f.engine.CheckIn(ctx, "userA", spotA, 1)
	assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPartialFailure)

	spot := f.spot(t, spotA)
	assert.Empty(t, spot.CheckedInUserIDs, "the undo must not inherit the cancellation")
	assert.Equal(t, 0, spot.ActiveUsers)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
}

func TestCheckOut_FinishesAfterCallerCancels(t *testing.T) {
	f := newFixture(t, "userA")
	require.True(t, f.engine.CheckIn(context.Background(), "userA", spotA, 1).Succeeded())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.spots.RemoveOccupantFunc = func(ctx context.Context, spotKey, userID string) error {
		err := f.store.Spots.RemoveOccupant(ctx, spotKey, userID)
		cancel()
		return err
	}

	res := f.engine.CheckOut(ctx, "userA", spotA)
	assert.True(t, res.Succeeded(), res.Message)
	assert.Empty(t, f.spot(t, spotA).CheckedInUserIDs)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
	assert.Empty(t, f.recorder.partial)
}

func TestCheckOut_NotCheckedIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")

	res := f.engine.CheckOut(ctx, "userA", spotA)
	assert.Equal(t, OutcomeNotCheckedIn, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrInvariantViolation)

	require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())
	res = f.engine.CheckOut(ctx, "userA", spotB)
	assert.Equal(t, OutcomeNotCheckedIn, res.Outcome)
	assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)

	res = f.engine.CheckOut(ctx, "ghost", spotA)
	assert.Equal(t, OutcomeCheckOutFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNotFound)
}

func TestCheckOut_RosterWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")
	require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

	f.spots.RemoveOccupantFunc = func(context.Context, string, string) error {
		return unavailable("remove occupant")
	}
	res := f.engine.CheckOut(ctx, "userA", spotA)
	assert.Equal(t, OutcomeCheckOutFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrStoreUnavailable)
	assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)
	assert.Equal(t, model.Roster{"userA"}, f.spot(t, spotA).CheckedInUserIDs)
}

func TestCheckOut_PartialFailureConvergesOnRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")
	require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

	f.users.ClearCheckInFunc = func(context.Context, string) error {
		return unavailable("clear check-in")
	}
	res := f.engine.CheckOut(ctx, "userA", spotA)
	assert.Equal(t, OutcomeCheckOutFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPartialFailure)
	assert.Equal(t, []string{opCheckOut}, f.recorder.partial)

	// The roster entry is gone and is not re-added; the user still points at the spot.
	assert.Empty(t, f.spot(t, spotA).CheckedInUserIDs)
	assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)

	f.users.ClearCheckInFunc = nil
	res = f.engine.CheckOut(ctx, "userA", spotA)
	require.True(t, res.Succeeded(), res.Message)
	assert.False(t, f.user(t, "userA").IsCheckedIn())
	assert.Equal(t, 0, f.spot(t, spotA).ActiveUsers)
}

func TestCheckOut_FailureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")
	require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())
	before := f.spot(t, spotA)

	for i := 0; i < 2; i++ {
		res := f.engine.CheckOut(ctx, "userA", spotB)
		assert.Equal(t, OutcomeNotCheckedIn, res.Outcome)
	}
	assert.Equal(t, before, f.spot(t, spotA))
	assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)
}

func TestChangeSpot(t *testing.T) {
	ctx := context.Background()

	t.Run("not checked in is a plain check-in", func(t *testing.T) {
		f := newFixture(t, "userA")
		res := f.engine.ChangeSpot(ctx, "userA", spotB, 1)
		require.True(t, res.Succeeded(), res.Message)
		assert.Equal(t, spotB, *f.user(t, "userA").CheckInSpot)
		assert.Equal(t, []recordedOutcome{{opChangeSpot, string(OutcomeOK)}}, f.recorder.outcomes)
	})

	t.Run("moves between spots", func(t *testing.T) {
		f := newFixture(t, "userA")
		require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

		res := f.engine.ChangeSpot(ctx, "userA", spotB, 3)
		require.True(t, res.Succeeded(), res.Message)
		assert.Empty(t, f.spot(t, spotA).CheckedInUserIDs)
		assert.Equal(t, model.Roster{"userA"}, f.spot(t, spotB).CheckedInUserIDs)
		user := f.user(t, "userA")
		assert.Equal(t, spotB, *user.CheckInSpot)
		assert.True(t, testNow.Add(3*time.Hour).Equal(*user.CheckOutDeadline))
	})

	t.Run("same spot", func(t *testing.T) {
		f := newFixture(t, "userA")
		require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

		res := f.engine.ChangeSpot(ctx, "userA", spotA, 1)
		assert.Equal(t, OutcomeAlreadyCheckedInHere, res.Outcome)
		assert.Equal(t, model.Roster{"userA"}, f.spot(t, spotA).CheckedInUserIDs)
	})

	t.Run("invalid duration changes nothing", func(t *testing.T) {
		f := newFixture(t, "userA")
		require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

		res := f.engine.ChangeSpot(ctx, "userA", spotB, 48)
		assert.ErrorIs(t, res.Err, ErrInvalidInput)
		assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)
	})

	t.Run("check-out failure aborts", func(t *testing.T) {
		f := newFixture(t, "userA")
		require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())
		f.spots.RemoveOccupantFunc = func(context.Context, string, string) error {
			return unavailable("remove occupant")
		}

		res := f.engine.ChangeSpot(ctx, "userA", spotB, 1)
		assert.Equal(t, OutcomeCheckOutFailed, res.Outcome)
		assert.Equal(t, spotA, *f.user(t, "userA").CheckInSpot)
		assert.Empty(t, f.spot(t, spotB).CheckedInUserIDs)
	})

	t.Run("check-in failure leaves the user checked out", func(t *testing.T) {
		f := newFixture(t, "userA")
		require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())

		res := f.engine.ChangeSpot(ctx, "userA", "0,0", 1)
		assert.Equal(t, OutcomeCheckInFailed, res.Outcome)
		assert.ErrorIs(t, res.Err, ErrNotFound)
		assert.Contains(t, res.Message, spotA)
		assert.False(t, f.user(t, "userA").IsCheckedIn())
		assert.Empty(t, f.spot(t, spotA).CheckedInUserIDs)
	})
}

func TestIsCheckedIntoSpot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "userA")

	in, err := f.engine.IsCheckedIntoSpot(ctx, "userA", spotA)
	require.NoError(t, err)
	assert.False(t, in)

	require.True(t, f.engine.CheckIn(ctx, "userA", spotA, 1).Succeeded())
	in, err = f.engine.IsCheckedIntoSpot(ctx, "userA", spotA)
	require.NoError(t, err)
	assert.True(t, in)

	in, err = f.engine.IsCheckedIntoSpot(ctx, "userA", spotB)
	require.NoError(t, err)
	assert.False(t, in)

	_, err = f.engine.IsCheckedIntoSpot(ctx, "ghost", spotA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCheckInsKeepEveryRosterEntry(t *testing.T) {
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	f := newFixture(t, users...)

	var wg sync.WaitGroup
	for _, id := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res := f.engine.CheckIn(context.Background(), id, spotA, 1)
			assert.True(t, res.Succeeded(), res.Message)
		}(id)
	}
	wg.Wait()

	spot := f.spot(t, spotA)
	assert.ElementsMatch(t, users, []string(spot.CheckedInUserIDs))
	assert.Equal(t, len(users), spot.ActiveUsers)
	assert.Equal(t, len(users), spot.TotalUsers)
	for _, id := range users {
		assert.Equal(t, spotA, *f.user(t, id).CheckInSpot)
	}
}

func TestRosterMatchesUserRecordsAfterMixedTraffic(t *testing.T) {
	const n, m = 12, 5
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("u%02d", i)
	}
	f := newFixture(t, users...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.True(t, f.engine.CheckIn(ctx, id, spotA, 1).Succeeded())
		}(id)
	}
	wg.Wait()

	for _, id := range users[:m] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.True(t, f.engine.CheckOut(ctx, id, spotA).Succeeded())
		}(id)
	}
	wg.Wait()

	spot := f.spot(t, spotA)
	assert.ElementsMatch(t, users[m:], []string(spot.CheckedInUserIDs))
	assert.Equal(t, n-m, spot.ActiveUsers)
	assert.Equal(t, n, spot.TotalUsers)

	all, err := f.store.Users.List(ctx)
	require.NoError(t, err)
	var pointing []string
	for _, u := range all {
		if u.IsCheckedInto(spotA) {
			pointing = append(pointing, u.UserID)
		}
	}
	assert.ElementsMatch(t, pointing, []string(spot.CheckedInUserIDs))
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(fmt.Errorf("get: %w", docstore.ErrNotFound)), ErrNotFound)
	assert.ErrorIs(t, classify(fmt.Errorf("remove: %w", store.ErrNotOccupying)), ErrInvariantViolation)
	assert.ErrorIs(t, classify(errors.New("boom")), ErrStoreUnavailable)
}
