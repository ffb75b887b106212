// Package sweeper ends expired check-ins on a timer and removes roster
// entries that no user record backs.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"slackspot-backend/config"
	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/notification"
	"slackspot-backend/internal/occupancy"
	"slackspot-backend/internal/store"
)

// State is the sweeper's in-process state.
type State string

const (
	StateIdle     State = "idle"
	StateSweeping State = "sweeping"
)

// Sweep results reported to the Recorder.
const (
	ResultCompleted = "completed"
	ResultThrottled = "throttled"
	ResultSkipped   = "skipped"
	ResultError     = "error"
)

// CheckOuter is the part of the occupancy engine the sweeper drives.
type CheckOuter interface {
	CheckOut(ctx context.Context, userID, spotKey string) occupancy.Result
}

// Notifier receives one notice per eviction.
type Notifier interface {
	Dispatch(ctx context.Context, notice notification.ExpiryNotice)
}

// Invalidator drops cached reads after the sweep changed occupancy.
type Invalidator interface {
	Flush()
}

// Recorder receives sweep outcomes, typically for metrics.
type Recorder interface {
	ObserveSweep(result string)
	ObserveSweepDuration(d time.Duration)
	Evicted()
	EvictionFailed()
	RosterRepaired()
}

type nopRecorder struct{}

func (nopRecorder) ObserveSweep(string)                {}
func (nopRecorder) ObserveSweepDuration(time.Duration) {}
func (nopRecorder) Evicted()                           {}
func (nopRecorder) EvictionFailed()                    {}
func (nopRecorder) RosterRepaired()                    {}

// Report summarizes one SweepOnce call.
type Report struct {
	// Ran is false when the tick was throttled or overlapped a running sweep.
	Ran           bool
	StartedAt     time.Time
	Duration      time.Duration
	Scanned       int
	Expired       int
	CheckedOut    int
	Failed        int
	RosterRepairs int
}

// Service runs the expiry sweep.
type Service struct {
	cfg      config.SweeperConfig
	users    store.UserRepository
	spots    store.SpotRepository
	state    store.SweepStateRepository
	engine   CheckOuter
	notifier Notifier
	cache    Invalidator
	recorder Recorder
	now      func() time.Time
	sweeping atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sends an expiry notice for every eviction.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithInvalidator flushes inv after every sweep that changed a user or roster.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.cache = inv }
}

// WithRecorder reports every tick to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a sweeper over the given store.
func NewService(cfg config.SweeperConfig, st *store.Store, engine CheckOuter, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		users:    st.Users,
		spots:    st.Spots,
		state:    st.SweepState,
		engine:   engine,
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports whether a sweep is in progress.
func (s *Service) State() State {
	if s.sweeping.Load() {
		return StateSweeping
	}
	return StateIdle
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Expiry sweeper is disabled. Not starting.")
		return
	}
	log.Printf("Starting expiry sweeper (tick %s, sweep interval %s)...", s.cfg.TickInterval, s.cfg.SweepInterval)

	s.tick(ctx)

	timer := time.NewTimer(s.cfg.TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry sweeper shutting down.")
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.cfg.TickInterval)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	report, err := s.SweepOnce(ctx, false)
	if err != nil {
		log.Printf("Expiry sweep failed: %v", err)
		return
	}
	if report.Ran {
		log.Printf("Expiry sweep finished in %s: scanned %d users, %d expired, %d checked out, %d failed, %d roster entries repaired",
			report.Duration, report.Scanned, report.Expired, report.CheckedOut, report.Failed, report.RosterRepairs)
	}
}

// SweepOnce runs one tick. Unless force is set, it does nothing when the
// persisted last sweep is more recent than the sweep interval. The new sweep
// time is persisted before the scan starts, so a second instance reading it
// skips its own scan.
func (s *Service) SweepOnce(ctx context.Context, force bool) (Report, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.recorder.ObserveSweep(ResultSkipped)
		return Report{}, nil
	}
	defer s.sweeping.Store(false)

	now := s.now().UTC()
	if !force {
		last, err := s.state.LastSweep(ctx)
		if err != nil {
			s.recorder.ObserveSweep(ResultError)
			return Report{}, err
		}
		if now.Before(last.Add(s.cfg.SweepInterval)) {
			s.recorder.ObserveSweep(ResultThrottled)
			return Report{}, nil
		}
	}

	if err := s.state.MarkSweep(ctx, now); err != nil {
		s.recorder.ObserveSweep(ResultError)
		return Report{}, err
	}

	report, err := s.sweep(ctx, now)
	report.Duration = s.now().Sub(now)
	if s.cache != nil && report.CheckedOut+report.RosterRepairs > 0 {
		s.cache.Flush()
	}
	if err != nil {
		s.recorder.ObserveSweep(ResultError)
		return report, err
	}
	s.recorder.ObserveSweep(ResultCompleted)
	s.recorder.ObserveSweepDuration(report.Duration)
	return report, nil
}

func (s *Service) sweep(ctx context.Context, now time.Time) (Report, error) {
	report := Report{Ran: true, StartedAt: now}

	users, err := s.users.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}

	// pointing maps each user to the spot its record points at after evictions.
	pointing := make(map[string]string, len(users))
	for _, u := range users {
		report.Scanned++
		if !u.IsCheckedIn() {
			continue
		}
		spotKey := *u.CheckInSpot
		pointing[u.UserID] = spotKey
		if !u.Expired(now) {
			continue
		}

		report.Expired++
		res := s.engine.CheckOut(ctx, u.UserID, spotKey)
		if !res.Succeeded() {
			report.Failed++
			s.recorder.EvictionFailed()
			log.Printf("Failed to check out expired user %s at %s: %v", u.UserID, spotKey, res.Err)
			continue
		}
		report.CheckedOut++
		s.recorder.Evicted()
		delete(pointing, u.UserID)
		if s.notifier != nil {
			s.notifier.Dispatch(ctx, notification.ExpiryNotice{UserID: u.UserID, SpotKey: spotKey})
		}
	}

	if !s.cfg.SkipRosterRepair {
		repaired, err := s.repairRosters(ctx, pointing)
		report.RosterRepairs = repaired
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

// repairRosters removes roster entries whose user does not point at the spot.
// Each candidate is re-read before removal so a check-in that completed after
// the scan keeps its entry.
func (s *Service) repairRosters(ctx context.Context, pointing map[string]string) (int, error) {
	spots, err := s.spots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list spots: %w", err)
	}

	repaired := 0
	for _, spot := range spots {
		for _, userID := range spot.CheckedInUserIDs {
			if pointing[userID] == spot.SpotKey {
				continue
			}
			if s.stillPointsAt(ctx, userID, spot.SpotKey) {
				continue
			}
			err := s.spots.RemoveOccupant(ctx, spot.SpotKey, userID)
			switch {
			case err == nil:
				repaired++
				s.recorder.RosterRepaired()
				log.Printf("Removed stale roster entry for user %s at %s", userID, spot.SpotKey)
			case errors.Is(err, store.ErrNotOccupying):
			default:
				log.Printf("Failed to remove stale roster entry for user %s at %s: %v", userID, spot.SpotKey, err)
			}
		}
	}
	return repaired, nil
}

func (s *Service) stillPointsAt(ctx context.Context, userID, spotKey string) bool {
	u, err := s.users.Get(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return false
	}
	if err != nil {
		// Unknown; leave the entry for the next sweep.
		log.Printf("Failed to re-read user %s during roster repair: %v", userID, err)
		return true
	}
	return u.IsCheckedInto(spotKey)
}
