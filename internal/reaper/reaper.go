// Package reaper runs the background sweep that destroys sessions which
// have gone stale: a session left idle for longer than the configured
// tick interval is marked on one sweep and destroyed on the next if it
// has still seen no activity, mirroring StateManager's lease-reaper
// pattern from the teacher's NFSv4 state manager.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ircservices/saslbroker/internal/session"
)

// Store is the subset of session.Store the reaper needs, kept as an
// interface so tests can supply a fake without pulling in the full
// session package's dependency graph.
type Store interface {
	SweepStale(now time.Time, staleAfter time.Duration) []session.Reaped
}

// Recorder receives a count of sessions destroyed in one sweep, letting
// callers (internal/metrics) track reaper activity without the reaper
// importing the metrics package.
type Recorder interface {
	RecordReaped(n int)
}

// Reaped is notified once per session the reaper destroys, letting
// collaborators holding resources keyed by uid (the Login Finalizer's
// pending-completion bookkeeping and reserved login slot) release them
// even when the reaper -- not the engine -- is what ends the session.
type Reaped interface {
	SessionReaped(uid string, awaitingUserAdd bool)
}

// Reaper periodically sweeps a Store for stale sessions.
type Reaper struct {
	store      Store
	log        *slog.Logger
	recorder   Recorder
	reaped     Reaped
	tick       time.Duration
	staleAfter time.Duration

	// logTimedOut gates the "session timed out" audit line for sessions
	// destroyed while awaiting user_add, per spec.md §9's open question:
	// the original only logs this when the IRC dialect does not identify
	// users by persistent UIDs before login bursts, to avoid a duplicate
	// line when burst-login already accounts for the gap.
	logTimedOut bool
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(rp *Reaper) { rp.recorder = r }
}

// WithLogger attaches a logger; the default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(rp *Reaper) { rp.log = log }
}

// WithReaped attaches a collaborator notified per destroyed session.
func WithReaped(r Reaped) Option {
	return func(rp *Reaper) { rp.reaped = r }
}

// WithTimeoutLogging enables the "session timed out" audit line for
// sessions destroyed while awaiting user_add. Callers should derive this
// from the negation of the IRC dialect's persistent-UID setting.
func WithTimeoutLogging(enabled bool) Option {
	return func(rp *Reaper) { rp.logTimedOut = enabled }
}

// New creates a Reaper that ticks every tick and considers a session
// stale once it has been idle for staleAfter (config.CreateReaper passes
// a single tick interval).
func New(store Store, tick, staleAfter time.Duration, opts ...Option) *Reaper {
	rp := &Reaper{
		store:      store,
		log:        slog.Default(),
		tick:       tick,
		staleAfter: staleAfter,
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// Run starts the ticker loop and blocks until ctx is cancelled.
// Callers typically invoke this in its own goroutine.
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rp.sweep(now)
		}
	}
}

func (rp *Reaper) sweep(now time.Time) {
	destroyed := rp.store.SweepStale(now, rp.staleAfter)
	if len(destroyed) == 0 {
		return
	}

	uids := make([]string, len(destroyed))
	for i, d := range destroyed {
		uids[i] = d.UID
		if d.AwaitingUserAdd && d.NeedLog && rp.logTimedOut {
			rp.log.Info("LOGIN (session timed out)", "uid", d.UID, "account", d.Account)
		}
		if rp.reaped != nil {
			rp.reaped.SessionReaped(d.UID, d.AwaitingUserAdd)
		}
	}

	rp.log.Info("reaper: destroyed stale sessions", "count", len(destroyed), "uids", uids)
	if rp.recorder != nil {
		rp.recorder.RecordReaped(len(destroyed))
	}
}
