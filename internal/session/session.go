// Package session implements the in-memory session record and store that
// the engine, reaper and admin API all operate on.
package session

import (
	"sync"
	"time"

	"github.com/ircservices/saslbroker/internal/frame"
	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/pkg/sourceinfo"
)

// Flag is a bitmask of session-lifecycle markers.
type Flag uint8

const (
	// FlagNeedLog marks a session whose eventual completion (success or
	// reaper timeout) should emit a login audit log line; cleared once
	// the engine takes over logging for an arriving user_add.
	FlagNeedLog Flag = 1 << iota

	// FlagMarkedForDeletion is set by the reaper's first sweep tick; a
	// session still carrying it on the second tick is destroyed.
	FlagMarkedForDeletion
)

// Phase is the session's position in the login lifecycle, modeled as an
// explicit state per spec.md §9's redesign note rather than an implicit
// flag: `AwaitingUserAdd` is distinct from ordinary in-progress exchange,
// not just another bit alongside it.
type Phase int

const (
	// PhaseNew is the initial state: no mechanism selected yet.
	PhaseNew Phase = iota

	// PhaseInProgress is set once a mechanism has been selected and is
	// exchanging challenges/responses.
	PhaseInProgress

	// PhaseAwaitingUserAdd is entered when a mechanism reaches Done and
	// the Login Finalizer accepts the login: the session is no longer
	// driven by SASL frames, only by the user_add hook or the reaper.
	PhaseAwaitingUserAdd
)

// Session is one in-flight SASL exchange, keyed by the client's uid.
//
// Session is not safe for concurrent use by itself; all access must go
// through a Store, which serializes mutation per session.
type Session struct {
	UID    string
	Server string
	Host   string
	IP     string
	CertFP string

	// Mechanism is the mechanism this session selected via the "S" frame.
	Mechanism mechanism.Mechanism

	// MechState is the opaque state returned by Mechanism.Start/Step,
	// threaded back in on the next call.
	MechState any

	// Assembler reassembles the client's chunked "C" frame bodies into
	// complete base64 rounds before they reach the mechanism.
	Assembler frame.Assembler

	// AuthCID and AuthZID are the identities reported by the mechanism
	// once it reaches mechanism.Done. AuthCEID/AuthZEID hold the
	// canonicalized (normalized, case-folded) forms used for policy
	// checks and account lookups.
	AuthCID  string
	AuthCEID string
	AuthZID  string
	AuthZEID string

	Flags Flag

	// Phase tracks the session's position in the login lifecycle; see Phase.
	Phase Phase

	// PendingAccount is the account name the Login Finalizer handed off
	// to the directory while the session sits in PhaseAwaitingUserAdd,
	// set by Login and consumed by CompleteUserAdd or the reaper.
	PendingAccount string

	SourceInfo *sourceinfo.SourceInfo

	CreatedAt time.Time

	// lastSeen advances on every frame handled for this session and is
	// what the reaper's staleness check compares against, independent
	// of CreatedAt.
	lastSeen time.Time
}

// WipeBuf zeroes any credential-bearing mechanism state the session may
// still be holding, matching the original's WIPE_BUF discipline. Called
// whenever a session completes, fails, or is destroyed, and again right
// before the struct itself is dropped.
func (s *Session) WipeBuf() {
	if wiper, ok := s.MechState.(interface{ Wipe() }); ok {
		wiper.Wipe()
	}
	s.MechState = nil
}

// HasFlag reports whether f is set.
func (s *Session) HasFlag(f Flag) bool { return s.Flags&f != 0 }

// SetFlag sets f.
func (s *Session) SetFlag(f Flag) { s.Flags |= f }

// ClearFlag clears f.
func (s *Session) ClearFlag(f Flag) { s.Flags &^= f }

// touch advances the session's last-activity timestamp and clears any
// pending deletion mark, since activity means the session is still
// alive.
func (s *Session) touch(now time.Time) {
	s.lastSeen = now
	s.ClearFlag(FlagMarkedForDeletion)
}

// Store is the process-wide uid -> Session table.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// FindOrCreate returns the existing session for uid, or creates one if
// none exists yet, mirroring find_or_make_session's "create on first
// sight" semantics.
func (st *Store) FindOrCreate(uid string, now time.Time) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[uid]; ok {
		s.touch(now)
		return s, false
	}

	s := &Session{
		UID:       uid,
		CreatedAt: now,
		lastSeen:  now,
	}
	st.sessions[uid] = s
	return s, true
}

// Find looks up a session by uid without creating one.
func (st *Store) Find(uid string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[uid]
	return s, ok
}

// Destroy removes and wipes the session for uid, if present.
func (st *Store) Destroy(uid string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[uid]
	if !ok {
		return
	}
	s.WipeBuf()
	delete(st.sessions, uid)
}

// Touch refreshes uid's last-activity timestamp, clearing any pending
// reaper mark. No-op if the session does not exist.
func (st *Store) Touch(uid string, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[uid]; ok {
		s.touch(now)
	}
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Snapshot returns a shallow copy of all live sessions, for the reaper
// and the admin API to range over without holding the store lock.
func (st *Store) Snapshot() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Reaped describes one session the reaper destroyed as stale.
type Reaped struct {
	UID string

	// AwaitingUserAdd is true if the session was destroyed while sitting
	// in PhaseAwaitingUserAdd, i.e. the user_add hook never arrived --
	// the "session timed out" case from spec.md §4.5/§4.6, distinct from
	// an ordinary abandoned exchange.
	AwaitingUserAdd bool

	// NeedLog mirrors the session's FlagNeedLog at the moment of
	// destruction, so callers can decide whether a timeout audit line is
	// owed for it.
	NeedLog bool

	// Account is PendingAccount, carried along so a caller logging the
	// timeout can attribute it.
	Account string
}

// SweepStale marks still-unmarked stale sessions (idle longer than
// staleAfter) with FlagMarkedForDeletion, and destroys sessions that
// already carried the mark from a prior sweep -- the two-tick reaping
// scheme described in spec.md §4.6. It returns the sessions destroyed
// this sweep.
func (st *Store) SweepStale(now time.Time, staleAfter time.Duration) []Reaped {
	st.mu.Lock()
	defer st.mu.Unlock()

	var destroyed []Reaped
	for uid, s := range st.sessions {
		if s.HasFlag(FlagMarkedForDeletion) {
			destroyed = append(destroyed, Reaped{
				UID:             uid,
				AwaitingUserAdd: s.Phase == PhaseAwaitingUserAdd,
				NeedLog:         s.HasFlag(FlagNeedLog),
				Account:         s.PendingAccount,
			})
			s.WipeBuf()
			delete(st.sessions, uid)
			continue
		}
		if now.Sub(s.lastSeen) > staleAfter {
			s.SetFlag(FlagMarkedForDeletion)
		}
	}
	return destroyed
}
