// Package finalizer implements login completion once a mechanism
// reaches Done: evaluating eligibility (freeze, impersonation, maxlogins),
// emitting the early login directive, and tracking the two-phase
// completion that awaits the directory service's user_add acknowledgement
// before the login is considered durable.
package finalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ircservices/saslbroker/internal/policy"
	"github.com/ircservices/saslbroker/internal/session"
)

// Errors returned by Login and CompleteUserAdd, distinguishing why an
// otherwise-authenticated exchange was refused or could not be completed.
var (
	ErrAuthcidFrozen       = errors.New("finalizer: authenticating identity may not log in")
	ErrAuthzidFrozen       = errors.New("finalizer: authorization identity may not log in")
	ErrImpersonationDenied = errors.New("finalizer: not authorized to act as requested identity")
	ErrMaxLoginsExceeded   = errors.New("finalizer: account has reached its concurrent login limit")
	ErrPendingCompletion   = errors.New("finalizer: login already pending completion")
	ErrNoPendingLogin      = errors.New("finalizer: no login pending completion for session")
)

// LoginLimiter tracks concurrent logins per account so the finalizer can
// enforce MaxLogins.
type LoginLimiter interface {
	// Reserve attempts to claim one login slot for accountID, returning
	// false if the account is already at its limit.
	Reserve(ctx context.Context, accountID string) (bool, error)
	// Release gives back a slot previously reserved, called if
	// completion never arrives or the session ends.
	Release(ctx context.Context, accountID string)
}

// Directory resolves account metadata needed to pick a login cloak and to
// carry out the directory's own user_add-equivalent side effects.
type Directory interface {
	// Cloak returns the account's configured cloak
	// (private:usercloak metadata), or "*" if none is set.
	Cloak(ctx context.Context, accountID string) (string, error)

	// AwaitsExternalAuth reports whether accountID is still waiting on an
	// external authentication step (the original's MU_WAITAUTH flag),
	// in which case Login returns no early SVSLOGIN directive;
	// CompleteUserAdd does not emit one either.
	AwaitsExternalAuth(ctx context.Context, accountID string) (bool, error)

	// AccountExists re-resolves accountID, used by CompleteUserAdd to
	// detect an account dropped between Login and the arrival of
	// user_add.
	AccountExists(ctx context.Context, accountID string) (bool, error)

	// CompleteLogin performs the directory-side login side effect
	// (binding the uid to the account, equivalent to the original's
	// myuser_login). Called once user_add arrives for the session.
	CompleteLogin(ctx context.Context, uid, accountID string) error
}

// Directive is a server-link instruction the finalizer wants emitted,
// distinct from the client-facing "D S"/"D F" SASL reply frames.
type Directive struct {
	UID     string
	Command string
	Args    []string
}

// LoginResult is what Login decided once eligibility passed.
type LoginResult struct {
	// Account is the identity the client is now logging in as (AuthZID if
	// set, else AuthCID).
	Account string

	// Directive carries the early SVSLOGIN side effect the link should
	// emit immediately, or nil if Account is still awaiting external
	// authentication, in which case no SVSLOGIN is emitted for this login.
	Directive *Directive
}

// CompleteResult is what CompleteUserAdd decided once the user_add hook
// arrived for a session sitting in session.PhaseAwaitingUserAdd.
type CompleteResult struct {
	// Account is the account the session was logging in as.
	Account string

	// Dropped is true if the account no longer existed by the time
	// user_add arrived; the login is cancelled rather than completed.
	Dropped bool
}

// Finalizer implements engine.Finalizer.
type Finalizer struct {
	checker *policy.Checker
	limiter LoginLimiter
	dir     Directory
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]string // uid -> account, awaiting CompleteUserAdd
}

// New creates a Finalizer.
func New(checker *policy.Checker, limiter LoginLimiter, dir Directory, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{
		checker: checker,
		limiter: limiter,
		dir:     dir,
		log:     log,
		pending: make(map[string]string),
	}
}

// MapLimiter is an in-memory LoginLimiter bounding concurrent logins per
// account to maxLogins. Login counts are runtime-only state, consistent
// with the broker's non-goal of persisting session state across
// restarts: a restart simply resets everyone's count to zero.
type MapLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	maxLogins int
}

// NewMapLimiter creates a MapLimiter allowing up to maxLogins concurrent
// logins per account. maxLogins <= 0 means unlimited.
func NewMapLimiter(maxLogins int) *MapLimiter {
	return &MapLimiter{counts: make(map[string]int), maxLogins: maxLogins}
}

func (l *MapLimiter) Reserve(ctx context.Context, accountID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxLogins > 0 && l.counts[accountID] >= l.maxLogins {
		return false, nil
	}
	l.counts[accountID]++
	return true, nil
}

func (l *MapLimiter) Release(ctx context.Context, accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[accountID] > 0 {
		l.counts[accountID]--
	}
	if l.counts[accountID] == 0 {
		delete(l.counts, accountID)
	}
}

// Login evaluates eligibility for s (now authenticated as s.AuthCID,
// requesting to act as s.AuthZID) and, if eligible, reserves a login slot
// and moves s into session.PhaseAwaitingUserAdd. It mirrors the
// original's evaluation order: freeze checks first, then impersonation
// authorization, then the concurrent login cap.
//
// Login does not itself complete the login with the directory: it only
// decides the early SVSLOGIN directive (withheld if the account still
// awaits external authentication). The login is only durable once
// CompleteUserAdd runs, triggered by the user_add hook arriving for the
// uid.
func (f *Finalizer) Login(ctx context.Context, s *session.Session) (*LoginResult, error) {
	f.mu.Lock()
	if _, already := f.pending[s.UID]; already {
		f.mu.Unlock()
		return nil, ErrPendingCompletion
	}
	f.mu.Unlock()

	canAuthc, err := f.checker.AuthcidCanLogin(ctx, s.AuthCID, "")
	if err != nil {
		return nil, fmt.Errorf("finalizer: checking authcid eligibility: %w", err)
	}
	if !canAuthc {
		return nil, ErrAuthcidFrozen
	}

	if s.AuthZID != "" && s.AuthZID != s.AuthCID {
		authcidEID, _, err := f.checker.ResolveEID(ctx, s.AuthCID)
		if err != nil {
			return nil, fmt.Errorf("finalizer: resolving authcid entity: %w", err)
		}

		canAuthz, err := f.checker.AuthzidCanLogin(ctx, s.AuthZID, authcidEID)
		if err != nil {
			return nil, fmt.Errorf("finalizer: checking authzid eligibility: %w", err)
		}
		if !canAuthz {
			return nil, ErrAuthzidFrozen
		}

		mayImpersonate, err := f.checker.MayImpersonate(ctx, s.AuthCID, s.AuthZID)
		if err != nil {
			return nil, fmt.Errorf("finalizer: checking impersonation: %w", err)
		}
		if !mayImpersonate {
			return nil, ErrImpersonationDenied
		}
	}

	loginAs := s.AuthZID
	if loginAs == "" {
		loginAs = s.AuthCID
	}

	ok, err := f.limiter.Reserve(ctx, loginAs)
	if err != nil {
		return nil, fmt.Errorf("finalizer: reserving login slot: %w", err)
	}
	if !ok {
		return nil, ErrMaxLoginsExceeded
	}

	cloak, err := f.dir.Cloak(ctx, loginAs)
	if err != nil {
		f.limiter.Release(ctx, loginAs)
		return nil, fmt.Errorf("finalizer: resolving cloak: %w", err)
	}

	waitAuth, err := f.dir.AwaitsExternalAuth(ctx, loginAs)
	if err != nil {
		f.limiter.Release(ctx, loginAs)
		return nil, fmt.Errorf("finalizer: checking external-auth state: %w", err)
	}

	f.mu.Lock()
	f.pending[s.UID] = loginAs
	f.mu.Unlock()

	s.Phase = session.PhaseAwaitingUserAdd
	s.PendingAccount = loginAs
	s.SetFlag(session.FlagNeedLog)

	result := &LoginResult{Account: loginAs}
	if !waitAuth {
		result.Directive = &Directive{
			UID:     s.UID,
			Command: "SVSLOGIN",
			Args:    []string{"*", "*", cloak, loginAs},
		}
	}

	f.log.Debug("login accepted, awaiting user_add", "uid", s.UID, "account", loginAs, "wait_auth", waitAuth)
	return result, nil
}

// CompleteUserAdd finishes the login for a session sitting in
// session.PhaseAwaitingUserAdd once the user_add hook reports the uid has
// been introduced to the network, mirroring the original's sasl_newuser:
// clear the pending-log marker, re-resolve the account, and either report
// it dropped or hand the login off to the directory for real.
func (f *Finalizer) CompleteUserAdd(ctx context.Context, s *session.Session) (*CompleteResult, error) {
	f.mu.Lock()
	account, ok := f.pending[s.UID]
	if ok {
		delete(f.pending, s.UID)
	}
	f.mu.Unlock()

	if !ok {
		return nil, ErrNoPendingLogin
	}
	s.ClearFlag(session.FlagNeedLog)

	exists, err := f.dir.AccountExists(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("finalizer: re-resolving account: %w", err)
	}
	if !exists {
		f.limiter.Release(ctx, account)
		return &CompleteResult{Account: account, Dropped: true}, nil
	}

	if err := f.dir.CompleteLogin(ctx, s.UID, account); err != nil {
		f.limiter.Release(ctx, account)
		return nil, fmt.Errorf("finalizer: directory rejected login: %w", err)
	}

	f.log.Info("login completed via user_add", "uid", s.UID, "account", account)
	return &CompleteResult{Account: account}, nil
}

// SessionReaped implements reaper.Reaped: if the reaper destroys a
// session while it was still awaiting user_add, its reserved login slot
// and pending-completion bookkeeping must be released, since no
// CompleteUserAdd call is coming for it.
func (f *Finalizer) SessionReaped(uid string, awaitingUserAdd bool) {
	if !awaitingUserAdd {
		return
	}

	f.mu.Lock()
	account, ok := f.pending[uid]
	delete(f.pending, uid)
	f.mu.Unlock()

	if ok {
		f.limiter.Release(context.Background(), account)
	}
}
