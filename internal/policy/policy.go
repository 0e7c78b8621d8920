// Package policy implements the identity and authorization checks a login
// must pass before the finalizer will complete it: whether the
// authenticating identity is itself allowed to log in, whether the
// requested authorization identity is allowed to log in, and whether
// acting as one on behalf of the other constitutes an authorized
// impersonation.
package policy

import "context"

// PrivilegeKind names the category of a privilege a capability check may
// grant, replacing the original's "IMPERSONATE_CLASS:<class>" templated
// strings with a small closed type, per spec.md §9's design note.
type PrivilegeKind int

const (
	// PrivilegeNone grants nothing.
	PrivilegeNone PrivilegeKind = iota
	// PrivilegeImpersonateAny allows logging in as any account.
	PrivilegeImpersonateAny
	// PrivilegeImpersonateClass allows logging in as any account holding
	// the named class/flag, carried in Privilege.Param.
	PrivilegeImpersonateClass
	// PrivilegeImpersonateEntity allows logging in as one specific named
	// account, carried in Privilege.Param, replacing the original's
	// "IMPERSONATE_ENTITY:<name>" templated string.
	PrivilegeImpersonateEntity
)

// Privilege is one authorization grant held by an authenticated identity.
type Privilege struct {
	Kind  PrivilegeKind
	Param string
}

// AccountInfo is the subset of account state the policy checks need,
// satisfied by internal/accountstore's lookups.
type AccountInfo struct {
	// EID is the account's stable entity identity (its row ID), distinct
	// from Name: two different names can in principle resolve to the
	// same entity, which is what the duplication cache in
	// AuthcidCanLogin/AuthzidCanLogin guards against.
	EID string

	// Name is the account's canonical name, matched against
	// PrivilegeImpersonateEntity grants.
	Name string

	// Frozen is true if the account has an operator-imposed freeze
	// (private:freeze:freezer metadata in the original).
	Frozen bool

	// Class is the account's class/flag string, checked against
	// PrivilegeImpersonateClass grants.
	Class string

	// Privileges are the privileges held by the authenticating identity
	// (not the target of impersonation); only meaningful when looking up
	// the authcid's own account.
	Privileges []Privilege
}

// AccountLookup resolves account metadata by canonicalized account name.
type AccountLookup interface {
	Lookup(ctx context.Context, accountID string) (AccountInfo, bool, error)
}

// ImpersonationHook is consulted when no static privilege grants authcid
// the ability to log in as authzid, mirroring the original's
// sasl_may_impersonate hook fallback.
type ImpersonationHook interface {
	MayImpersonate(ctx context.Context, authcid, authzid string) (allowed bool, err error)
}

// LoginHook is consulted once per distinct entity resolved while checking
// login eligibility, mirroring the original's user_can_login hook.
type LoginHook interface {
	UserCanLogin(ctx context.Context, name string) (allowed bool, err error)
}

// Checker evaluates login eligibility and impersonation authorization.
type Checker struct {
	accounts          AccountLookup
	impersonationHook ImpersonationHook
	loginHook         LoginHook
}

// Option configures a Checker.
type Option func(*Checker)

// WithImpersonationHook attaches the sasl_may_impersonate fallback hook.
func WithImpersonationHook(h ImpersonationHook) Option {
	return func(c *Checker) { c.impersonationHook = h }
}

// WithLoginHook attaches the user_can_login hook.
func WithLoginHook(h LoginHook) Option {
	return func(c *Checker) { c.loginHook = h }
}

// New creates a Checker backed by the given account lookup.
func New(accounts AccountLookup, opts ...Option) *Checker {
	c := &Checker{accounts: accounts}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveEID returns the entity ID for name, letting a caller feed the
// duplication cache of a subsequent AuthcidCanLogin/AuthzidCanLogin call
// without looking the account up twice.
func (c *Checker) ResolveEID(ctx context.Context, name string) (string, bool, error) {
	info, ok, err := c.accounts.Lookup(ctx, name)
	if err != nil || !ok {
		return "", ok, err
	}
	return info.EID, true, nil
}

// AuthcidCanLogin reports whether the authenticating identity itself may
// log in at all (e.g. is not frozen). authcid is already the mechanism's
// resolved, canonicalized identity. otherEID is the entity ID already
// resolved for the session's other identity (authzid), if any; passing
// the empty string means none is cached yet.
func (c *Checker) AuthcidCanLogin(ctx context.Context, authcid, otherEID string) (bool, error) {
	info, ok, err := c.accounts.Lookup(ctx, authcid)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if info.Frozen {
		return false, nil
	}
	return c.checkLoginHook(ctx, authcid, info.EID, otherEID)
}

// AuthzidCanLogin reports whether the requested authorization identity
// may log in, independent of whether authcid is allowed to act as it.
// otherEID is the entity ID already resolved for authcid, used to skip a
// redundant user_can_login call when both identities are the same
// account (the duplication cache).
func (c *Checker) AuthzidCanLogin(ctx context.Context, authzid, otherEID string) (bool, error) {
	info, ok, err := c.accounts.Lookup(ctx, authzid)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if info.Frozen {
		return false, nil
	}
	return c.checkLoginHook(ctx, authzid, info.EID, otherEID)
}

// checkLoginHook fires the user_can_login hook for name unless otherEID
// already names the same entity -- the duplication cache, avoiding a
// second hook call when authcid and authzid resolve to one account.
func (c *Checker) checkLoginHook(ctx context.Context, name, eid, otherEID string) (bool, error) {
	if c.loginHook == nil {
		return true, nil
	}
	if eid != "" && eid == otherEID {
		return true, nil
	}
	return c.loginHook.UserCanLogin(ctx, name)
}

// MayImpersonate reports whether authcid is authorized to act as authzid,
// mirroring may_impersonate: identical identities always pass; otherwise
// authcid's account must hold a blanket, class-scoped, or entity-scoped
// impersonation privilege, falling back to the sasl_may_impersonate hook
// if none match.
func (c *Checker) MayImpersonate(ctx context.Context, authcid, authzid string) (bool, error) {
	if authcid == authzid {
		return true, nil
	}

	actor, ok, err := c.accounts.Lookup(ctx, authcid)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	target, ok, err := c.accounts.Lookup(ctx, authzid)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	for _, p := range actor.Privileges {
		switch p.Kind {
		case PrivilegeImpersonateAny:
			return true, nil
		case PrivilegeImpersonateClass:
			if p.Param != "" && p.Param == target.Class {
				return true, nil
			}
		case PrivilegeImpersonateEntity:
			if p.Param != "" && p.Param == target.Name {
				return true, nil
			}
		}
	}

	if c.impersonationHook != nil {
		return c.impersonationHook.MayImpersonate(ctx, authcid, authzid)
	}

	return false, nil
}
