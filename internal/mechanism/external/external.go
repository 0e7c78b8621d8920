// Package external implements the SASL EXTERNAL mechanism: the client is
// authenticated by an identity already established outside SASL (a TLS
// client certificate fingerprint), and the exchange only carries an
// optional authzid.
package external

import (
	"context"

	"github.com/ircservices/saslbroker/internal/mechanism"
)

// Name is this mechanism's SASL name.
const Name = "EXTERNAL"

// Resolver maps a certificate fingerprint, already bound to the
// connection before SASL began, to an authentication identity.
type Resolver interface {
	ResolveFingerprint(ctx context.Context, fingerprint string) (authcid string, ok bool, err error)
}

// Factory produces a per-session Mechanism bound to that session's
// certificate fingerprint. EXTERNAL has no wire representation for the
// certificate itself, so the fingerprint must be supplied out of band by
// whatever established the TLS connection, not carried as protocol state.
type Factory struct {
	resolver Resolver
}

// NewFactory returns an EXTERNAL mechanism factory backed by resolver.
func NewFactory(resolver Resolver) *Factory {
	return &Factory{resolver: resolver}
}

// Name satisfies mechanism.Binder.
func (f *Factory) Name() string { return Name }

// Bind returns a Mechanism for one session whose underlying connection
// presented the given certificate fingerprint. fingerprint must be
// non-empty; the engine should not offer EXTERNAL to a session whose
// connection never presented a client certificate.
func (f *Factory) Bind(fingerprint string) mechanism.Mechanism {
	return &Mechanism{resolver: f.resolver, fingerprint: fingerprint}
}

// Mechanism implements mechanism.Mechanism for EXTERNAL, scoped to a
// single session's bound certificate fingerprint.
type Mechanism struct {
	resolver    Resolver
	fingerprint string
}

func (m *Mechanism) Name() string { return Name }

// Start resolves the identity immediately: EXTERNAL is always a single
// round, whether or not the client sent an authzid as its initial
// response.
func (m *Mechanism) Start(ctx context.Context, initial []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	if m.fingerprint == "" {
		return nil, nil, mechanism.Error, nil
	}
	return m.resolve(ctx, initial)
}

// Step exists to satisfy mechanism.Mechanism; EXTERNAL never needs a
// second round, so reaching it indicates a protocol error.
func (m *Mechanism) Step(ctx context.Context, state any, response []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	return nil, nil, mechanism.Error, nil
}

func (m *Mechanism) resolve(ctx context.Context, authzid []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	authcid, ok, err := m.resolver.ResolveFingerprint(ctx, m.fingerprint)
	if err != nil || !ok {
		return nil, nil, mechanism.Fail, nil
	}
	return nil, nil, mechanism.Done, &mechanism.Identity{AuthcID: authcid, AuthzID: string(authzid)}
}

func (m *Mechanism) Finish(state any) {}
