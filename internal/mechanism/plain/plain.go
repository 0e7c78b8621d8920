// Package plain implements the SASL PLAIN mechanism (RFC 4616): a single
// round trip carrying authzid, authcid and password NUL-separated in one
// message.
package plain

import (
	"bytes"
	"context"
	"errors"

	"github.com/ircservices/saslbroker/internal/mechanism"
)

// Name is this mechanism's SASL name.
const Name = "PLAIN"

// Verifier checks an authcid/password pair against the account store.
// Implementations must not log the password.
type Verifier interface {
	Verify(ctx context.Context, authcid, password string) (ok bool, err error)
}

// Mechanism implements mechanism.Mechanism for PLAIN.
type Mechanism struct {
	verifier Verifier
}

// New returns a PLAIN mechanism backed by the given credential verifier.
func New(verifier Verifier) *Mechanism {
	return &Mechanism{verifier: verifier}
}

func (m *Mechanism) Name() string { return Name }

// ErrMalformed describes a message that does not split into three
// NUL-separated fields. The mechanism itself does not return it; it
// reports that case as an Error status.
var ErrMalformed = errors.New("plain: malformed initial response")

// Start processes the initial response in one step when the client sent
// one; with no initial response it returns More with an empty challenge
// and Step receives the message instead.
func (m *Mechanism) Start(ctx context.Context, initial []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	if initial == nil {
		// Request the client send its response as a separate step.
		return nil, nil, mechanism.More, nil
	}
	return m.finish(ctx, initial)
}

// Step handles the deferred-initial-response case: the client sent no
// initial response to Start and is now supplying it.
func (m *Mechanism) Step(ctx context.Context, state any, response []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	return m.finish(ctx, response)
}

func (m *Mechanism) finish(ctx context.Context, message []byte) (any, []byte, mechanism.Status, *mechanism.Identity) {
	parts := bytes.SplitN(message, []byte{0}, 3)
	if len(parts) != 3 {
		return nil, nil, mechanism.Error, nil
	}

	authzid := string(parts[0])
	authcid := string(parts[1])
	password := string(parts[2])

	ok, err := m.verifier.Verify(ctx, authcid, password)
	if err != nil || !ok {
		return nil, nil, mechanism.Fail, nil
	}

	identity := &mechanism.Identity{AuthcID: authcid, AuthzID: authzid}
	return nil, nil, mechanism.Done, identity
}

func (m *Mechanism) Finish(state any) {}
