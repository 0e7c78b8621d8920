// Package engine implements the session state machine that drives one
// SASL exchange frame by frame: selecting a mechanism, assembling
// chunked client data, stepping the mechanism forward, and turning its
// status into the reply frames the link should send.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ircservices/saslbroker/internal/finalizer"
	"github.com/ircservices/saslbroker/internal/frame"
	"github.com/ircservices/saslbroker/internal/mechanism"
	"github.com/ircservices/saslbroker/internal/session"
	"github.com/ircservices/saslbroker/pkg/sourceinfo"
)

// errUnsupportedMechanism is returned by resolve when the client names a
// mechanism the broker has neither a stateless nor a binder registration
// for.
var errUnsupportedMechanism = errors.New("engine: unsupported mechanism")

// Out is one outbound frame the engine wants written back to the link,
// in <uid> <mode> <args...> form.
type Out struct {
	UID  string
	Mode frame.Mode
	Args []string
}

// Directive is a server-link instruction distinct from the client-facing
// SASL reply frames: the early SVSLOGIN side effect, or a NOTICE, neither
// of which fits the <uid> <mode> <args> SASL frame table.
type Directive struct {
	UID     string
	Command string
	Args    []string
}

// Finalizer completes a successful exchange; internal/finalizer's
// Finalizer satisfies this, kept as an interface so tests can supply a
// stub without standing up a real policy checker and account store.
type Finalizer interface {
	Login(ctx context.Context, s *session.Session) (*finalizer.LoginResult, error)
	CompleteUserAdd(ctx context.Context, s *session.Session) (*finalizer.CompleteResult, error)
}

// Engine drives the session state machine described in spec.md §4.3.
type Engine struct {
	registry  *mechanism.Registry
	store     *session.Store
	finalizer Finalizer
	log       *slog.Logger

	// hideServerNames feeds newly created sessions' SourceInfo, per the
	// Policy.HideServerNames configuration knob.
	hideServerNames bool

	// thisServer identifies the broker's own server name for outgoing
	// SourceInfo attribution.
	thisServer string
}

// New creates an Engine wired to registry, store and finalizer.
func New(registry *mechanism.Registry, store *session.Store, finalizer Finalizer, thisServer string, hideServerNames bool, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		registry:        registry,
		store:           store,
		finalizer:       finalizer,
		log:             log,
		hideServerNames: hideServerNames,
		thisServer:      thisServer,
	}
}

// HandleHost processes an "H" frame: the introducing server reporting
// the client's connection host/ip before any mechanism is selected.
func (e *Engine) HandleHost(uid, host, ip string, now time.Time) {
	s, _ := e.store.FindOrCreate(uid, now)
	s.Host = host
	s.IP = ip
	s.Server = e.thisServer
	s.SourceInfo = sourceinfo.New(uid, host, ip, e.thisServer, e.hideServerNames)
}

// HandleCertFP records the TLS client certificate fingerprint presented
// on the session's underlying connection, if any, enabling EXTERNAL.
func (e *Engine) HandleCertFP(uid, certfp string, now time.Time) {
	s, _ := e.store.FindOrCreate(uid, now)
	s.CertFP = certfp
}

// HandleStart processes an "S" frame: mechanism selection with an
// optional base64 initial response ("+" or absent means none, "*"
// aborts before anything starts).
func (e *Engine) HandleStart(ctx context.Context, uid, mechName string, initialB64 string, now time.Time) ([]Out, []Directive) {
	s, _ := e.store.FindOrCreate(uid, now)

	if initialB64 == "*" {
		e.abort(s)
		return e.done(uid, "F"), nil
	}

	m, err := e.resolve(s, mechName)
	if err != nil {
		e.log.Debug("rejecting unknown SASL mechanism, re-advertising mechlist", "uid", uid, "mechanism", mechName)
		return e.mechlist(uid), nil
	}
	s.Mechanism = m

	var initial []byte
	if initialB64 != "" && initialB64 != "+" {
		decoded, err := frame.Decode(initialB64)
		if err != nil {
			return e.done(uid, "F"), nil
		}
		initial = decoded
	}

	state, challenge, status, identity := m.Start(ctx, initial)
	return e.dispatch(ctx, s, state, challenge, status, identity, now)
}

// HandleData processes a "C" frame: one chunk of the client's response
// to the mechanism's last challenge.
func (e *Engine) HandleData(ctx context.Context, uid, chunk string, now time.Time) ([]Out, []Directive) {
	s, ok := e.store.Find(uid)
	if !ok || s.Mechanism == nil {
		return e.done(uid, "F"), nil
	}
	e.store.Touch(s.UID, now)

	data, outcome, err := s.Assembler.Feed(chunk)
	switch outcome {
	case frame.OutcomeAbort:
		e.abort(s)
		return e.done(uid, "F"), nil
	case frame.OutcomeWait:
		if err != nil {
			e.abort(s)
			return e.done(uid, "F"), nil
		}
		return nil, nil
	case frame.OutcomePassthroughPlus:
		data = nil
	case frame.OutcomeReady:
		decoded, decErr := frame.Decode(string(data))
		if decErr != nil {
			e.abort(s)
			return e.done(uid, "F"), nil
		}
		data = decoded
	}

	next, challenge, status, identity := s.Mechanism.Step(ctx, s.MechState, data)
	return e.dispatch(ctx, s, next, challenge, status, identity, now)
}

// HandleAbort processes a "D" frame from the client: an explicit abort
// of the exchange in progress.
func (e *Engine) HandleAbort(uid string) {
	s, ok := e.store.Find(uid)
	if !ok {
		return
	}
	e.abort(s)
	e.store.Destroy(uid)
}

// HandleUserAdd processes the broker's wire carriage of the user_add
// hook: the IRC server has introduced uid to the network, so a session
// sitting in session.PhaseAwaitingUserAdd can have its login completed,
// mirroring the original's sasl_newuser. A uid with no such session
// pending (already completed, reaped, or never logged in) is a no-op.
func (e *Engine) HandleUserAdd(ctx context.Context, uid string) ([]Out, []Directive) {
	s, ok := e.store.Find(uid)
	if !ok || s.Phase != session.PhaseAwaitingUserAdd {
		return nil, nil
	}

	result, err := e.finalizer.CompleteUserAdd(ctx, s)
	if err != nil {
		e.log.Info("login completion failed", "uid", uid, "error", err)
		e.store.Destroy(uid)
		return nil, nil
	}

	if result.Dropped {
		e.log.Info("account dropped before user_add arrived, login cancelled", "uid", uid, "account", result.Account)
		e.store.Destroy(uid)
		return nil, []Directive{{
			UID:     uid,
			Command: "NOTICE",
			Args:    []string{fmt.Sprintf("Account %s dropped, login cancelled", result.Account)},
		}}
	}

	mechName := ""
	if s.Mechanism != nil {
		mechName = s.Mechanism.Name()
	}
	e.log.Info(fmt.Sprintf("LOGIN (%s)", mechName), "uid", uid, "account", result.Account)
	e.store.Destroy(uid)
	return nil, nil
}

// resolve selects the Mechanism for a session, special-casing binder
// mechanisms (such as EXTERNAL) whose implementation is bound to the
// session's out-of-band identity material rather than looked up
// statelessly.
func (e *Engine) resolve(s *session.Session, name string) (mechanism.Mechanism, error) {
	if b, ok := e.registry.FindBinder(name); ok {
		return b.Bind(s.CertFP), nil
	}
	if m, ok := e.registry.Find(name); ok {
		return m, nil
	}
	return nil, errUnsupportedMechanism
}

func (e *Engine) dispatch(ctx context.Context, s *session.Session, state any, challenge []byte, status mechanism.Status, identity *mechanism.Identity, now time.Time) ([]Out, []Directive) {
	s.MechState = state
	e.store.Touch(s.UID, now)

	switch status {
	case mechanism.More:
		encoded := frame.Encode(challenge)
		return e.challengeFrames(s.UID, encoded), nil

	case mechanism.Done:
		s.WipeBuf()
		s.AuthCID = identity.AuthcID
		s.AuthZID = identity.AuthzID
		if s.AuthZID == "" {
			s.AuthZID = s.AuthCID
		}

		result, err := e.finalizer.Login(ctx, s)
		if err != nil {
			e.log.Info("login finalization rejected", "uid", s.UID, "authcid", s.AuthCID, "error", err)
			e.store.Destroy(s.UID)
			return e.done(s.UID, "F"), nil
		}

		e.log.Info("SASL login accepted, awaiting user_add", "uid", s.UID, "authcid", s.AuthCID, "authzid", s.AuthZID, "account", result.Account)

		var directives []Directive
		if result.Directive != nil {
			directives = append(directives, Directive{
				UID:     result.Directive.UID,
				Command: result.Directive.Command,
				Args:    result.Directive.Args,
			})
		}
		return e.done(s.UID, "S"), directives

	case mechanism.Fail:
		s.WipeBuf()
		e.store.Destroy(s.UID)
		return e.done(s.UID, "F"), nil

	default: // mechanism.Error
		e.abort(s)
		e.store.Destroy(s.UID)
		return e.done(s.UID, "F"), nil
	}
}

// challengeFrames splits an encoded challenge into outbound "C" frames
// per the frame codec's chunking rule.
func (e *Engine) challengeFrames(uid, encoded string) []Out {
	pieces := frame.Split(encoded)
	out := make([]Out, len(pieces))
	for i, p := range pieces {
		out[i] = Out{UID: uid, Mode: frame.ModeData, Args: []string{p}}
	}
	return out
}

func (e *Engine) done(uid, result string) []Out {
	return []Out{{UID: uid, Mode: frame.ModeDone, Args: []string{result}}}
}

// mechlist replies with the current advertised mechanism list, leaving
// the session in place (no mechanism selected) for the client to retry
// the "S" frame with a name the broker actually supports.
func (e *Engine) mechlist(uid string) []Out {
	return []Out{{UID: uid, Mode: frame.ModeList, Args: []string{e.registry.Mechlist()}}}
}

func (e *Engine) abort(s *session.Session) {
	if s.Mechanism != nil {
		s.Mechanism.Finish(s.MechState)
	}
	s.WipeBuf()
	s.Assembler.Reset()
}
