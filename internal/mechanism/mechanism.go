// Package mechanism defines the pluggable SASL mechanism contract and the
// process-wide registry that session engines consult to start an exchange
// and to advertise the mechanism list to the network.
package mechanism

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Status is the outcome of a mechanism's Start or Step call.
type Status int

const (
	// More indicates the mechanism produced a challenge and expects
	// another client response.
	More Status = iota
	// Done indicates the mechanism authenticated the client.
	Done
	// Fail indicates the mechanism rejected the credentials; the
	// exchange may be retried with another mechanism.
	Fail
	// Error indicates a protocol-level problem (malformed input,
	// internal mechanism failure) that aborts the session.
	Error
)

func (s Status) String() string {
	switch s {
	case More:
		return "MORE"
	case Done:
		return "DONE"
	case Fail:
		return "FAIL"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Binder is implemented by mechanism factories whose identity source is
// out-of-band per session (EXTERNAL's certificate fingerprint) rather
// than carried over the wire. The engine binds such a factory to the
// session before calling Start.
type Binder interface {
	Bind(fingerprint string) Mechanism
}

// Identity is what a mechanism yields once it reaches Done: the
// authentication identity it verified and, optionally, the authorization
// identity the client requested to act as.
type Identity struct {
	AuthcID string
	AuthzID string
}

// Mechanism is one pluggable SASL mechanism (PLAIN, EXTERNAL, GSSAPI, ...).
// Implementations must be safe for concurrent use across sessions; any
// per-exchange state belongs in the opaque value returned by Start, not in
// the Mechanism itself.
type Mechanism interface {
	// Name is the mechanism's SASL name as advertised in the mechanism
	// list (e.g. "PLAIN", "EXTERNAL", "GSSAPI").
	Name() string

	// Start begins an exchange, optionally seeded with the client's
	// initial response (nil if none was sent). It returns mechanism
	// state to thread through subsequent Step calls, an optional
	// challenge to send back to the client, the resulting status, and
	// (only when status is Done) the resolved identity.
	Start(ctx context.Context, initial []byte) (state any, challenge []byte, status Status, identity *Identity)

	// Step continues an exchange in progress, given the mechanism state
	// from the prior call and the client's latest response.
	Step(ctx context.Context, state any, response []byte) (next any, challenge []byte, status Status, identity *Identity)

	// Finish releases any resources held by state. It is called when a
	// session completes, fails, or is destroyed mid-exchange.
	Finish(state any)
}

// Registry is an insertion-ordered, concurrency-safe set of registered
// mechanisms, mirroring the original module's linked list of mechanism
// descriptors plus its cached, rebuild-on-demand mechlist string.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	byName    map[string]Mechanism
	byBinder  map[string]Binder
	log       *slog.Logger
	mechlist  string
	dirty     bool
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		byName:   make(map[string]Mechanism),
		byBinder: make(map[string]Binder),
		log:      log,
		dirty:    true,
	}
}

// Register adds a stateless mechanism, replacing any prior registration
// under the same name. Registration order is the order Names reports;
// Mechlist sorts by name instead.
func (r *Registry) Register(m Mechanism) {
	r.insert(m.Name())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[m.Name()] = m
	delete(r.byBinder, m.Name())
	r.log.Debug("registering SASL mechanism", "mechanism", m.Name())
}

// RegisterBinder adds a mechanism whose identity source is per-session
// out-of-band state (EXTERNAL); see Binder.
func (r *Registry) RegisterBinder(name string, b Binder) {
	r.insert(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byBinder[name] = b
	delete(r.byName, name)
	r.log.Debug("registering SASL mechanism", "mechanism", name)
}

func (r *Registry) insert(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		r.dirty = true
		return
	}
	if _, exists := r.byBinder[name]; exists {
		r.dirty = true
		return
	}
	r.order = append(r.order, name)
	r.dirty = true
}

// Unregister removes a mechanism by name. Sessions already mid-exchange
// with it are unaffected; Find simply stops returning it for new Starts.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, hasMech := r.byName[name]
	_, hasBinder := r.byBinder[name]
	if !hasMech && !hasBinder {
		return
	}
	delete(r.byName, name)
	delete(r.byBinder, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.dirty = true
	r.log.Debug("destroying SASL mechanism registration", "mechanism", name)
}

// Find looks up a stateless mechanism by name. The bool is false if no
// such mechanism is registered (it may still be registered as a Binder),
// mirroring find_mechanism's NULL return.
func (r *Registry) Find(name string) (Mechanism, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byName[name]
	if !ok {
		r.log.Debug("cannot find mechanism", "mechanism", name)
	}
	return m, ok
}

// FindBinder looks up a per-session Binder by name.
func (r *Registry) FindBinder(name string) (Binder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byBinder[name]
	return b, ok
}

// maxMechlistB64 bounds the advertised mechanism list to one frame chunk
// worth of payload, matching the original's MAXPARA-derived truncation.
const maxMechlistB64 = 400

// Mechlist returns the comma-separated, sorted list of registered
// mechanism names, truncated (by silently skipping any entry that would
// not fit) so the result never exceeds maxMechlistB64 bytes.
func (r *Registry) Mechlist() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return r.mechlist
	}

	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		candidate := n
		if b.Len() > 0 {
			candidate = "," + candidate
		}
		if b.Len()+len(candidate) > maxMechlistB64 {
			r.log.Debug("mechanism list truncated to fit advertised frame", "omitted", n)
			continue
		}
		b.WriteString(candidate)
	}

	r.mechlist = b.String()
	r.dirty = false
	return r.mechlist
}

// Names returns the registered mechanism names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
