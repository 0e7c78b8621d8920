// Package link implements the S2S frame transport: a reconnecting TCP
// client that reads raw "<uid> <mode> <arg0> [<arg1> ...]" lines off the
// upstream IRC server-link, dispatches them into the session engine, and
// writes the engine's outbound frames back onto the same connection.
//
// One connection carries frames for every in-flight session; the engine
// itself enforces per-uid ordering (spec.md §5), so the read loop here
// does not need to serialize by uid.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ircservices/saslbroker/internal/engine"
	"github.com/ircservices/saslbroker/internal/frame"
)

// Handler is the subset of engine.Engine's methods the link dispatches
// inbound frames to, kept as an interface so tests can supply a fake
// without constructing a full Engine.
type Handler interface {
	HandleHost(uid, host, ip string, now time.Time)
	HandleCertFP(uid, certfp string, now time.Time)
	HandleStart(ctx context.Context, uid, mechName, initialB64 string, now time.Time) ([]engine.Out, []engine.Directive)
	HandleData(ctx context.Context, uid, chunk string, now time.Time) ([]engine.Out, []engine.Directive)
	HandleAbort(uid string)
	HandleUserAdd(ctx context.Context, uid string) ([]engine.Out, []engine.Directive)
}

// Config configures connection and reconnect behavior.
type Config struct {
	// Network and Address identify the upstream IRC server to dial, e.g. "tcp", "services.example:7000".
	Network string
	Address string

	// ReconnectMinBackoff is the delay before the first reconnect attempt.
	ReconnectMinBackoff time.Duration

	// ReconnectMaxBackoff caps the exponential reconnect backoff.
	ReconnectMaxBackoff time.Duration
}

// Link owns the upstream connection and the goroutines reading and
// writing it, reconnecting with exponential backoff on any I/O error.
type Link struct {
	cfg     Config
	handler Handler
	log     *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// New creates a Link wired to handler. Run must be called to actually
// dial and start processing frames.
func New(cfg Config, handler Handler, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}
	return &Link{cfg: cfg, handler: handler, log: log}
}

// Run dials the upstream server and processes frames until ctx is
// cancelled, reconnecting with exponential backoff whenever the
// connection is lost. It returns only when ctx is done.
func (l *Link) Run(ctx context.Context) error {
	backoff := l.cfg.ReconnectMinBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := l.cfg.ReconnectMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 60 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := l.dial(ctx)
		if err != nil {
			l.log.Warn("link: dial failed, backing off", "address", l.cfg.Address, "backoff", backoff, "error", err)
			if !sleepOrDone(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		l.log.Info("link: connected", "address", l.cfg.Address)
		backoff = l.cfg.ReconnectMinBackoff
		if backoff <= 0 {
			backoff = time.Second
		}

		err = l.serve(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.log.Warn("link: connection lost, reconnecting", "error", err)
		}
	}
}

func (l *Link) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, l.cfg.Network, l.cfg.Address)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return conn, nil
}

// serve runs the read loop for one connection lifetime, dispatching
// each inbound frame and writing any outbound frames it produces.
func (l *Link) serve(ctx context.Context, conn net.Conn) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), frame.MaxTotalB64*2)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		uid, mode, parv, err := parseFrame(line)
		if err != nil {
			l.log.Debug("link: dropping malformed frame", "line", line, "error", err)
			continue
		}

		out, directives := l.dispatch(ctx, uid, mode, parv)
		if err := l.writeAll(conn, out, directives); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("link: connection closed by peer")
}

// dispatch routes one parsed inbound frame to the handler, per the mode
// table in spec.md §4.2/§6.
func (l *Link) dispatch(ctx context.Context, uid string, mode frame.Mode, parv []string) ([]engine.Out, []engine.Directive) {
	now := time.Now()

	switch mode {
	case frame.ModeHost:
		host, ip := "", ""
		if len(parv) > 0 {
			host = parv[0]
		}
		if len(parv) > 1 {
			ip = parv[1]
		}
		l.handler.HandleHost(uid, host, ip, now)
		return nil, nil

	case frame.ModeStart:
		if len(parv) == 0 {
			return nil, nil
		}
		mechName := parv[0]
		if len(parv) > 1 {
			l.handler.HandleCertFP(uid, parv[1], now)
		}
		initial := ""
		if len(parv) > 2 {
			initial = parv[2]
		}
		return l.handler.HandleStart(ctx, uid, mechName, initial, now)

	case frame.ModeData:
		chunk := ""
		if len(parv) > 0 {
			chunk = parv[0]
		}
		return l.handler.HandleData(ctx, uid, chunk, now)

	case frame.ModeDone:
		l.handler.HandleAbort(uid)
		return nil, nil

	case frame.ModeUserAdd:
		return l.handler.HandleUserAdd(ctx, uid)

	default:
		return nil, nil
	}
}

// writeAll serializes out's SASL reply frames followed by any server
// directives onto conn contiguously, per the engine's ordering guarantee
// that one mechanism reply's frames are not interleaved with frames from
// another session (spec.md §5).
func (l *Link) writeAll(conn net.Conn, out []engine.Out, directives []engine.Directive) error {
	for _, o := range out {
		line := encodeFrame(o)
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			return err
		}
	}
	for _, d := range directives {
		line := encodeDirective(d)
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

// parseFrame splits one wire line into (uid, mode, parv).
func parseFrame(line string) (string, frame.Mode, []string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", 0, nil, fmt.Errorf("link: expected at least uid and mode, got %q", line)
	}
	return fields[0], frame.Mode(fields[1][0]), fields[2:], nil
}

// encodeFrame renders an outbound frame back to wire form.
func encodeFrame(o engine.Out) string {
	parts := make([]string, 0, len(o.Args)+2)
	parts = append(parts, o.UID, string(o.Mode))
	parts = append(parts, o.Args...)
	return strings.Join(parts, " ")
}

// encodeDirective renders a server-link instruction back to wire form,
// reusing the same "<uid> <command> <args...>" shape as encodeFrame.
func encodeDirective(d engine.Directive) string {
	parts := make([]string, 0, len(d.Args)+2)
	parts = append(parts, d.UID, d.Command)
	parts = append(parts, d.Args...)
	return strings.Join(parts, " ")
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
