package link

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/ircservices/saslbroker/internal/engine"
	"github.com/ircservices/saslbroker/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	hosts     []string
	certfps   []string
	starts    []string
	datas     []string
	aborts    []string
	userAdds  []string
	reply     []engine.Out
	directive []engine.Directive
}

func (f *fakeHandler) HandleHost(uid, host, ip string, now time.Time) {
	f.hosts = append(f.hosts, uid+" "+host+" "+ip)
}

func (f *fakeHandler) HandleCertFP(uid, certfp string, now time.Time) {
	f.certfps = append(f.certfps, uid+" "+certfp)
}

func (f *fakeHandler) HandleStart(ctx context.Context, uid, mechName, initialB64 string, now time.Time) ([]engine.Out, []engine.Directive) {
	f.starts = append(f.starts, uid+" "+mechName+" "+initialB64)
	return f.reply, f.directive
}

func (f *fakeHandler) HandleData(ctx context.Context, uid, chunk string, now time.Time) ([]engine.Out, []engine.Directive) {
	f.datas = append(f.datas, uid+" "+chunk)
	return f.reply, f.directive
}

func (f *fakeHandler) HandleAbort(uid string) {
	f.aborts = append(f.aborts, uid)
}

func (f *fakeHandler) HandleUserAdd(ctx context.Context, uid string) ([]engine.Out, []engine.Directive) {
	f.userAdds = append(f.userAdds, uid)
	return f.reply, f.directive
}

func TestParseFrameHost(t *testing.T) {
	uid, mode, parv, err := parseFrame("42AAAAAAA H client.example 203.0.113.5")
	require.NoError(t, err)
	assert.Equal(t, "42AAAAAAA", uid)
	assert.Equal(t, frame.ModeHost, mode)
	assert.Equal(t, []string{"client.example", "203.0.113.5"}, parv)
}

func TestParseFrameRejectsShortLine(t *testing.T) {
	_, _, _, err := parseFrame("42AAAAAAA")
	require.Error(t, err)
}

func TestEncodeFrame(t *testing.T) {
	out := engine.Out{UID: "42AAAAAAA", Mode: frame.ModeDone, Args: []string{"S"}}
	assert.Equal(t, "42AAAAAAA D S", encodeFrame(out))
}

func TestEncodeDirective(t *testing.T) {
	d := engine.Directive{UID: "42AAAAAAA", Command: "SVSLOGIN", Args: []string{"*", "*", "*", "alice"}}
	assert.Equal(t, "42AAAAAAA SVSLOGIN * * * alice", encodeDirective(d))
}

func newTestLink(h Handler) *Link {
	return New(Config{}, h, nil)
}

func TestDispatchHost(t *testing.T) {
	h := &fakeHandler{}
	l := newTestLink(h)

	out, directives := l.dispatch(context.Background(), "u1", frame.ModeHost, []string{"client.example", "203.0.113.5"})
	assert.Nil(t, out)
	assert.Nil(t, directives)
	require.Len(t, h.hosts, 1)
	assert.Equal(t, "u1 client.example 203.0.113.5", h.hosts[0])
}

func TestDispatchStartWithFingerprint(t *testing.T) {
	h := &fakeHandler{}
	l := newTestLink(h)

	l.dispatch(context.Background(), "u1", frame.ModeStart, []string{"EXTERNAL", "deadbeef", "+"})
	require.Len(t, h.certfps, 1)
	assert.Equal(t, "u1 deadbeef", h.certfps[0])
	require.Len(t, h.starts, 1)
	assert.Equal(t, "u1 EXTERNAL +", h.starts[0])
}

func TestDispatchStartWithoutFingerprint(t *testing.T) {
	h := &fakeHandler{}
	l := newTestLink(h)

	l.dispatch(context.Background(), "u1", frame.ModeStart, []string{"PLAIN"})
	assert.Empty(t, h.certfps)
	require.Len(t, h.starts, 1)
	assert.Equal(t, "u1 PLAIN ", h.starts[0])
}

func TestDispatchData(t *testing.T) {
	h := &fakeHandler{}
	l := newTestLink(h)

	l.dispatch(context.Background(), "u1", frame.ModeData, []string{"aGVsbG8="})
	require.Len(t, h.datas, 1)
	assert.Equal(t, "u1 aGVsbG8=", h.datas[0])
}

func TestDispatchDone(t *testing.T) {
	h := &fakeHandler{}
	l := newTestLink(h)

	l.dispatch(context.Background(), "u1", frame.ModeDone, nil)
	require.Len(t, h.aborts, 1)
	assert.Equal(t, "u1", h.aborts[0])
}

func TestDispatchUserAdd(t *testing.T) {
	h := &fakeHandler{}
	l := newTestLink(h)

	l.dispatch(context.Background(), "u1", frame.ModeUserAdd, nil)
	require.Len(t, h.userAdds, 1)
	assert.Equal(t, "u1", h.userAdds[0])
}

// TestServeRoundTrip drives a real TCP loopback connection through serve,
// verifying inbound frames reach the handler and the handler's reply
// frames and directives are written back onto the wire.
func TestServeRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	var serverConn net.Conn
	go func() {
		defer close(serverDone)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		serverConn = c
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer clientConn.Close()

	<-serverDone
	require.NotNil(t, serverConn)
	defer serverConn.Close()

	h := &fakeHandler{
		reply:     []engine.Out{{UID: "u1", Mode: frame.ModeDone, Args: []string{"S"}}},
		directive: []engine.Directive{{UID: "u1", Command: "SVSLOGIN", Args: []string{"*", "*", "*", "alice"}}},
	}
	l := newTestLink(h)

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- l.serve(context.Background(), serverConn)
	}()

	_, err = clientConn.Write([]byte("u1 S PLAIN\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	replyLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "u1 D S\n", replyLine)

	directiveLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "u1 SVSLOGIN * * * alice\n", directiveLine)

	require.Len(t, h.starts, 1)
	assert.Equal(t, "u1 PLAIN ", h.starts[0])

	clientConn.Close()
	select {
	case <-serveErrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after client closed the connection")
	}
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(1*time.Second, 60*time.Second))
	assert.Equal(t, 60*time.Second, nextBackoff(40*time.Second, 60*time.Second))
}

func TestSleepOrDoneReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepOrDone(ctx, time.Second))
}

func TestSleepOrDoneReturnsTrueOnElapse(t *testing.T) {
	assert.True(t, sleepOrDone(context.Background(), time.Millisecond))
}
