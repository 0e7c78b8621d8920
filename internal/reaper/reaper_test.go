package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/ircservices/saslbroker/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls   int
	destroy []session.Reaped
}

func (f *fakeStore) SweepStale(now time.Time, staleAfter time.Duration) []session.Reaped {
	f.calls++
	return f.destroy
}

type fakeRecorder struct {
	total int
}

func (f *fakeRecorder) RecordReaped(n int) { f.total += n }

type fakeReaped struct {
	uids []string
}

func (f *fakeReaped) SessionReaped(uid string, awaitingUserAdd bool) {
	f.uids = append(f.uids, uid)
}

func TestRunSweepsOnEveryTickUntilCancelled(t *testing.T) {
	store := &fakeStore{}
	rp := New(store, 10*time.Millisecond, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rp.Run(ctx)
		close(done)
	}()

	time.Sleep(55 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.GreaterOrEqual(t, store.calls, 3)
}

func TestSweepRecordsDestroyedCount(t *testing.T) {
	store := &fakeStore{destroy: []session.Reaped{{UID: "uid1"}, {UID: "uid2"}}}
	rec := &fakeRecorder{}
	rp := New(store, time.Second, 2*time.Second, WithRecorder(rec))

	rp.sweep(time.Now())

	assert.Equal(t, 2, rec.total)
}

func TestSweepNotifiesReapedCollaborator(t *testing.T) {
	store := &fakeStore{destroy: []session.Reaped{{UID: "uid1", AwaitingUserAdd: true}}}
	reaped := &fakeReaped{}
	rp := New(store, time.Second, 2*time.Second, WithReaped(reaped))

	rp.sweep(time.Now())

	assert.Equal(t, []string{"uid1"}, reaped.uids)
}

func TestSweepWithNothingDestroyedSkipsRecorder(t *testing.T) {
	store := &fakeStore{}
	rec := &fakeRecorder{}
	rp := New(store, time.Second, 2*time.Second, WithRecorder(rec))

	rp.sweep(time.Now())

	assert.Equal(t, 0, rec.total)
}

func TestSweepToleratesNilRecorder(t *testing.T) {
	store := &fakeStore{destroy: []session.Reaped{{UID: "uid1"}}}
	rp := New(store, time.Second, 2*time.Second)

	require.NotPanics(t, func() { rp.sweep(time.Now()) })
}

func TestSweepLogsTimeoutOnlyWhenEnabled(t *testing.T) {
	store := &fakeStore{destroy: []session.Reaped{{UID: "uid1", AwaitingUserAdd: true, NeedLog: true}}}
	rp := New(store, time.Second, 2*time.Second, WithTimeoutLogging(true))

	require.NotPanics(t, func() { rp.sweep(time.Now()) })
}
