package editlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) SetMillis(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}

func readRecord(t *testing.T, s Storage, docID string) (Record, bool) {
	t.Helper()
	raw, ok, err := s.Get(context.Background(), LockKey(docID))
	require.NoError(t, err)
	if !ok {
		return Record{}, false
	}
	rec, err := decodeRecord(raw)
	require.NoError(t, err)
	return rec, true
}

func TestClaimTimeline(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	clock := &fakeClock{}
	newCoord := func(owner string) *Coordinator {
		return NewCoordinator(Config{DocID: "X", Owner: owner, TTL: time.Second, Storage: storage, Clock: clock, Logger: zerolog.Nop()})
	}
	a, b := newCoord("A"), newCoord("B")

	clock.SetMillis(0)
	st := a.Claim(ctx)
	assert.Equal(t, OwnedLocal, st.State)
	rec, ok := readRecord(t, storage, "X")
	require.True(t, ok)
	assert.Equal(t, Record{Owner: "A", Expires: 1000}, rec)

	clock.SetMillis(500)
	st = b.Claim(ctx)
	assert.Equal(t, OwnedOther, st.State)
	assert.Equal(t, "A", st.Owner)
	assert.True(t, st.LockedByOther())
	rec, _ = readRecord(t, storage, "X")
	assert.Equal(t, "A", rec.Owner, "a losing claim must not write")

	clock.SetMillis(1500)
	st = b.Claim(ctx)
	assert.Equal(t, OwnedLocal, st.State)
	rec, _ = readRecord(t, storage, "X")
	assert.Equal(t, Record{Owner: "B", Expires: 2500}, rec)

	st = a.Check(ctx)
	assert.Equal(t, OwnedOther, st.State)
	assert.Equal(t, "B", st.Owner)
}

func TestCheckIsReadOnly(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	clock := &fakeClock{}
	a := NewCoordinator(Config{DocID: "X", Owner: "A", TTL: time.Second, Storage: storage, Clock: clock, Logger: zerolog.Nop()})

	assert.Equal(t, Unclaimed, a.Check(ctx).State)
	_, ok := readRecord(t, storage, "X")
	assert.False(t, ok)

	a.Claim(ctx)
	assert.Equal(t, OwnedLocal, a.Check(ctx).State)

	clock.SetMillis(1000)
	assert.Equal(t, Unclaimed, a.Check(ctx).State, "an expired lease is unclaimed")
	rec, _ := readRecord(t, storage, "X")
	assert.Equal(t, "A", rec.Owner, "expiry alone does not remove the record")
}

func TestSelfContinuityAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	shared := NewMemoryStorage()
	clock := &fakeClock{}

	// first process
	owner, err := Identity(ctx, NewFileStorage(dir+"/local.json"), "tab-1")
	require.NoError(t, err)
	first := NewCoordinator(Config{DocID: "doc", Owner: owner, TTL: time.Minute, Storage: shared, Clock: clock, Logger: zerolog.Nop()})
	require.Equal(t, OwnedLocal, first.Claim(ctx).State)

	// same context after a reload, nothing released
	clock.SetMillis(10_000)
	reloaded, err := Identity(ctx, NewFileStorage(dir+"/local.json"), "tab-1")
	require.NoError(t, err)
	assert.Equal(t, owner, reloaded)
	second := NewCoordinator(Config{DocID: "doc", Owner: reloaded, TTL: time.Minute, Storage: shared, Clock: clock, Logger: zerolog.Nop()})
	assert.Equal(t, OwnedLocal, second.Claim(ctx).State)

	// a different context is locked out
	other, err := Identity(ctx, NewFileStorage(dir+"/local.json"), "tab-2")
	require.NoError(t, err)
	assert.NotEqual(t, owner, other)
	third := NewCoordinator(Config{DocID: "doc", Owner: other, TTL: time.Minute, Storage: shared, Clock: clock, Logger: zerolog.Nop()})
	st := third.Claim(ctx)
	assert.Equal(t, OwnedOther, st.State)
	assert.Equal(t, owner, st.Owner)
}

func TestReleaseOnlyRemovesOwnRecord(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	clock := &fakeClock{}
	a := NewCoordinator(Config{DocID: "X", Owner: "A", TTL: time.Second, Storage: storage, Clock: clock, Logger: zerolog.Nop()})
	b := NewCoordinator(Config{DocID: "X", Owner: "B", TTL: time.Second, Storage: storage, Clock: clock, Logger: zerolog.Nop()})

	a.Claim(ctx)
	b.Claim(ctx)
	b.Release(ctx)
	rec, ok := readRecord(t, storage, "X")
	require.True(t, ok, "a context that never owned the lease must not delete it")
	assert.Equal(t, "A", rec.Owner)

	a.Release(ctx)
	_, ok = readRecord(t, storage, "X")
	assert.False(t, ok)
	assert.Equal(t, Unclaimed, a.Status().State)

	a.Release(ctx)
	assert.ErrorIs(t, a.Start(ctx), ErrAlreadyStarted, "a released coordinator cannot restart")
}

func TestMalformedRecordIsOverwritten(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, LockKey("X"), "{not json"))

	a := NewCoordinator(Config{DocID: "X", Owner: "A", TTL: time.Second, Storage: storage, Clock: &fakeClock{}, Logger: zerolog.Nop()})
	assert.Equal(t, OwnedLocal, a.Claim(ctx).State)
	rec, _ := readRecord(t, storage, "X")
	assert.Equal(t, "A", rec.Owner)
}

type brokenStorage struct{}

func (brokenStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage offline")
}
func (brokenStorage) Set(context.Context, string, string) error { return errors.New("storage offline") }
func (brokenStorage) Remove(context.Context, string) error      { return errors.New("storage offline") }

func TestStorageFailureDegradesToLocalOwnership(t *testing.T) {
	ctx := context.Background()
	a := NewCoordinator(Config{DocID: "X", Owner: "A", Storage: brokenStorage{}, Logger: zerolog.Nop()})

	st := a.Claim(ctx)
	assert.Equal(t, OwnedLocal, st.State)
	assert.True(t, st.Degraded)
	assert.True(t, a.Check(ctx).Degraded)

	require.NoError(t, a.Start(ctx))
	assert.NotPanics(t, func() { a.Release(ctx) })
}

func TestHeartbeatDefaults(t *testing.T) {
	c := NewCoordinator(Config{DocID: "X", Owner: "A", Storage: NewMemoryStorage()})
	assert.Equal(t, DefaultTTL, c.TTL())
	assert.Equal(t, time.Minute, c.Heartbeat())

	c = NewCoordinator(Config{DocID: "X", Owner: "A", TTL: time.Second, Heartbeat: 2 * time.Second, Storage: NewMemoryStorage()})
	assert.Equal(t, 500*time.Millisecond, c.Heartbeat(), "heartbeat must stay below the ttl")

	c = NewCoordinator(Config{DocID: "X", Owner: "A", TTL: time.Second, Heartbeat: 100 * time.Millisecond, Storage: NewMemoryStorage()})
	assert.Equal(t, 100*time.Millisecond, c.Heartbeat())
}

func TestOnChangeReportsTransitions(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	clock := &fakeClock{}
	a := NewCoordinator(Config{DocID: "X", Owner: "A", TTL: time.Second, Storage: storage, Clock: clock, Logger: zerolog.Nop()})

	var states []State
	stop := a.OnChange(func(s Status) { states = append(states, s.State) })

	a.Claim(ctx)
	a.Check(ctx) // same status, no callback
	clock.SetMillis(2000)
	a.Check(ctx)
	stop()
	a.Claim(ctx)

	assert.Equal(t, []State{OwnedLocal, Unclaimed}, states)
}

func TestStartedCoordinatorsHandOverOnRelease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storage := NewMemoryStorage()
	bus := NewMemoryBus()
	newCoord := func(owner string) *Coordinator {
		return NewCoordinator(Config{DocID: "doc", Owner: owner, TTL: time.Minute, Storage: storage, Broadcaster: bus, Logger: zerolog.Nop()})
	}
	a, b := newCoord("A"), newCoord("B")

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, OwnedLocal, a.Status().State)
	require.NoError(t, b.Start(ctx))
	assert.Equal(t, OwnedOther, b.Status().State)
	assert.Equal(t, "A", b.Status().Owner)

	a.Release(ctx)
	assert.Eventually(t, func() bool {
		return b.Status().State == OwnedLocal
	}, 2*time.Second, 10*time.Millisecond, "b should claim after a's release broadcast")

	rec, ok := readRecord(t, storage, "doc")
	require.True(t, ok)
	assert.Equal(t, "B", rec.Owner)
	b.Release(ctx)
}

func TestClaimBroadcastTriggersCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storage := NewMemoryStorage()
	bus := NewMemoryBus()
	a := NewCoordinator(Config{DocID: "doc", Owner: "A", TTL: time.Minute, Storage: storage, Broadcaster: bus, Logger: zerolog.Nop()})
	require.NoError(t, a.Start(ctx))
	defer a.Release(ctx)

	// another context overwrote the record, as happens after a missed heartbeat
	raw, err := encodeRecord(Record{Owner: "B", Expires: time.Now().Add(time.Minute).UnixMilli()})
	require.NoError(t, err)
	require.NoError(t, storage.Set(ctx, LockKey("doc"), raw))
	require.NoError(t, bus.Publish(ctx, LockKey("doc"), Message{Type: MessageClaim, Owner: "B", Instance: "other"}))

	assert.Eventually(t, func() bool {
		st := a.Status()
		return st.State == OwnedOther && st.Owner == "B"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeatRenewsLease(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	storage := NewMemoryStorage()
	a := NewCoordinator(Config{DocID: "doc", Owner: "A", TTL: 200 * time.Millisecond, Heartbeat: 20 * time.Millisecond, Storage: storage, Logger: zerolog.Nop()})
	require.NoError(t, a.Start(ctx))
	defer a.Release(ctx)

	first, ok := readRecord(t, storage, "doc")
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		rec, _ := readRecord(t, storage, "doc")
		return rec.Expires > first.Expires
	}, 2*time.Second, 10*time.Millisecond)
}
