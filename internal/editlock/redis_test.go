package editlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client, err := DialRedis("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, s
}

func TestDialRedisRejectsBadURL(t *testing.T) {
	if _, err := DialRedis("not-a-url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestRedisStorageSetGetRemove(t *testing.T) {
	client, s := setupTestRedis(t)
	storage := NewRedisStorage(client, 0)
	ctx := context.Background()

	if _, ok, err := storage.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := storage.Set(ctx, "edit-lock:doc", `{"owner":"A","expires":1}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok, err := storage.Get(ctx, "edit-lock:doc")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if value != `{"owner":"A","expires":1}` {
		t.Errorf("unexpected value %q", value)
	}

	if ttl := s.TTL("blockwiki:edit-lock:doc"); ttl != DefaultRetention {
		t.Errorf("expected retention %v, got %v", DefaultRetention, ttl)
	}

	if err := storage.Remove(ctx, "edit-lock:doc"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := storage.Get(ctx, "edit-lock:doc"); ok {
		t.Error("expected key to be removed")
	}
	if err := storage.Remove(ctx, "edit-lock:doc"); err != nil {
		t.Errorf("removing a missing key should not fail: %v", err)
	}
}

func TestRedisStorageRetentionExpiresAbandonedRecords(t *testing.T) {
	client, s := setupTestRedis(t)
	storage := NewRedisStorage(client, time.Hour)
	ctx := context.Background()

	if err := storage.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(2 * time.Hour)
	if _, ok, _ := storage.Get(ctx, "k"); ok {
		t.Error("expected key to be gone after retention")
	}
}

func TestRedisBroadcasterDeliversMessages(t *testing.T) {
	client, _ := setupTestRedis(t)
	bus := NewRedisBroadcaster(client, zerolog.Nop())
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "edit-lock:doc")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	want := Message{Type: MessageRelease, Owner: "A", Instance: "i-1"}
	if err := bus.Publish(ctx, "edit-lock:doc", want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-sub.Messages():
		if got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRedisCoordinatorsHandOver(t *testing.T) {
	client, _ := setupTestRedis(t)
	storage := NewRedisStorage(client, 0)
	bus := NewRedisBroadcaster(client, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewCoordinator(Config{DocID: "doc", Owner: "A", Storage: storage, Broadcaster: bus, Logger: zerolog.Nop()})
	b := NewCoordinator(Config{DocID: "doc", Owner: "B", Storage: storage, Broadcaster: bus, Logger: zerolog.Nop()})

	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	if st := b.Status(); st.State != OwnedOther || st.Owner != "A" {
		t.Fatalf("expected b to see a's lease, got %+v", st)
	}

	a.Release(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for b.Status().State != OwnedLocal {
		if time.Now().After(deadline) {
			t.Fatalf("b never claimed the released lease, status %+v", b.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
	b.Release(ctx)
}
