package editlock

import (
	"context"
	"sync"
	"time"
)

// Storage is the key-value store every context can see.
type Storage interface {
	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// Broadcaster delivers messages to every subscriber of a channel, the sender
// included. Delivery is at most once.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, msg Message) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription is a live channel subscription.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Clock tells the coordinator what time it is.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

// Get returns the value under key and whether it exists.
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

const subscriptionBuffer = 16

// MemoryBus is an in-process Broadcaster. A subscriber that falls behind
// loses messages rather than blocking the publisher.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBus returns a bus with no subscribers.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[*memorySubscription]struct{}{}}
}

// Publish delivers msg to every current subscriber of channel.
func (b *MemoryBus) Publish(_ context.Context, channel string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers for messages published on channel from now on.
func (b *MemoryBus) Subscribe(_ context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &memorySubscription{bus: b, channel: channel, ch: make(chan Message, subscriptionBuffer)}
	if b.subs[channel] == nil {
		b.subs[channel] = map[*memorySubscription]struct{}{}
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.channel], s)
		close(s.ch)
	})
	return nil
}
