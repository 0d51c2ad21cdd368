package editlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long a lease lives without a heartbeat.
const DefaultTTL = 2 * time.Minute

var ErrAlreadyStarted = errors.New("edit lock coordinator already started")

// Config describes one coordinator: one context's view of one document.
type Config struct {
	DocID string
	Owner string

	TTL time.Duration
	// Heartbeat is the renewal period. It must be shorter than TTL;
	// zero or anything not shorter means TTL/2.
	Heartbeat time.Duration

	Storage     Storage
	Broadcaster Broadcaster // optional
	Clock       Clock
	Logger      zerolog.Logger
}

// Coordinator claims, renews and releases a document lease. It never blocks
// edits; it only reports who holds the lease. Storage and broadcast failures
// are logged and reported as a degraded local ownership, never returned.
type Coordinator struct {
	docID     string
	owner     string
	instance  string
	ttl       time.Duration
	heartbeat time.Duration
	storage   Storage
	bus       Broadcaster
	clock     Clock
	log       zerolog.Logger

	mu        sync.Mutex
	status    Status
	listeners map[int]func(Status)
	nextID    int
	started   bool
	released  bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewCoordinator(cfg Config) *Coordinator {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 || heartbeat >= ttl {
		heartbeat = ttl / 2
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	instance := uuid.NewString()
	return &Coordinator{
		docID:     cfg.DocID,
		owner:     cfg.Owner,
		instance:  instance,
		ttl:       ttl,
		heartbeat: heartbeat,
		storage:   cfg.Storage,
		bus:       cfg.Broadcaster,
		clock:     clock,
		log: cfg.Logger.With().
			Str("doc_id", cfg.DocID).
			Str("owner", cfg.Owner).
			Logger(),
		status:    Status{State: Unclaimed},
		listeners: map[int]func(Status){},
	}
}

func (c *Coordinator) Owner() string {
	return c.owner
}

func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

func (c *Coordinator) Heartbeat() time.Duration {
	return c.heartbeat
}

// Status returns the last observed state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnChange registers fn to run on every status change. Callbacks run with
// the coordinator locked and must not call back into it.
func (c *Coordinator) OnChange(fn func(Status)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Claim reads the lease and takes it unless another owner holds it live.
// Taking it writes a fresh expiry and announces the claim.
func (c *Coordinator) Claim(ctx context.Context) Status {
	now := c.clock.Now()
	key := LockKey(c.docID)

	rec, found, err := c.read(ctx, key)
	if err != nil {
		return c.degrade(err, "read lock record")
	}
	if found && rec.Live(now) && rec.Owner != c.owner {
		return c.set(Status{State: OwnedOther, Owner: rec.Owner, Expires: rec.Expires})
	}

	next := Record{Owner: c.owner, Expires: now.Add(c.ttl).UnixMilli()}
	raw, err := encodeRecord(next)
	if err != nil {
		return c.degrade(err, "encode lock record")
	}
	if err := c.storage.Set(ctx, key, raw); err != nil {
		return c.degrade(err, "write lock record")
	}
	status := Status{State: OwnedLocal, Owner: c.owner, Expires: next.Expires}
	if err := c.publish(ctx, MessageClaim); err != nil {
		c.log.Warn().Err(err).Msg("announce claim failed")
		status.Degraded = true
	}
	return c.set(status)
}

// Check re-reads the lease without writing.
func (c *Coordinator) Check(ctx context.Context) Status {
	rec, found, err := c.read(ctx, LockKey(c.docID))
	if err != nil {
		return c.degrade(err, "read lock record")
	}
	switch {
	case !found || !rec.Live(c.clock.Now()):
		return c.set(Status{State: Unclaimed})
	case rec.Owner == c.owner:
		return c.set(Status{State: OwnedLocal, Owner: rec.Owner, Expires: rec.Expires})
	default:
		return c.set(Status{State: OwnedOther, Owner: rec.Owner, Expires: rec.Expires})
	}
}

// Start makes the initial claim, then keeps renewing the lease and reacting
// to other contexts until Release or until ctx ends.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.released {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	var sub Subscription
	if c.bus != nil {
		var err error
		sub, err = c.bus.Subscribe(runCtx, LockKey(c.docID))
		if err != nil {
			c.log.Warn().Err(err).Msg("subscribe to lock channel failed")
		}
	}

	status := c.Claim(runCtx)
	if c.bus != nil && sub == nil && !status.Degraded {
		status.Degraded = true
		c.set(status)
	}
	c.log.Debug().Str("state", string(status.State)).Dur("heartbeat", c.heartbeat).Msg("edit lock started")

	go c.run(runCtx, sub)
	return nil
}

func (c *Coordinator) run(ctx context.Context, sub Subscription) {
	defer close(c.done)

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	var messages <-chan Message
	if sub != nil {
		defer func() { _ = sub.Close() }()
		messages = sub.Messages()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Claim(ctx)
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, msg Message) {
	if msg.Instance == c.instance {
		return
	}
	switch msg.Type {
	case MessageClaim:
		c.Check(ctx)
	case MessageRelease:
		c.Claim(ctx)
	}
}

// Release stops renewal and, if this context still owns the lease, deletes
// it and announces the release so another context can take over. Calling
// it again does nothing.
func (c *Coordinator) Release(ctx context.Context) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	key := LockKey(c.docID)
	rec, found, err := c.read(ctx, key)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Msg("read lock record on release")
	case found && rec.Owner == c.owner:
		if err := c.storage.Remove(ctx, key); err != nil {
			c.log.Warn().Err(err).Msg("remove lock record")
			break
		}
		if err := c.publish(ctx, MessageRelease); err != nil {
			c.log.Warn().Err(err).Msg("announce release failed")
		}
	}
	c.set(Status{State: Unclaimed})
}

func (c *Coordinator) read(ctx context.Context, key string) (Record, bool, error) {
	raw, found, err := c.storage.Get(ctx, key)
	if err != nil || !found {
		return Record{}, false, err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		// a record nobody can parse blocks nobody
		c.log.Debug().Err(err).Msg("ignoring malformed lock record")
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (c *Coordinator) publish(ctx context.Context, typ MessageType) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Publish(ctx, LockKey(c.docID), Message{Type: typ, Owner: c.owner, Instance: c.instance})
}

func (c *Coordinator) degrade(err error, action string) Status {
	c.log.Warn().Err(err).Msg(action)
	return c.set(Status{State: OwnedLocal, Owner: c.owner, Degraded: true})
}

func (c *Coordinator) set(s Status) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == c.status {
		return s
	}
	c.status = s
	for _, fn := range c.listeners {
		fn(s)
	}
	return s
}
