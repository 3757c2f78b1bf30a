// Package collector provides a bounded, filterable collector over the
// classified game-message stream. Command correlation, confirmation
// prompts and polls are all built on it.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
)

// End reasons reported by EndReason.
const (
	ReasonTime           = "time"
	ReasonIdle           = "idle"
	ReasonLimit          = "limit"
	ReasonProcessedLimit = "processedLimit"
	ReasonConnectionLost = "connectionLost"
	ReasonUser           = "user"
)

// ErrEnded is returned by Next when the collector finished without
// producing another item.
var ErrEnded = errors.New("collector ended")

// Filter decides whether a message is collected. It sees the items
// collected so far and must not mutate them.
type Filter func(msg *chat.Message, collected []*chat.Message) bool

// Options bound a collector's lifetime. At least one of Time, Idle, Max or
// MaxProcessed must be set; an unbounded collector is a caller error.
type Options struct {
	// Time stops the collector this long after start.
	Time time.Duration
	// Idle stops the collector this long after the last collected item.
	Idle time.Duration
	// Max stops the collector after this many collected items.
	Max int
	// MaxProcessed stops the collector after this many received items,
	// collected or not.
	MaxProcessed int
}

func (o Options) bounded() bool {
	return o.Time > 0 || o.Idle > 0 || o.Max > 0 || o.MaxProcessed > 0
}

// Collector subscribes to the bus and gathers messages passing its filter
// until one of its bounds is hit or the game session drops.
type Collector struct {
	b      *bus.Bus
	sub    *bus.Subscription
	filter Filter
	opts   Options

	out  chan *chat.Message
	done chan struct{}

	mu        sync.Mutex
	collected []*chat.Message
	received  int
	reason    string

	stopOnce sync.Once
}

// New starts a collector. The returned collector is already subscribed;
// callers must eventually Stop it or let a bound end it.
func New(b *bus.Bus, filter Filter, opts Options) (*Collector, error) {
	if filter == nil {
		return nil, errors.New("collector: filter must not be nil")
	}
	if !opts.bounded() {
		return nil, errors.New("collector: at least one of time/idle/max/maxProcessed must be set")
	}

	c := &Collector{
		b:      b,
		sub:    b.Subscribe(),
		filter: filter,
		opts:   opts,
		out:    make(chan *chat.Message, 50),
		done:   make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func (c *Collector) run() {
	var timeC, idleC <-chan time.Time

	var timeTimer, idleTimer *time.Timer
	if c.opts.Time > 0 {
		timeTimer = time.NewTimer(c.opts.Time)
		defer timeTimer.Stop()
		timeC = timeTimer.C
	}
	if c.opts.Idle > 0 {
		idleTimer = time.NewTimer(c.opts.Idle)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	defer func() {
		c.b.Unsubscribe(c.sub)
		close(c.out)
	}()

	for {
		select {
		case msg := <-c.sub.Messages:
			if msg == nil {
				// Subscription closed underneath us.
				c.Stop(ReasonConnectionLost)
				return
			}
			if reason := c.handle(msg, idleTimer); reason != "" {
				c.Stop(reason)
				return
			}
		case <-c.sub.Disconnects:
			c.Stop(ReasonConnectionLost)
			return
		case <-timeC:
			c.Stop(ReasonTime)
			return
		case <-idleC:
			c.Stop(ReasonIdle)
			return
		case <-c.done:
			return
		}
	}
}

// handle processes one received message and returns a non-empty end reason
// when a count bound is hit.
func (c *Collector) handle(msg *chat.Message, idleTimer *time.Timer) string {
	c.mu.Lock()
	c.received++
	received := c.received
	pass := c.filter(msg, c.collected)
	if pass {
		c.collected = append(c.collected, msg)
	}
	collected := len(c.collected)
	c.mu.Unlock()

	if pass {
		select {
		case c.out <- msg:
		default:
			// Consumer not keeping up; the item stays in Collected.
		}
		if idleTimer != nil {
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(c.opts.Idle)
		}
	}

	if c.opts.Max > 0 && pass && collected >= c.opts.Max {
		return ReasonLimit
	}
	if c.opts.MaxProcessed > 0 && received >= c.opts.MaxProcessed {
		return ReasonProcessedLimit
	}
	return ""
}

// Stop ends the collector. Idempotent; later calls with other reasons are
// ignored.
func (c *Collector) Stop(reason string) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed when the collector has ended.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Chan streams collected items; closed when the collector ends.
func (c *Collector) Chan() <-chan *chat.Message {
	return c.out
}

// Next blocks for the next collected item. Returns ErrEnded when the
// collector finishes first and ctx.Err when the context does.
func (c *Collector) Next(ctx context.Context) (*chat.Message, error) {
	select {
	case msg, ok := <-c.out:
		if !ok {
			return nil, ErrEnded
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Collected returns a snapshot of the items collected so far.
func (c *Collector) Collected() []*chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*chat.Message, len(c.collected))
	copy(out, c.collected)
	return out
}

// Received returns how many messages the collector has seen.
func (c *Collector) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// EndReason returns the stop reason, or "" while still collecting.
func (c *Collector) EndReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
