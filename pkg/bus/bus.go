package bus

import (
	"context"
	"sync"
	"time"

	"github.com/lunarite/guildbridge/pkg/chat"
)

// DisconnectEvent is published once per lost game session.
type DisconnectEvent struct {
	Reason string    `json:"reason"`
	Fatal  bool      `json:"fatal"`
	Time   time.Time `json:"time"`
}

// Subscription is an observer's view of the bus. Channels are buffered and
// written non-blocking; a slow subscriber misses events instead of stalling
// dispatch.
type Subscription struct {
	Messages    chan *chat.Message
	Disconnects chan DisconnectEvent
}

// Bus fans classified game messages out to the bridge dispatch loop and to
// any number of observers (collectors, dashboard). One channel class per
// event type keeps consumers statically known and backpressure explicit.
type Bus struct {
	messages    chan *chat.Message
	disconnects chan DisconnectEvent

	observers map[*Subscription]struct{}
	obsMu     sync.RWMutex
}

func New() *Bus {
	return &Bus{
		messages:    make(chan *chat.Message, 100),
		disconnects: make(chan DisconnectEvent, 8),
		observers:   make(map[*Subscription]struct{}),
	}
}

// Subscribe registers an observer that receives copies of all published
// events.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		Messages:    make(chan *chat.Message, 50),
		Disconnects: make(chan DisconnectEvent, 4),
	}
	b.obsMu.Lock()
	b.observers[sub] = struct{}{}
	b.obsMu.Unlock()
	return sub
}

// Unsubscribe removes an observer and closes its channels. Safe to call
// once per subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	if _, ok := b.observers[sub]; !ok {
		return
	}
	delete(b.observers, sub)
	close(sub.Messages)
	close(sub.Disconnects)
}

// PublishMessage delivers one classified line to the dispatch queue and all
// observers, preserving publish order for the dispatch consumer.
func (b *Bus) PublishMessage(msg *chat.Message) {
	b.messages <- msg

	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	for sub := range b.observers {
		select {
		case sub.Messages <- msg:
		default:
			// Non-blocking: skip slow observers
		}
	}
}

// PublishDisconnect notifies the dispatch loop and all observers that the
// game session dropped.
func (b *Bus) PublishDisconnect(ev DisconnectEvent) {
	select {
	case b.disconnects <- ev:
	default:
	}

	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	for sub := range b.observers {
		select {
		case sub.Disconnects <- ev:
		default:
		}
	}
}

// ConsumeMessage blocks for the next dispatched line; the single consumer
// is the bridge run loop.
func (b *Bus) ConsumeMessage(ctx context.Context) (*chat.Message, bool) {
	select {
	case msg := <-b.messages:
		return msg, true
	case <-ctx.Done():
		return nil, false
	}
}

// ConsumeDisconnect blocks for the next disconnect event.
func (b *Bus) ConsumeDisconnect(ctx context.Context) (DisconnectEvent, bool) {
	select {
	case ev := <-b.disconnects:
		return ev, true
	case <-ctx.Done():
		return DisconnectEvent{}, false
	}
}
