package collector

import (
	"context"
	"testing"
	"time"

	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
)

func guildMsg(ign, content string) *chat.Message {
	return &chat.Message{
		Channel: chat.ChannelGuild,
		Author:  &chat.Author{IGN: ign},
		Content: content,
	}
}

func waitEnd(t *testing.T, c *Collector, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(timeout):
		t.Fatal("collector did not end in time")
	}
}

func TestNewRejectsUnbounded(t *testing.T) {
	b := bus.New()
	if _, err := New(b, func(*chat.Message, []*chat.Message) bool { return true }, Options{}); err == nil {
		t.Fatal("New with no bounds should fail")
	}
	if _, err := New(b, nil, Options{Max: 1}); err == nil {
		t.Fatal("New with nil filter should fail")
	}
}

func TestMaxTerminatesAfterExactCount(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(m *chat.Message, _ []*chat.Message) bool {
		return m.Content == "yes"
	}, Options{Max: 1, Time: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	b.PublishMessage(guildMsg("A", "no"))
	b.PublishMessage(guildMsg("B", "yes"))
	b.PublishMessage(guildMsg("C", "yes"))

	waitEnd(t, c, time.Second)

	if got := c.EndReason(); got != ReasonLimit {
		t.Errorf("EndReason = %q, want %q", got, ReasonLimit)
	}
	if got := len(c.Collected()); got != 1 {
		t.Errorf("collected %d items, want 1", got)
	}
}

func TestIdleTerminatesAfterQuietPeriod(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(*chat.Message, []*chat.Message) bool { return true }, Options{Idle: 30 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	b.PublishMessage(guildMsg("A", "one"))
	time.Sleep(10 * time.Millisecond)
	b.PublishMessage(guildMsg("A", "two"))

	start := time.Now()
	waitEnd(t, c, time.Second)

	if got := c.EndReason(); got != ReasonIdle {
		t.Errorf("EndReason = %q, want %q", got, ReasonIdle)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("idle stop took %v", elapsed)
	}
	if got := len(c.Collected()); got != 2 {
		t.Errorf("collected %d items, want 2", got)
	}
}

func TestTimeTerminates(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(*chat.Message, []*chat.Message) bool { return true }, Options{Time: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	waitEnd(t, c, time.Second)
	if got := c.EndReason(); got != ReasonTime {
		t.Errorf("EndReason = %q, want %q", got, ReasonTime)
	}
}

func TestMaxProcessedCountsRejectedItems(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(*chat.Message, []*chat.Message) bool { return false }, Options{MaxProcessed: 3, Time: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		b.PublishMessage(guildMsg("A", "x"))
	}

	waitEnd(t, c, time.Second)
	if got := c.EndReason(); got != ReasonProcessedLimit {
		t.Errorf("EndReason = %q, want %q", got, ReasonProcessedLimit)
	}
	if got := c.Received(); got != 3 {
		t.Errorf("received = %d, want 3", got)
	}
}

func TestDisconnectEndsCollector(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(*chat.Message, []*chat.Message) bool { return true }, Options{Time: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	b.PublishDisconnect(bus.DisconnectEvent{Reason: "socket closed", Time: time.Now()})

	waitEnd(t, c, time.Second)
	if got := c.EndReason(); got != ReasonConnectionLost {
		t.Errorf("EndReason = %q, want %q", got, ReasonConnectionLost)
	}
}

func TestNextRejectsOnEnd(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(*chat.Message, []*chat.Message) bool { return true }, Options{Time: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := c.Next(ctx); err != ErrEnded {
		t.Errorf("Next after end = %v, want ErrEnded", err)
	}
}

func TestNextDeliversCollectedItem(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(m *chat.Message, _ []*chat.Message) bool {
		return m.Author != nil && m.Author.IGN == "B"
	}, Options{Max: 1, Time: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	b.PublishMessage(guildMsg("A", "skip"))
	b.PublishMessage(guildMsg("B", "take"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := c.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "take" {
		t.Errorf("Next content = %q, want %q", msg.Content, "take")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	b := bus.New()
	c, err := New(b, func(*chat.Message, []*chat.Message) bool { return true }, Options{Time: time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	c.Stop(ReasonUser)
	c.Stop("other")
	waitEnd(t, c, time.Second)

	if got := c.EndReason(); got != ReasonUser {
		t.Errorf("EndReason = %q, want %q", got, ReasonUser)
	}
}
