package minecraft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/collector"
	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/logger"
)

// State is the connection lifecycle stage.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateLoggedIn
	StateLinked
	// StateHalted is terminal: no reconnect will be scheduled.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLoggedIn:
		return "loggedIn"
	case StateLinked:
		return "linked"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Conn owns the single game session: it classifies every incoming line
// onto the bus, serializes all outgoing chat through its pacer, and
// reconnects with capped linear backoff until a fatal error or an explicit
// Disconnect halts it.
type Conn struct {
	dialer     Dialer
	bus        *bus.Bus
	cfg        config.MinecraftConfig
	classifier *chat.Classifier
	pacer      *Pacer

	mu       sync.Mutex
	session  Session
	state    State
	attempts int
	halted   bool
}

func NewConn(dialer Dialer, b *bus.Bus, cfg config.MinecraftConfig, classifier *chat.Classifier) *Conn {
	c := &Conn{
		dialer:     dialer,
		bus:        b,
		cfg:        cfg,
		classifier: classifier,
	}
	c.pacer = NewPacer(c.writeChat, cfg.ChatLineLimit, cfg.MinSendDelay())
	return c
}

// Run starts the pacer and opens the initial session. It returns once the
// first connect attempt resolved; reconnection continues in the background
// until ctx is cancelled.
func (c *Conn) Run(ctx context.Context) error {
	go c.pacer.Run(ctx)
	return c.Connect(ctx)
}

// Connect opens a session. Idempotent: a no-op while already connecting or
// connected. Non-fatal failures schedule a backoff reconnect.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateLoggedIn, StateLinked:
		c.mu.Unlock()
		return nil
	}
	c.halted = false
	c.state = StateConnecting
	c.mu.Unlock()

	sess, err := c.dialer.Dial(ctx)
	if err != nil {
		if IsFatal(err) {
			c.haltWith(err)
			return err
		}
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		logger.ErrorCF("minecraft", "Connect failed", map[string]interface{}{
			"error": err.Error(),
		})
		go c.reconnectAfterBackoff(ctx)
		return err
	}

	c.mu.Lock()
	c.session = sess
	c.state = StateLoggedIn
	c.mu.Unlock()

	c.classifier.BotIGN = sess.Username()

	if err := sess.Write("settings", DefaultSettings()); err != nil {
		logger.WarnCF("minecraft", "Settings handshake failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.InfoCF("minecraft", "Logged in", map[string]interface{}{
		"username": sess.Username(),
		"uuid":     sess.UUID(),
	})

	go c.readLoop(ctx, sess)
	return nil
}

// Reconnect tears down the current session, if any; the read loop then
// schedules a backoff reconnect. Without a session it connects directly.
func (c *Conn) Reconnect(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess != nil {
		sess.Close("reconnect requested")
		return
	}
	go c.reconnectAfterBackoff(ctx)
}

// Disconnect closes the session gracefully and halts reconnection. A later
// explicit Connect clears the halt.
func (c *Conn) Disconnect(reason string) {
	c.mu.Lock()
	c.halted = true
	sess := c.session
	c.session = nil
	if c.state != StateHalted {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	if sess != nil {
		sess.Close(reason)
	}
	logger.InfoCF("minecraft", "Disconnected", map[string]interface{}{"reason": reason})
}

// MarkLinked records a successful guild association and resets the backoff
// counter.
func (c *Conn) MarkLinked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateLoggedIn {
		c.state = StateLinked
	}
	c.attempts = 0
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether chat can be sent.
func (c *Conn) Ready() bool {
	s := c.State()
	return s == StateLoggedIn || s == StateLinked
}

// Username is the logged-in account name, empty before first login.
func (c *Conn) Username() string {
	return c.classifier.BotIGN
}

// Chat queues one logical chat line; the pacer handles splitting, markers
// and rate limiting. Delivery is fire-and-forget.
func (c *Conn) Chat(content, prefix string, maxParts int) error {
	if !c.Ready() {
		return ErrNotReady
	}
	c.pacer.Enqueue(content, prefix, maxParts)
	return nil
}

// SpamBypass pads content so a recurring identical auto-response still
// passes the server's duplicate filter.
func (c *Conn) SpamBypass(content string) string {
	return c.pacer.SpamBypass(content)
}

// RunCommand sends cmd and awaits its correlated reply. It resolves with
// the first capture group of the success pattern (or the full matched
// line), returns an empty result on a tolerated abort/timeout, and returns
// ErrCommandAborted/ErrCommandTimeout when the command rejects those
// outcomes.
func (c *Conn) RunCommand(ctx context.Context, cmd Command) (string, error) {
	if err := cmd.validate(); err != nil {
		return "", err
	}
	if !c.Ready() {
		return "", ErrNotReady
	}

	id := uuid.NewString()[:8]
	replySet := cmd.replySet()

	col, err := collector.New(c.bus, func(m *chat.Message, _ []*chat.Message) bool {
		if m.Self || !replySet[m.Channel] {
			return false
		}
		if cmd.Target != "" && m.Author != nil && !strings.EqualFold(m.Author.IGN, cmd.Target) {
			return false
		}
		return true
	}, collector.Options{Time: cmd.Timeout})
	if err != nil {
		return "", err
	}
	defer col.Stop(collector.ReasonUser)

	if err := c.Chat(cmd.Text, "", cmd.MaxResponseParts); err != nil {
		return "", err
	}

	logger.DebugCF("minecraft", "Command sent", map[string]interface{}{
		"id":   id,
		"text": cmd.Text,
	})

	for {
		msg, err := col.Next(ctx)
		if err != nil {
			if errors.Is(err, collector.ErrEnded) {
				if col.EndReason() == collector.ReasonConnectionLost {
					return "", fmt.Errorf("command %s: %w", id, ErrConnectionLost)
				}
				if cmd.RejectOnTimeout {
					return "", fmt.Errorf("command %s after %s: %w", id, cmd.Timeout, ErrCommandTimeout)
				}
				return "", nil
			}
			return "", err
		}

		if m := cmd.Success.FindStringSubmatch(msg.Content); m != nil {
			if len(m) > 1 && m[1] != "" {
				return m[1], nil
			}
			return msg.Content, nil
		}
		if cmd.Abort != nil && cmd.Abort.MatchString(msg.Content) {
			if cmd.RejectOnAbort {
				return "", fmt.Errorf("command %s: %q: %w", id, msg.Content, ErrCommandAborted)
			}
			return "", nil
		}
	}
}

// Backoff is the reconnect delay before the given attempt: linear in the
// attempt count, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(attempt) * base
	if d > max {
		return max
	}
	return d
}

func (c *Conn) readLoop(ctx context.Context, sess Session) {
	for {
		select {
		case <-ctx.Done():
			sess.Close("shutdown")
			return
		case pkt := <-sess.Chat():
			msg := c.classifier.Classify(pkt.Message, pkt.Position)
			c.bus.PublishMessage(msg)
		case <-sess.Done():
			c.handleSessionEnd(ctx, sess)
			return
		}
	}
}

func (c *Conn) handleSessionEnd(ctx context.Context, sess Session) {
	err := sess.Err()
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	fatal := IsFatal(err)

	c.mu.Lock()
	if c.session == sess {
		c.session = nil
	}
	halted := c.halted
	if fatal {
		c.state = StateHalted
		c.halted = true
	} else if c.state != StateHalted {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	c.bus.PublishDisconnect(bus.DisconnectEvent{
		Reason: reason,
		Fatal:  fatal,
		Time:   time.Now(),
	})

	if fatal {
		logger.ErrorCF("minecraft", "Fatal session error, not retrying", map[string]interface{}{
			"reason": reason,
		})
		return
	}
	if halted {
		return
	}

	logger.WarnCF("minecraft", "Session ended, scheduling reconnect", map[string]interface{}{
		"reason": reason,
	})
	go c.reconnectAfterBackoff(ctx)
}

func (c *Conn) reconnectAfterBackoff(ctx context.Context) {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	delay := Backoff(attempt, c.cfg.ReconnectBaseDelay(), c.cfg.ReconnectMaxDelay())
	logger.InfoCF("minecraft", "Reconnecting", map[string]interface{}{
		"attempt": attempt,
		"delay":   delay.String(),
	})

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	c.mu.Lock()
	halted := c.halted
	c.mu.Unlock()
	if halted {
		return
	}

	if err := c.Connect(ctx); err != nil {
		logger.ErrorCF("minecraft", "Reconnect attempt failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
}

func (c *Conn) writeChat(line string) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNotReady
	}
	return sess.Write("chat", line)
}

// haltWith moves to the terminal state after a fatal dial error.
func (c *Conn) haltWith(err error) {
	c.mu.Lock()
	c.state = StateHalted
	c.halted = true
	c.mu.Unlock()

	c.bus.PublishDisconnect(bus.DisconnectEvent{
		Reason: err.Error(),
		Fatal:  true,
		Time:   time.Now(),
	})
	logger.ErrorCF("minecraft", "Fatal connect error, halting", map[string]interface{}{
		"error": err.Error(),
	})
}
