package minecraft

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/config"
)

type fakeSession struct {
	username string

	chatCh chan ChatPacket
	done   chan struct{}

	mu     sync.Mutex
	writes []string

	endOnce sync.Once
	err     error
}

func newFakeSession(username string) *fakeSession {
	return &fakeSession{
		username: username,
		chatCh:   make(chan ChatPacket, 50),
		done:     make(chan struct{}),
	}
}

func (f *fakeSession) Write(packetType string, payload any) error {
	if packetType != "chat" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, payload.(string))
	return nil
}

func (f *fakeSession) Chat() <-chan ChatPacket { return f.chatCh }
func (f *fakeSession) Done() <-chan struct{}   { return f.done }
func (f *fakeSession) Username() string        { return f.username }
func (f *fakeSession) UUID() string            { return "f7c1d3e2a9b84c55a0e1b2c3d4e5f601" }

func (f *fakeSession) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

func (f *fakeSession) Close(reason string) error {
	f.end(fmt.Errorf("closed: %s", reason))
	return nil
}

func (f *fakeSession) end(err error) {
	f.endOnce.Do(func() {
		f.err = err
		close(f.done)
	})
}

// serverSays pushes one unheadered system line, the shape command feedback
// arrives in.
func (f *fakeSession) serverSays(line string) {
	f.chatCh <- ChatPacket{Message: line, Position: chat.PositionSystem}
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []Session
	errs     []error
	dials    int
}

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	d.dials++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i < len(d.sessions) {
		return d.sessions[i], nil
	}
	return nil, errors.New("no session scripted")
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConn(t *testing.T, d Dialer) (*Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.MinecraftConfig{
		ChatLineLimit:        256,
		MinSendDelayMs:       1,
		ReconnectBaseDelayMs: 5000,
		ReconnectMaxDelayMs:  300000,
	}
	classifier := &chat.Classifier{Prefix: "!"}
	return NewConn(d, bus.New(), cfg, classifier), ctx
}

func TestBackoff(t *testing.T) {
	base := 5 * time.Second
	max := 5 * time.Minute

	for attempt, want := range map[int]time.Duration{
		1: 5 * time.Second,
		2: 10 * time.Second,
		3: 15 * time.Second,
		4: 20 * time.Second,
		5: 25 * time.Second,
	} {
		if got := Backoff(attempt, base, max); got != want {
			t.Errorf("Backoff(%d) = %s, want %s", attempt, got, want)
		}
	}

	if got := Backoff(70, base, max); got != max {
		t.Errorf("Backoff(70) = %s, want cap %s", got, max)
	}
	if got := Backoff(0, base, max); got != base {
		t.Errorf("Backoff(0) = %s, want %s", got, base)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", d.dialCount())
	}
	if got := c.State(); got != StateLoggedIn {
		t.Errorf("state = %s, want loggedIn", got)
	}
	if c.Username() != "Lunarite" {
		t.Errorf("username = %q, want Lunarite", c.Username())
	}
}

func TestConnectFatalHalts(t *testing.T) {
	d := &fakeDialer{errs: []error{fmt.Errorf("login rejected: %w", ErrInvalidCredentials)}}
	c, ctx := testConn(t, d)

	err := c.Connect(ctx)
	if !IsFatal(err) {
		t.Fatalf("Connect error = %v, want fatal", err)
	}
	if got := c.State(); got != StateHalted {
		t.Errorf("state = %s, want halted", got)
	}

	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Errorf("dials = %d after fatal error, want 1", d.dialCount())
	}
}

func TestChatBeforeLoginRejected(t *testing.T) {
	c, _ := testConn(t, &fakeDialer{})

	if err := c.Chat("hello", "/gc ", 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("Chat error = %v, want ErrNotReady", err)
	}
}

func TestMarkLinkedResetsBackoff(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.mu.Lock()
	c.attempts = 7
	c.mu.Unlock()

	c.MarkLinked()
	if got := c.State(); got != StateLinked {
		t.Errorf("state = %s, want linked", got)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts != 0 {
		t.Errorf("attempts = %d after MarkLinked, want 0", c.attempts)
	}
}

func TestRunCommandReturnsCaptureGroup(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.serverSays("Unrelated lobby chatter")
		sess.serverSays("You are currently rank [Elder] in Lunar Society")
	}()

	got, err := c.RunCommand(ctx, Command{
		Text:    "/g rank",
		Success: regexp.MustCompile(`^You are currently rank \[(\w+)\]`),
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got != "Elder" {
		t.Errorf("result = %q, want Elder", got)
	}
}

func TestRunCommandAbort(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	cmd := Command{
		Text:          "/g invite Steve",
		Success:       regexp.MustCompile(`^You invited (\w+)`),
		Abort:         regexp.MustCompile(`is already in another guild!$`),
		Timeout:       time.Second,
		RejectOnAbort: true,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.serverSays("Steve is already in another guild!")
	}()
	if _, err := c.RunCommand(ctx, cmd); !errors.Is(err, ErrCommandAborted) {
		t.Fatalf("RunCommand error = %v, want ErrCommandAborted", err)
	}

	// Tolerated abort resolves empty instead.
	cmd.RejectOnAbort = false
	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.serverSays("Steve is already in another guild!")
	}()
	got, err := c.RunCommand(ctx, cmd)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got != "" {
		t.Errorf("result = %q, want empty on tolerated abort", got)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	cmd := Command{
		Text:            "/g quest",
		Success:         regexp.MustCompile(`^Guild Quest`),
		Timeout:         30 * time.Millisecond,
		RejectOnTimeout: true,
	}
	if _, err := c.RunCommand(ctx, cmd); !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("RunCommand error = %v, want ErrCommandTimeout", err)
	}

	cmd.RejectOnTimeout = false
	got, err := c.RunCommand(ctx, cmd)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got != "" {
		t.Errorf("result = %q, want empty on tolerated timeout", got)
	}
}

func TestRunCommandConnectionLost(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.end(errors.New("gateway read: EOF"))
	}()

	cmd := Command{
		Text:    "/g list",
		Success: regexp.MustCompile(`^Guild Members`),
		Timeout: time.Second,
	}
	if _, err := c.RunCommand(ctx, cmd); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("RunCommand error = %v, want ErrConnectionLost", err)
	}
}

func TestRunCommandTargetFiltersAuthors(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}
	c, ctx := testConn(t, d)
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		sess.chatCh <- ChatPacket{Message: "From Intruder: pong", Position: chat.PositionChat}
		sess.chatCh <- ChatPacket{Message: "From Partner: pong", Position: chat.PositionChat}
	}()

	got, err := c.RunCommand(ctx, Command{
		Text:          "/msg Partner ping",
		Success:       regexp.MustCompile(`^(pong)$`),
		Timeout:       time.Second,
		ReplyChannels: []chat.Channel{chat.ChannelWhisper},
		Target:        "Partner",
	})
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if got != "pong" {
		t.Errorf("result = %q, want pong", got)
	}
}

func TestSessionDropSchedulesReconnect(t *testing.T) {
	first := newFakeSession("Lunarite")
	second := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{first, second}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.MinecraftConfig{
		ChatLineLimit:        256,
		MinSendDelayMs:       1,
		ReconnectBaseDelayMs: 10,
		ReconnectMaxDelayMs:  100,
	}
	c := NewConn(d, bus.New(), cfg, &chat.Classifier{Prefix: "!"})

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	first.end(errors.New("gateway read: EOF"))

	deadline := time.After(time.Second)
	for d.dialCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reconnect dial")
		case <-time.After(5 * time.Millisecond):
		}
	}

	for c.State() != StateLoggedIn {
		select {
		case <-deadline:
			t.Fatalf("state = %s, want loggedIn after reconnect", c.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDisconnectPreventsReconnect(t *testing.T) {
	sess := newFakeSession("Lunarite")
	d := &fakeDialer{sessions: []Session{sess}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := config.MinecraftConfig{
		ChatLineLimit:        256,
		MinSendDelayMs:       1,
		ReconnectBaseDelayMs: 5,
		ReconnectMaxDelayMs:  50,
	}
	c := NewConn(d, bus.New(), cfg, &chat.Classifier{Prefix: "!"})

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c.Disconnect("rehost")

	time.Sleep(50 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Errorf("dials = %d after Disconnect, want 1", d.dialCount())
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
}
