package minecraft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/logger"
)

// ErrInvalidCredentials marks a login rejection. It is the only error class
// that halts reconnection.
var ErrInvalidCredentials = errors.New("invalid credentials")

// IsFatal reports whether a session error must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// ChatPacket is one raw chat-component payload delivered by the server.
type ChatPacket struct {
	Message  string
	Position chat.Position
}

// Session is a live login to the game server. The bridge treats it as a
// byte/event transport; all parsing above this boundary belongs to the
// classifier.
type Session interface {
	// Write sends one packet of the given type.
	Write(packetType string, payload any) error
	// Chat streams raw chat payloads until the session ends.
	Chat() <-chan ChatPacket
	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}
	// Err reports why the session ended; nil until Done is closed.
	Err() error
	// Username is the logged-in account name.
	Username() string
	// UUID is the logged-in account id, without dashes.
	UUID() string
	// Close tears the session down with a reason.
	Close(reason string) error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Settings is the post-login client settings handshake payload.
type Settings struct {
	Locale       string `json:"locale"`
	ViewDistance int    `json:"viewDistance"`
	ChatFlags    int    `json:"chatFlags"`
	ChatColors   bool   `json:"chatColors"`
	SkinParts    int    `json:"skinParts"`
	MainHand     int    `json:"mainHand"`
}

// DefaultSettings keeps the client lightweight: tiny view distance, chat
// fully enabled.
func DefaultSettings() Settings {
	return Settings{
		Locale:       "en_US",
		ViewDistance: 6,
		ChatFlags:    0,
		ChatColors:   true,
		MainHand:     1,
	}
}

// WebsocketDialer connects to a session gateway that fronts the actual
// game protocol and relays chat packets as JSON frames.
type WebsocketDialer struct {
	URL      string
	Username string
	Token    string

	// HandshakeTimeout bounds the login exchange; defaults to 15s.
	HandshakeTimeout time.Duration
}

type wireFrame struct {
	Type     string          `json:"type"`
	Position int             `json:"position,omitempty"`
	Message  string          `json:"message,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Username string          `json:"username,omitempty"`
	UUID     string          `json:"uuid,omitempty"`
	Error    string          `json:"error,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Dial opens the websocket, performs the login exchange and returns a live
// session. A rejected login surfaces as ErrInvalidCredentials.
func (d *WebsocketDialer) Dial(ctx context.Context) (Session, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", d.URL, err)
	}

	login := wireFrame{Type: "login", Username: d.Username, Message: d.Token}
	if err := conn.WriteJSON(login); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send login: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	var ack wireFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read login ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if ack.Type != "login" || ack.Error != "" {
		conn.Close()
		if strings.Contains(strings.ToLower(ack.Error), "invalid credentials") {
			return nil, fmt.Errorf("login rejected: %w", ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("login rejected: %s", ack.Error)
	}

	s := &wsSession{
		conn:     conn,
		username: ack.Username,
		uuid:     strings.ReplaceAll(ack.UUID, "-", ""),
		chatCh:   make(chan ChatPacket, 100),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

type wsSession struct {
	conn     *websocket.Conn
	username string
	uuid     string

	writeMu sync.Mutex

	chatCh chan ChatPacket
	done   chan struct{}

	endOnce sync.Once
	err     error
}

func (s *wsSession) Username() string      { return s.username }
func (s *wsSession) UUID() string          { return s.uuid }
func (s *wsSession) Chat() <-chan ChatPacket { return s.chatCh }
func (s *wsSession) Done() <-chan struct{} { return s.done }

func (s *wsSession) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *wsSession) Write(packetType string, payload any) error {
	frame := wireFrame{Type: packetType}
	switch packetType {
	case "chat":
		text, ok := payload.(string)
		if !ok {
			return fmt.Errorf("chat payload must be a string, got %T", payload)
		}
		frame.Message = text
	default:
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", packetType, err)
		}
		frame.Payload = raw
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.done:
		return fmt.Errorf("session closed: %w", s.err)
	default:
	}
	return s.conn.WriteJSON(frame)
}

func (s *wsSession) Close(reason string) error {
	s.end(fmt.Errorf("closed: %s", reason))
	return nil
}

func (s *wsSession) end(err error) {
	s.endOnce.Do(func() {
		s.err = err
		s.conn.Close()
		// chatCh stays open; consumers select on Done instead of
		// relying on channel close.
		close(s.done)
	})
}

func (s *wsSession) readLoop() {
	for {
		var frame wireFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.end(fmt.Errorf("gateway read: %w", err))
			return
		}

		switch frame.Type {
		case "chat":
			pos := chat.PositionChat
			switch frame.Position {
			case 1:
				pos = chat.PositionSystem
			case 2:
				pos = chat.PositionGameInfo
			}
			select {
			case s.chatCh <- ChatPacket{Message: frame.Message, Position: pos}:
			case <-s.done:
				return
			}
		case "disconnect":
			err := fmt.Errorf("server disconnect: %s", frame.Reason)
			if strings.Contains(strings.ToLower(frame.Reason), "invalid credentials") {
				err = fmt.Errorf("server disconnect: %s: %w", frame.Reason, ErrInvalidCredentials)
			}
			s.end(err)
			return
		default:
			logger.DebugCF("minecraft", "Ignoring unknown gateway frame", map[string]interface{}{
				"type": frame.Type,
			})
		}
	}
}
