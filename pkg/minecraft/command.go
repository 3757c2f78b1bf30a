package minecraft

import (
	"errors"
	"regexp"
	"time"

	"github.com/lunarite/guildbridge/pkg/chat"
)

var (
	// ErrNotReady is returned when a send is attempted before login.
	ErrNotReady = errors.New("connection not ready")
	// ErrCommandTimeout is returned when no matching reply arrived in time
	// and the command requested rejection on timeout.
	ErrCommandTimeout = errors.New("command timed out")
	// ErrCommandAborted is returned when the abort pattern matched and the
	// command requested rejection on abort.
	ErrCommandAborted = errors.New("command aborted")
	// ErrConnectionLost is returned when the session dropped while a
	// command was awaiting its reply.
	ErrConnectionLost = errors.New("connection lost")
)

// Command is one correlated request over the chat stream: an outgoing line
// plus the patterns that recognize its reply. Owned exclusively by the
// calling goroutine; the collector it spawns only closes over it.
//
// Two concurrently outstanding commands whose patterns overlap can
// cross-match each other's replies; choosing patterns specific enough to
// avoid that is the caller's responsibility.
type Command struct {
	// Text is sent verbatim (it usually starts with a slash command).
	Text string
	// Success recognizes the reply; the first capture group becomes the
	// result, or the whole matched line when there is none.
	Success *regexp.Regexp
	// Abort optionally recognizes a failure reply.
	Abort *regexp.Regexp

	Timeout time.Duration

	// RejectOnAbort turns an abort match into ErrCommandAborted instead
	// of an empty result.
	RejectOnAbort bool
	// RejectOnTimeout turns a timeout into ErrCommandTimeout instead of
	// an empty result.
	RejectOnTimeout bool

	// MaxResponseParts caps the outgoing send's chunk count; 0 leaves it
	// unbounded.
	MaxResponseParts int

	// ReplyChannels lists the channels replies may arrive on. Empty
	// defaults to unheadered system output (ChannelUnknown), which is
	// where the server prints command feedback.
	ReplyChannels []chat.Channel

	// Target optionally restricts authored replies to one ign;
	// author-less system lines always pass.
	Target string
}

func (c Command) validate() error {
	if c.Text == "" {
		return errors.New("command: empty text")
	}
	if c.Success == nil {
		return errors.New("command: success pattern required")
	}
	if c.Timeout <= 0 {
		return errors.New("command: timeout required")
	}
	return nil
}

func (c Command) replySet() map[chat.Channel]bool {
	set := make(map[chat.Channel]bool, len(c.ReplyChannels)+1)
	if len(c.ReplyChannels) == 0 {
		set[chat.ChannelUnknown] = true
		return set
	}
	for _, ch := range c.ReplyChannels {
		set[ch] = true
	}
	return set
}
