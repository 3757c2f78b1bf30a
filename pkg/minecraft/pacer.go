package minecraft

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/logger"
)

// Pacer serializes all chat writes of one connection through a FIFO queue
// with a minimum inter-write delay, splits long lines at word boundaries,
// and inserts a rotating invisible marker after the command prefix of each
// part so that consecutive otherwise-identical lines are not suppressed by
// the server's duplicate filter. The anti-duplicate scheme is a quirk of this specific
// upstream server and is confined to this type and the classifier's
// stripping.
type Pacer struct {
	write     func(line string) error
	lineLimit int
	minDelay  time.Duration

	queue chan string

	mu        sync.Mutex
	markerIdx int
}

// NewPacer builds a pacer writing through the given function. lineLimit is
// the server's per-line character limit; minDelay the minimum spacing
// between wire writes.
func NewPacer(write func(line string) error, lineLimit int, minDelay time.Duration) *Pacer {
	return &Pacer{
		write:     write,
		lineLimit: lineLimit,
		minDelay:  minDelay,
		queue:     make(chan string, 100),
	}
}

// Run drains the queue until ctx is cancelled. A failed write drops the
// queued line and keeps going; callers that need delivery confirmation use
// RunCommand instead of fire-and-forget sends.
func (p *Pacer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-p.queue:
			if err := p.write(line); err != nil {
				logger.WarnCF("pacer", "Dropping chat line after write failure", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.minDelay):
			}
		}
	}
}

// Enqueue splits prefix+content into at most maxParts server-sized lines
// and queues them in order. maxParts <= 0 means unbounded. Returns the
// number of parts queued.
func (p *Pacer) Enqueue(content, prefix string, maxParts int) int {
	budget := p.lineLimit - utf8.RuneCountInString(prefix)
	if prefix != "" {
		// One character of the budget goes to the rotating marker.
		budget--
	}
	if budget < 1 {
		budget = 1
	}

	parts := splitContent(content, budget)
	if maxParts > 0 && len(parts) > maxParts {
		parts = parts[:maxParts]
	}

	for _, part := range parts {
		if prefix == "" {
			// Bare sends are raw commands; a marker anywhere in them
			// would corrupt an argument, and the line must keep its
			// leading "/" to execute.
			p.queue <- part
			continue
		}
		// The marker sits between the chat-command prefix and the body.
		p.queue <- prefix + p.nextMarker() + part
	}
	return len(parts)
}

// SpamBypass pads content with a rotating invisible marker so a line that
// is semantically identical to a very recent one still passes the server's
// duplicate filter. Used for recurring auto-responses.
func (p *Pacer) SpamBypass(content string) string {
	return content + " " + p.nextMarker()
}

func (p *Pacer) nextMarker() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := chat.InvisibleCharacters[p.markerIdx%len(chat.InvisibleCharacters)]
	p.markerIdx++
	return m
}

// splitContent splits content into pieces of at most budget characters,
// preferring word boundaries. Words longer than the budget are hard-split.
func splitContent(content string, budget int) []string {
	if utf8.RuneCountInString(content) <= budget {
		return []string{content}
	}

	var parts []string
	var line strings.Builder
	lineLen := 0

	flush := func() {
		if lineLen > 0 {
			parts = append(parts, line.String())
			line.Reset()
			lineLen = 0
		}
	}

	for _, word := range strings.Split(content, " ") {
		wordLen := utf8.RuneCountInString(word)

		// Hard-split oversized words.
		for wordLen > budget {
			flush()
			runes := []rune(word)
			parts = append(parts, string(runes[:budget]))
			word = string(runes[budget:])
			wordLen = utf8.RuneCountInString(word)
		}
		if wordLen == 0 {
			continue
		}

		needed := wordLen
		if lineLen > 0 {
			needed++ // joining space
		}
		if lineLen+needed > budget {
			flush()
		}
		if lineLen > 0 {
			line.WriteByte(' ')
			lineLen++
		}
		line.WriteString(word)
		lineLen += wordLen
	}
	flush()

	return parts
}
