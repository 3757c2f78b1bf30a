package chat

import (
	"regexp"
	"strings"
)

// InvisibleCharacters are the zero-width markers the upstream server
// tolerates inside chat lines. Outgoing lines rotate through them to defeat
// duplicate-message suppression; incoming lines are stripped of them before
// classification. Protocol quirk of this specific server, see Pacer.
var InvisibleCharacters = []string{"ࠀ", "⭍"}

var invisibleReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(InvisibleCharacters))
	for _, c := range InvisibleCharacters {
		pairs = append(pairs, c, "")
	}
	return strings.NewReplacer(pairs...)
}()

// StripInvisible removes all invisible marker characters.
func StripInvisible(s string) string {
	return invisibleReplacer.Replace(s)
}

// Header shapes, in priority order:
//
//	Guild > [MVP+] Steve [Staff]: hi
//	Officer > [MVP+] Steve [Staff]: hi
//	Party > [MVP+] Steve: hi
//	From [MVP+] Steve: hi
//	To [MVP+] Steve: hi
var headerPattern = regexp.MustCompile(
	`^(?:(?P<channel>Guild|Officer|Party) > |(?P<from>From) |(?P<to>To) )(?:\[(?P<rank>[^\]]+)\] )?(?P<ign>\w+)(?: \[(?P<guildRank>\w+)\])?: `,
)

var headerGroup = func() map[string]int {
	idx := make(map[string]int)
	for i, name := range headerPattern.SubexpNames() {
		if name != "" {
			idx[name] = i
		}
	}
	return idx
}()

// Classifier turns raw chat-component strings into Messages. Pure and
// deterministic; safe for concurrent use once configured.
type Classifier struct {
	// BotIGN is the logged-in account name; lines authored by it are
	// flagged Self and never parsed for commands.
	BotIGN string
	// Prefix marks a line as addressed to the bot (e.g. "!").
	Prefix string
}

// Classify parses one raw line. Never returns nil and never panics on
// malformed input; lines without a known header come back as
// ChannelUnknown with a nil Author.
func (c *Classifier) Classify(raw string, pos Position) *Message {
	cleaned := strings.TrimSpace(StripInvisible(raw))

	msg := &Message{
		Raw:      raw,
		Cleaned:  cleaned,
		Position: pos,
		Channel:  ChannelUnknown,
		Content:  cleaned,
	}

	m := headerPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return msg
	}

	msg.Author = &Author{
		IGN:       m[headerGroup["ign"]],
		Rank:      m[headerGroup["rank"]],
		GuildRank: m[headerGroup["guildRank"]],
	}
	msg.Content = strings.TrimLeft(cleaned[len(m[0]):], " ")

	switch {
	case m[headerGroup["channel"]] != "":
		msg.Channel = Channel(strings.ToLower(m[headerGroup["channel"]]))
	case m[headerGroup["from"]] != "":
		msg.Channel = ChannelWhisper
	case m[headerGroup["to"]] != "":
		// Outgoing whisper echo: the visible ign is the recipient, the
		// author is the bridge account itself.
		msg.Channel = ChannelWhisper
		msg.Self = true
	}

	if c.BotIGN != "" && strings.EqualFold(msg.Author.IGN, c.BotIGN) {
		msg.Self = true
	}
	if msg.Self {
		return msg
	}

	msg.Invocation = c.parseInvocation(msg)
	return msg
}

func (c *Classifier) parseInvocation(msg *Message) *Invocation {
	content := msg.Content
	matched := ""

	switch {
	case msg.Channel == ChannelWhisper:
		// Whispers address the bot implicitly; a leading prefix is
		// tolerated and stripped anyway.
		if c.Prefix != "" && strings.HasPrefix(content, c.Prefix) {
			matched = c.Prefix
		}
	case c.Prefix != "" && strings.HasPrefix(content, c.Prefix):
		matched = c.Prefix
	case c.BotIGN != "" && hasMentionPrefix(content, c.BotIGN):
		matched = content[:1+len(c.BotIGN)]
	default:
		return nil
	}

	fields := strings.Fields(strings.TrimPrefix(content, matched))
	inv := &Invocation{Prefix: matched}
	if len(fields) == 0 {
		// Ping-only line, not a command.
		return inv
	}
	inv.Name = strings.ToLower(fields[0])
	inv.Args = fields[1:]
	return inv
}

func hasMentionPrefix(content, ign string) bool {
	if len(content) < 1+len(ign) || content[0] != '@' {
		return false
	}
	rest := content[1:]
	if !strings.EqualFold(rest[:len(ign)], ign) {
		return false
	}
	return len(rest) == len(ign) || rest[len(ign)] == ' '
}
