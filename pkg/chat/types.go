package chat

// Position is where the server displayed a raw line.
type Position int

const (
	PositionChat Position = iota
	PositionSystem
	PositionGameInfo
)

func (p Position) String() string {
	switch p {
	case PositionChat:
		return "chat"
	case PositionSystem:
		return "system"
	case PositionGameInfo:
		return "gameInfo"
	default:
		return "unknown"
	}
}

// Channel is the logical chat channel a classified line belongs to.
type Channel string

const (
	ChannelGuild   Channel = "guild"
	ChannelOfficer Channel = "officer"
	ChannelParty   Channel = "party"
	ChannelWhisper Channel = "whisper"
	ChannelUnknown Channel = "unknown"
)

// Author identifies the sender of a player-originated line. UUID is
// resolved lazily by a directory lookup and may stay empty.
type Author struct {
	IGN       string
	UUID      string
	Rank      string
	GuildRank string
}

// Invocation is a parsed bot command. Name is empty when the line only
// pinged the bot without a command token.
type Invocation struct {
	Prefix string
	Name   string
	Args   []string
}

// Message is one classified chat line. Immutable once constructed;
// consumers that outlive dispatch must copy what they need.
type Message struct {
	Raw        string
	Cleaned    string
	Position   Position
	Channel    Channel
	Author     *Author
	Content    string
	Self       bool
	Invocation *Invocation
}

// System reports whether the line carries no player author.
func (m *Message) System() bool {
	return m.Author == nil
}

// UserMessage reports whether the line is player chat from someone other
// than the bridge account.
func (m *Message) UserMessage() bool {
	return m.Channel != ChannelUnknown && !m.Self
}
