package chat

import (
	"reflect"
	"testing"
)

func TestClassifyHeaders(t *testing.T) {
	c := &Classifier{BotIGN: "BridgeBot", Prefix: "!"}

	tests := []struct {
		name    string
		raw     string
		channel Channel
		ign     string
		content string
		self    bool
	}{
		{
			name:    "guild with both ranks",
			raw:     "Guild > [MVP+] Steve [Staff]: hello there",
			channel: ChannelGuild,
			ign:     "Steve",
			content: "hello there",
		},
		{
			name:    "guild without hypixel rank",
			raw:     "Guild > Steve [Member]: hi",
			channel: ChannelGuild,
			ign:     "Steve",
			content: "hi",
		},
		{
			name:    "officer",
			raw:     "Officer > [VIP] Alex: secret",
			channel: ChannelOfficer,
			ign:     "Alex",
			content: "secret",
		},
		{
			name:    "party",
			raw:     "Party > [MVP] Jo: warp us",
			channel: ChannelParty,
			ign:     "Jo",
			content: "warp us",
		},
		{
			name:    "incoming whisper",
			raw:     "From [MVP+] Steve: psst",
			channel: ChannelWhisper,
			ign:     "Steve",
			content: "psst",
		},
		{
			name:    "outgoing whisper is self",
			raw:     "To [MVP+] Steve: reply",
			channel: ChannelWhisper,
			ign:     "Steve",
			content: "reply",
			self:    true,
		},
		{
			name:    "own guild message is self",
			raw:     "Guild > [MVP+] BridgeBot [Bot]: echoed",
			channel: ChannelGuild,
			ign:     "BridgeBot",
			content: "echoed",
			self:    true,
		},
		{
			name:    "invisible markers stripped",
			raw:     "ࠀGuild > Steve [Member]: marked⭍",
			channel: ChannelGuild,
			ign:     "Steve",
			content: "marked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := c.Classify(tt.raw, PositionChat)
			if msg.Channel != tt.channel {
				t.Errorf("channel = %q, want %q", msg.Channel, tt.channel)
			}
			if msg.Author == nil {
				t.Fatal("author = nil, want non-nil")
			}
			if msg.Author.IGN != tt.ign {
				t.Errorf("ign = %q, want %q", msg.Author.IGN, tt.ign)
			}
			if msg.Content != tt.content {
				t.Errorf("content = %q, want %q", msg.Content, tt.content)
			}
			if msg.Self != tt.self {
				t.Errorf("self = %v, want %v", msg.Self, tt.self)
			}
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := &Classifier{BotIGN: "BridgeBot", Prefix: "!"}

	lines := []string{
		"[MVP+] Steve joined the guild!",
		"The guild has completed Tier 3 of this week's Guild Quest!",
		"Guild > malformed header without colon",
		"Guild > [unclosed rank Steve: text",
		"",
		":::",
	}

	for _, raw := range lines {
		msg := c.Classify(raw, PositionSystem)
		if msg.Channel != ChannelUnknown {
			t.Errorf("Classify(%q).Channel = %q, want unknown", raw, msg.Channel)
		}
		if msg.Author != nil {
			t.Errorf("Classify(%q).Author = %+v, want nil", raw, msg.Author)
		}
	}
}

func TestClassifyInvocation(t *testing.T) {
	c := &Classifier{BotIGN: "BridgeBot", Prefix: "!"}

	tests := []struct {
		name string
		raw  string
		want *Invocation
	}{
		{
			name: "prefixed guild command",
			raw:  "Guild > Steve [Member]: !rank PlayerX mod",
			want: &Invocation{Prefix: "!", Name: "rank", Args: []string{"PlayerX", "mod"}},
		},
		{
			name: "whisper command without prefix",
			raw:  "From Steve: weight PlayerX",
			want: &Invocation{Name: "weight", Args: []string{"PlayerX"}},
		},
		{
			name: "whisper command with prefix",
			raw:  "From Steve: !weight",
			want: &Invocation{Prefix: "!", Name: "weight", Args: []string{}},
		},
		{
			name: "mention command",
			raw:  "Guild > Steve [Member]: @BridgeBot help me",
			want: &Invocation{Prefix: "@BridgeBot", Name: "help", Args: []string{"me"}},
		},
		{
			name: "ping only has no name",
			raw:  "Guild > Steve [Member]: !",
			want: &Invocation{Prefix: "!"},
		},
		{
			name: "plain chat is not a command",
			raw:  "Guild > Steve [Member]: just chatting",
			want: nil,
		},
		{
			name: "self is never a command",
			raw:  "Guild > BridgeBot [Bot]: !rank PlayerX mod",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.raw, PositionChat).Invocation
			if tt.want == nil {
				if got != nil {
					t.Fatalf("invocation = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("invocation = nil, want non-nil")
			}
			if got.Prefix != tt.want.Prefix || got.Name != tt.want.Name {
				t.Errorf("invocation = %+v, want %+v", got, tt.want)
			}
			if len(got.Args) != len(tt.want.Args) || (len(got.Args) > 0 && !reflect.DeepEqual(got.Args, tt.want.Args)) {
				t.Errorf("args = %v, want %v", got.Args, tt.want.Args)
			}
		})
	}
}
