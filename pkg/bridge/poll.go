package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/collector"
)

// PollResult is one option's tally after a poll closes.
type PollResult struct {
	Option string
	Votes  int
}

// RunPoll cross-posts a numbered poll to the given channel and collects
// votes from both sides for the duration: a bare option number in game chat
// or in the bound Discord channel. One vote per voter, last vote wins;
// voters with a linked account are deduplicated across sides. Closes with a
// broadcast tally.
func (b *Bridge) RunPoll(ctx context.Context, channelType chat.Channel, question string, options []string, duration time.Duration) ([]PollResult, error) {
	if len(options) < 2 {
		return nil, fmt.Errorf("poll needs at least 2 options, got %d", len(options))
	}
	if duration <= 0 {
		return nil, fmt.Errorf("poll duration must be positive")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "POLL: %s ", question)
	for i, opt := range options {
		fmt.Fprintf(&sb, "[%d] %s ", i+1, opt)
	}
	fmt.Fprintf(&sb, "- vote with the option number (%s)", duration)
	b.Broadcast(ctx, channelType, sb.String())

	parseVote := func(content string) (int, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(content))
		if err != nil || n < 1 || n > len(options) {
			return 0, false
		}
		return n - 1, true
	}

	var votesMu sync.Mutex
	votes := make(map[string]int)

	b.setPlatformTap(func(bind *Binding, m *discordgo.MessageCreate) bool {
		if bind.channelType != channelType || m.Author == nil || m.Author.Bot {
			return false
		}
		choice, ok := parseVote(m.Content)
		if !ok {
			return false
		}
		votesMu.Lock()
		votes[b.voterKey(ctx, m.Author.ID)] = choice
		votesMu.Unlock()
		return true
	})
	defer b.setPlatformTap(nil)

	col, err := collector.New(b.bus, func(m *chat.Message, _ []*chat.Message) bool {
		if m.Channel != channelType || m.Self || m.Author == nil {
			return false
		}
		_, ok := parseVote(m.Content)
		return ok
	}, collector.Options{Time: duration})
	if err != nil {
		return nil, err
	}

	for {
		msg, err := col.Next(ctx)
		if err != nil {
			break
		}
		choice, _ := parseVote(msg.Content)
		votesMu.Lock()
		votes["ign:"+strings.ToLower(msg.Author.IGN)] = choice
		votesMu.Unlock()
	}

	results := make([]PollResult, len(options))
	for i, opt := range options {
		results[i] = PollResult{Option: opt}
	}
	votesMu.Lock()
	for _, choice := range votes {
		results[choice].Votes++
	}
	votesMu.Unlock()

	sb.Reset()
	fmt.Fprintf(&sb, "POLL CLOSED: %s ", question)
	for _, r := range results {
		fmt.Fprintf(&sb, "| %s: %d ", r.Option, r.Votes)
	}
	b.Broadcast(ctx, channelType, strings.TrimSpace(sb.String()))

	return results, nil
}

// voterKey collapses a Discord voter onto their linked in-game identity
// when one exists, so one person cannot vote once per side.
func (b *Bridge) voterKey(ctx context.Context, discordID string) string {
	player, err := b.store.Players().GetByDiscordID(ctx, discordID)
	if err == nil && player != nil {
		return "ign:" + strings.ToLower(player.IGN)
	}
	return "discord:" + discordID
}
