package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

var totalMembersPattern = regexp.MustCompile(`Total Members:\D*(\d+)`)

// RefreshRoster asks the server for the member list footer and updates the
// guild record. Run periodically by the scheduler and after linking.
func (b *Bridge) RefreshRoster(ctx context.Context) error {
	guildName := b.LinkedGuild()
	if guildName == "" {
		return fmt.Errorf("roster refresh: not linked")
	}

	result, err := b.conn.RunCommand(ctx, minecraft.Command{
		Text:            "/g list",
		Success:         totalMembersPattern,
		Timeout:         b.cfg.CommandTimeout(),
		RejectOnTimeout: true,
	})
	if err != nil {
		return fmt.Errorf("roster refresh: %w", err)
	}
	count, err := strconv.Atoi(result)
	if err != nil {
		return fmt.Errorf("roster refresh: bad member count %q", result)
	}

	guild, err := b.store.Guilds().Get(ctx, guildName)
	if err != nil {
		return err
	}
	if guild == nil {
		guild = &repository.Guild{Name: guildName}
	}
	guild.MemberCount = count
	guild.RefreshedAt = time.Now()
	return b.store.Guilds().Upsert(ctx, *guild)
}
