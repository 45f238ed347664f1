package bot

import (
	"context"

	"github.com/danhigham/tglab/internal/state"
)

// Broadcast sends text to every authorized chat that is not quiet and
// returns how many deliveries succeeded.
func (b *Bot) Broadcast(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}

	var targets []int64
	b.store.View(func(r *state.Registry) {
		for _, c := range r.Chats {
			if c.Authorized && !c.Quiet {
				targets = append(targets, c.ID)
			}
		}
	})

	var sent int
	for _, id := range targets {
		if b.send(ctx, id, text) {
			b.metrics.Broadcast()
			sent++
		}
	}
	return sent
}

func (b *Bot) Online(ctx context.Context) int {
	return b.Broadcast(ctx, msg(msgOnline))
}

func (b *Bot) Offline(ctx context.Context) int {
	return b.Broadcast(ctx, msg(msgOffline))
}
