package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/state"
)

type expirable interface {
	Expired(now time.Time) bool
}

// prune drops expired entries in place.
func prune[T expirable](items []T, now time.Time) ([]T, bool) {
	out := items[:0]
	for _, it := range items {
		if !it.Expired(now) {
			out = append(out, it)
		}
	}
	return out, len(out) != len(items)
}

// Sweep expires tokens and challenges, leaves unauthorized chats whose
// grace period ran out and refreshes admin snapshots of the others.
// Platform calls run between two critical sections; a failed call is
// logged and retried on the next sweep.
func (b *Bot) Sweep(ctx context.Context) error {
	var (
		evict, refresh []domain.ChatRef
		pruned         bool
	)

	now := b.now()
	err := b.store.Update(func(r *state.Registry) bool {
		var otpChanged, chgChanged bool
		r.OTP, otpChanged = prune(r.OTP, now)
		r.Challenges, chgChanged = prune(r.Challenges, now)
		pruned = otpChanged || chgChanged

		for _, c := range r.Chats {
			expired := c.Expired(now)
			switch {
			case !c.Authorized && expired:
				evict = append(evict, c.Ref())
			case !c.Authorized || expired:
				refresh = append(refresh, c.Ref())
			}
		}
		// Persist now only when no second pass follows.
		return pruned && len(evict) == 0 && len(refresh) == 0
	})
	if err != nil {
		return err
	}
	if len(evict) == 0 && len(refresh) == 0 {
		return nil
	}

	left := make(map[int64]bool, len(evict))
	for _, ref := range evict {
		if ref.Type != domain.ChatPrivate {
			if err := b.platform.Leave(ctx, ref.ID); err != nil {
				b.metrics.PlatformError("leave")
				b.logger.Warn("leave chat failed", zap.Int64("chat_id", ref.ID), zap.Error(err))
				continue
			}
		}
		left[ref.ID] = true
	}

	snaps := make(map[int64]snapshot, len(refresh))
	for _, ref := range refresh {
		if ctx.Err() != nil {
			break
		}
		snap, err := b.fetchSnapshot(ctx, ref)
		if err != nil {
			b.logger.Warn("admin snapshot failed", zap.Int64("chat_id", ref.ID), zap.Error(err))
			continue
		}
		snaps[ref.ID] = snap
	}

	return b.store.Update(func(r *state.Registry) bool {
		changed := pruned
		now := b.now()
		for id := range left {
			c := r.Chat(id)
			// The chat may have been authorized while the leave was in flight.
			if c == nil || c.Authorized || !c.Expired(now) {
				continue
			}
			r.RemoveChat(id)
			b.metrics.Eviction()
			b.logger.Info("chat evicted", zap.Int64("chat_id", id), zap.String("name", c.Name))
			changed = true
		}
		for id, snap := range snaps {
			c := r.Chat(id)
			if c == nil {
				continue
			}
			if snap.apply(c) {
				changed = true
			}
			if c.Authorized {
				if refresh := now.Add(r.Defaults.ChatTTL()); !c.Refresh.Equal(refresh) {
					c.Refresh = refresh
					changed = true
				}
			}
		}
		return changed
	})
}
