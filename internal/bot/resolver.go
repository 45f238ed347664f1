package bot

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/state"
)

// snapshot is the owner and admin view of a chat as reported by the
// platform.
type snapshot struct {
	owner  domain.UserRef
	admins []domain.UserRef
}

// snapshotOf keeps the creator as owner and the admins that may promote
// other members.
func snapshotOf(admins []domain.Admin) snapshot {
	s := snapshot{admins: []domain.UserRef{}}
	for _, a := range admins {
		switch {
		case a.Status == domain.StatusCreator:
			s.owner = a.User
		case a.Status == domain.StatusAdministrator && a.CanPromote:
			s.admins = append(s.admins, a.User)
		}
	}
	return s
}

// apply replaces the admin list and reports whether the chat changed. The
// owner is only replaced when the platform reported one.
func (s snapshot) apply(c *domain.Chat) bool {
	changed := !slices.Equal(c.Admins, s.admins)
	c.Admins = s.admins
	if s.owner.ID != 0 && c.Owner != s.owner {
		c.Owner = s.owner
		changed = true
	}
	return changed
}

// fetchSnapshot queries the platform. A private chat is owned by its user
// and needs no call. Must not be called inside a store critical section.
func (b *Bot) fetchSnapshot(ctx context.Context, ref domain.ChatRef) (snapshot, error) {
	if ref.Type == domain.ChatPrivate {
		return snapshot{
			owner:  domain.UserRef{ID: ref.ID, Name: ref.Name},
			admins: []domain.UserRef{},
		}, nil
	}
	admins, err := b.platform.Admins(ctx, ref.ID)
	if err != nil {
		b.metrics.PlatformError("admins")
		return snapshot{admins: []domain.UserRef{}}, err
	}
	return snapshotOf(admins), nil
}

func newChat(ref domain.ChatRef, now time.Time, d domain.Defaults) *domain.Chat {
	return &domain.Chat{
		ID:         ref.ID,
		Type:       ref.Type,
		Name:       ref.Name,
		Authorized: false,
		Quiet:      true,
		Admins:     []domain.UserRef{},
		Refresh:    now.Add(d.ChatTTL()),
	}
}

// resolve makes sure the chat is tracked, registering it on first sight.
// A failed admin fetch still registers the chat; the sweeper retries the
// snapshot on a later tick.
func (b *Bot) resolve(ctx context.Context, ref domain.ChatRef) error {
	var known, renamed bool
	b.store.View(func(r *state.Registry) {
		if c := r.Chat(ref.ID); c != nil {
			known = true
			renamed = ref.Name != "" && c.Name != ref.Name
		}
	})

	if known {
		if !renamed {
			return nil
		}
		return b.store.Update(func(r *state.Registry) bool {
			c := r.Chat(ref.ID)
			if c == nil || c.Name == ref.Name {
				return false
			}
			c.Name = ref.Name
			return true
		})
	}

	snap, err := b.fetchSnapshot(ctx, ref)
	if err != nil {
		b.logger.Warn("admin snapshot failed", zap.Int64("chat_id", ref.ID), zap.Error(err))
	}

	return b.store.Update(func(r *state.Registry) bool {
		if r.Chat(ref.ID) != nil {
			return false
		}
		c := newChat(ref, b.now(), r.Defaults)
		snap.apply(c)
		r.AddChat(c)
		b.logger.Info("chat registered",
			zap.Int64("chat_id", c.ID),
			zap.String("type", string(c.Type)),
			zap.String("name", c.Name),
		)
		return true
	})
}
