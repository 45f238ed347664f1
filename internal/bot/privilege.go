package bot

import (
	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/state"
)

// actor answers privilege questions about the sender of a command. It
// reads the registry and is only valid inside a Store critical section.
type actor struct {
	reg  *state.Registry
	user domain.UserRef
}

func (a actor) botOwner() bool {
	return a.reg.IsOwner(a.user.ID)
}

func (a actor) chatOwner(c *domain.Chat) bool {
	return c.OwnedBy(a.user.ID)
}

func (a actor) chatAdmin(c *domain.Chat) bool {
	return c.AdministeredBy(a.user.ID)
}

// privileged checks bot ownership first, so bot owners act with
// privilege in chats where they hold no role.
func (a actor) privileged(c *domain.Chat) bool {
	return a.botOwner() || a.chatOwner(c) || a.chatAdmin(c)
}
