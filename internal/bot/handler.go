package bot

import (
	"context"
	"slices"
	"strings"

	"github.com/danhigham/tglab/internal/domain"
)

// HandleUpdate registers the chat an update comes from and runs the
// command it carries, if any. Messages without text only register the chat
// when they announce the bot itself joining it.
func (b *Bot) HandleUpdate(ctx context.Context, u domain.Update) error {
	m := u.Message
	if m == nil {
		return nil
	}
	b.metrics.Update()
	if m.Text == "" && !b.joined(m) {
		return nil
	}

	if err := b.resolve(ctx, m.Chat); err != nil {
		return err
	}
	if m.Edited || m.Text == "" {
		return nil
	}

	name, args, ok := b.parseCommand(m.Chat.Type, m.Text)
	if !ok {
		return nil
	}
	return b.execute(ctx, m, name, args)
}

func (b *Bot) joined(m *domain.Message) bool {
	return slices.ContainsFunc(m.NewMembers, func(u domain.UserRef) bool {
		return u.ID == b.self.ID
	})
}

// parseCommand splits text into a command name and its arguments. Outside
// private chats only slash-prefixed text is a command, and a command
// addressed to another bot with "@name" is ignored.
func (b *Bot) parseCommand(typ domain.ChatType, text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	slash := strings.HasPrefix(text, "/")
	if !slash && typ != domain.ChatPrivate {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return "", nil, false
	}

	name := fields[0]
	if i := strings.IndexByte(name, '@'); i > 0 {
		if !strings.EqualFold(strings.TrimPrefix(name[i:], "@"), strings.TrimPrefix(b.self.Name, "@")) {
			return "", nil, false
		}
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:], true
}
