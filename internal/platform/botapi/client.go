package botapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
)

// Options configures the Bot API transport.
type Options struct {
	Token string
	// Endpoint is a format string taking the token and the method name.
	// Empty selects the public Bot API.
	Endpoint    string
	PollTimeout time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Client talks to the Telegram Bot API over HTTPS long polling.
type Client struct {
	api     *tgbotapi.BotAPI
	timeout int
	logger  *zap.Logger
}

// New logs in with the bot token. The token is checked with getMe.
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		// Long polls must outlive the server-side timeout.
		hc = &http.Client{Timeout: opts.PollTimeout + 20*time.Second}
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, opts.Endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("bot api login: %w", err)
	}
	opts.Logger.Info("bot api ready", zap.String("username", api.Self.UserName), zap.Int64("id", api.Self.ID))

	return &Client{
		api:     api,
		timeout: int(opts.PollTimeout / time.Second),
		logger:  opts.Logger,
	}, nil
}

func (c *Client) Self(ctx context.Context) (domain.UserRef, error) {
	return userRef(&c.api.Self), nil
}

// Send delivers text as Markdown with link previews disabled. Text the
// API refuses to parse is resent verbatim.
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	_, err := c.api.Send(msg)
	if isParseError(err) {
		c.logger.Debug("markdown rejected, resending as plain text", zap.Int64("chat_id", chatID))
		msg.ParseMode = ""
		_, err = c.api.Send(msg)
	}
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func isParseError(err error) bool {
	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return false
	}
	return tgErr.Code == http.StatusBadRequest && strings.Contains(tgErr.Message, "can't parse entities")
}

func (c *Client) Admins(ctx context.Context, chatID int64) ([]domain.Admin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members, err := c.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("get chat administrators: %w", err)
	}

	admins := make([]domain.Admin, 0, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		admins = append(admins, domain.Admin{
			User:       userRef(m.User),
			Status:     m.Status,
			CanPromote: m.CanPromoteMembers,
		})
	}
	return admins, nil
}

func (c *Client) Leave(ctx context.Context, chatID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.LeaveChatConfig{ChatID: chatID}); err != nil {
		return fmt.Errorf("leave chat: %w", err)
	}
	return nil
}

func (c *Client) Updates(ctx context.Context, offset int) ([]domain.Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := c.api.GetUpdates(tgbotapi.UpdateConfig{
		Offset:  offset,
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	updates := make([]domain.Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, convertUpdate(u))
	}
	return updates, nil
}

func convertUpdate(u tgbotapi.Update) domain.Update {
	out := domain.Update{ID: u.UpdateID}
	switch {
	case u.Message != nil:
		out.Message = convertMessage(u.Message, false)
	case u.ChannelPost != nil:
		out.Message = convertMessage(u.ChannelPost, false)
	case u.EditedMessage != nil:
		out.Message = convertMessage(u.EditedMessage, true)
	case u.EditedChannelPost != nil:
		out.Message = convertMessage(u.EditedChannelPost, true)
	}
	return out
}

func convertMessage(m *tgbotapi.Message, edited bool) *domain.Message {
	if m.Chat == nil {
		return nil
	}
	chat := chatRef(m.Chat)
	msg := &domain.Message{
		Chat:   chat,
		Text:   m.Text,
		Edited: edited,
	}

	switch {
	case m.From != nil:
		msg.From = userRef(m.From)
	case m.SenderChat != nil:
		msg.From = domain.UserRef{ID: m.SenderChat.ID, Name: chatRef(m.SenderChat).Name}
	default:
		msg.From = domain.UserRef{ID: chat.ID, Name: chat.Name}
	}

	for i := range m.NewChatMembers {
		msg.NewMembers = append(msg.NewMembers, userRef(&m.NewChatMembers[i]))
	}
	return msg
}

func chatRef(c *tgbotapi.Chat) domain.ChatRef {
	return domain.ChatRef{ID: c.ID, Type: chatType(c.Type), Name: chatName(c)}
}

func chatType(t string) domain.ChatType {
	switch t {
	case "private":
		return domain.ChatPrivate
	case "channel":
		return domain.ChatChannel
	default:
		return domain.ChatGroup
	}
}

func chatName(c *tgbotapi.Chat) string {
	switch {
	case c.UserName != "":
		return c.UserName
	case c.Title != "":
		return c.Title
	default:
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
}

func userRef(u *tgbotapi.User) domain.UserRef {
	name := u.UserName
	if name == "" {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return domain.UserRef{ID: u.ID, Name: name}
}
