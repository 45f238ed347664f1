package mtproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/platform"
)

var errNotRunning = errors.New("mtproto client stopped before login")

// Options configures the MTProto transport.
type Options struct {
	APIID       int
	APIHash     string
	BotToken    string
	SessionDir  string
	PollTimeout time.Duration
	Logger      *zap.Logger
}

type chatInfo struct {
	peer tg.InputPeerClass
	ref  domain.ChatRef
}

// Client implements platform.Client over MTProto with a bot login. Updates
// pushed by the server are queued and served through the offset contract
// of Updates with locally assigned ids.
type Client struct {
	opts   Options
	logger *zap.Logger

	client *telegram.Client
	api    *tg.Client
	gaps   *updates.Manager
	self   domain.UserRef
	ready  chan struct{}
	done   chan struct{}

	queue *platform.Queue

	mu    sync.Mutex
	chats map[int64]chatInfo
	users map[int64]domain.UserRef
}

func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	return &Client{
		opts:   opts,
		logger: opts.Logger,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		queue:  platform.NewQueue(),
		chats:  make(map[int64]chatInfo),
		users:  make(map[int64]domain.UserRef),
	}
}

// Run connects, logs in as the bot if the session is not authorized yet
// and processes updates until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)

	dispatcher := tg.NewUpdateDispatcher()

	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		c.handleMessage(e, update.Message, false)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
		c.handleMessage(e, update.Message, false)
		return nil
	})
	dispatcher.OnEditMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateEditMessage) error {
		c.handleMessage(e, update.Message, true)
		return nil
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateEditChannelMessage) error {
		c.handleMessage(e, update.Message, true)
		return nil
	})

	c.gaps = updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  c.logger.Named("gaps"),
	})

	c.client = telegram.NewClient(c.opts.APIID, c.opts.APIHash, telegram.Options{
		Logger:         c.logger,
		UpdateHandler:  c.gaps,
		SessionStorage: &session.FileStorage{Path: filepath.Join(c.opts.SessionDir, "session.json")},
	})

	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := c.client.Auth().Bot(ctx, c.opts.BotToken); err != nil {
				return fmt.Errorf("bot login: %w", err)
			}
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		c.self = domain.UserRef{ID: self.ID, Name: formatUserName(self)}
		c.api = c.client.API()
		close(c.ready)

		c.logger.Info("mtproto ready", zap.Int64("id", self.ID), zap.String("username", self.Username))

		return c.gaps.Run(ctx, c.api, self.ID, updates.AuthOptions{IsBot: true})
	})
}

func (c *Client) waitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return errNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Self(ctx context.Context) (domain.UserRef, error) {
	if err := c.waitReady(ctx); err != nil {
		return domain.UserRef{}, err
	}
	return c.self, nil
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	peer := c.findPeer(chatID)
	if peer == nil {
		return fmt.Errorf("send to %d: %w", chatID, platform.ErrUnknownChat)
	}

	plain, entities := MarkdownToEntities(text)
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   plain,
		Entities:  entities,
		NoWebpage: true,
		RandomID:  randomID(),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) Admins(ctx context.Context, chatID int64) ([]domain.Admin, error) {
	if err := c.waitReady(ctx); err != nil {
		return nil, err
	}

	kind, id := splitChatID(chatID)
	switch kind {
	case peerChat:
		return c.chatAdmins(ctx, id)
	case peerChannel:
		ch, err := c.inputChannel(chatID)
		if err != nil {
			return nil, err
		}
		return c.channelAdmins(ctx, ch)
	default:
		return nil, nil
	}
}

func (c *Client) chatAdmins(ctx context.Context, id int64) ([]domain.Admin, error) {
	full, err := c.api.MessagesGetFullChat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get full chat: %w", err)
	}
	chatFull, ok := full.FullChat.(*tg.ChatFull)
	if !ok {
		return nil, fmt.Errorf("unexpected full chat type: %T", full.FullChat)
	}
	parts, ok := chatFull.Participants.(*tg.ChatParticipants)
	if !ok {
		return nil, fmt.Errorf("participants of chat %d are hidden", id)
	}

	users := usersToMap(full.Users)
	var admins []domain.Admin
	for _, p := range parts.Participants {
		switch p := p.(type) {
		case *tg.ChatParticipantCreator:
			admins = append(admins, domain.Admin{User: c.userRef(users, p.UserID), Status: domain.StatusCreator})
		case *tg.ChatParticipantAdmin:
			// Basic group admins can always appoint other admins.
			admins = append(admins, domain.Admin{User: c.userRef(users, p.UserID), Status: domain.StatusAdministrator, CanPromote: true})
		}
	}
	return admins, nil
}

func (c *Client) channelAdmins(ctx context.Context, ch *tg.InputChannel) ([]domain.Admin, error) {
	res, err := c.api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: ch,
		Filter:  &tg.ChannelParticipantsAdmins{},
		Limit:   200,
	})
	if err != nil {
		return nil, fmt.Errorf("get channel participants: %w", err)
	}
	parts, ok := res.(*tg.ChannelsChannelParticipants)
	if !ok {
		return nil, fmt.Errorf("unexpected participants type: %T", res)
	}

	users := usersToMap(parts.Users)
	var admins []domain.Admin
	for _, p := range parts.Participants {
		switch p := p.(type) {
		case *tg.ChannelParticipantCreator:
			admins = append(admins, domain.Admin{User: c.userRef(users, p.UserID), Status: domain.StatusCreator})
		case *tg.ChannelParticipantAdmin:
			admins = append(admins, domain.Admin{
				User:       c.userRef(users, p.UserID),
				Status:     domain.StatusAdministrator,
				CanPromote: p.AdminRights.AddAdmins,
			})
		}
	}
	return admins, nil
}

func (c *Client) Leave(ctx context.Context, chatID int64) error {
	if err := c.waitReady(ctx); err != nil {
		return err
	}

	kind, id := splitChatID(chatID)
	switch kind {
	case peerChat:
		if _, err := c.api.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
			ChatID: id,
			UserID: &tg.InputUserSelf{},
		}); err != nil {
			return fmt.Errorf("leave chat: %w", err)
		}
	case peerChannel:
		ch, err := c.inputChannel(chatID)
		if err != nil {
			return err
		}
		if _, err := c.api.ChannelsLeaveChannel(ctx, ch); err != nil {
			return fmt.Errorf("leave channel: %w", err)
		}
	}
	return nil
}

// Updates returns queued updates with ID >= offset, waiting up to the poll
// timeout for new ones.
func (c *Client) Updates(ctx context.Context, offset int) ([]domain.Update, error) {
	return c.queue.Wait(ctx, offset, c.opts.PollTimeout, c.done)
}

func (c *Client) handleMessage(e tg.Entities, m tg.MessageClass, edited bool) {
	c.cacheEntities(e)

	switch m := m.(type) {
	case *tg.Message:
		if m.Out {
			return
		}
		msg, ok := c.convertMessage(m.PeerID, m.FromID, edited)
		if !ok {
			return
		}
		msg.Text = m.Message
		c.queue.Push(msg)

	case *tg.MessageService:
		add, ok := m.Action.(*tg.MessageActionChatAddUser)
		if !ok || edited {
			return
		}
		msg, ok := c.convertMessage(m.PeerID, m.FromID, false)
		if !ok {
			return
		}
		c.mu.Lock()
		for _, id := range add.Users {
			msg.NewMembers = append(msg.NewMembers, c.lookupUser(id))
		}
		c.mu.Unlock()
		c.queue.Push(msg)
	}
}

func (c *Client) convertMessage(peerID, fromID tg.PeerClass, edited bool) (*domain.Message, bool) {
	chatID, ok := chatIDFromPeer(peerID)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.chats[chatID]
	if !ok {
		c.logger.Debug("message from uncached peer", zap.Int64("chat_id", chatID))
		return nil, false
	}

	msg := &domain.Message{Chat: info.ref, Edited: edited}
	switch p := fromID.(type) {
	case *tg.PeerUser:
		msg.From = c.lookupUser(p.UserID)
	case *tg.PeerChannel:
		id := channelChatID(p.ChannelID)
		msg.From = domain.UserRef{ID: id, Name: c.chats[id].ref.Name}
	default:
		// Private chats and channel posts carry no sender: it is the chat.
		msg.From = domain.UserRef{ID: info.ref.ID, Name: info.ref.Name}
	}
	return msg, true
}

func chatIDFromPeer(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return userChatID(p.UserID), true
	case *tg.PeerChat:
		return basicChatID(p.ChatID), true
	case *tg.PeerChannel:
		return channelChatID(p.ChannelID), true
	default:
		return 0, false
	}
}

// cacheEntities records input peers and display names carried by an update.
func (c *Client) cacheEntities(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, u := range e.Users {
		ref := domain.UserRef{ID: id, Name: formatUserName(u)}
		c.users[id] = ref
		c.chats[userChatID(id)] = chatInfo{
			peer: &tg.InputPeerUser{UserID: id, AccessHash: u.AccessHash},
			ref:  domain.ChatRef{ID: userChatID(id), Type: domain.ChatPrivate, Name: ref.Name},
		}
	}
	for id, ch := range e.Chats {
		c.chats[basicChatID(id)] = chatInfo{
			peer: &tg.InputPeerChat{ChatID: id},
			ref:  domain.ChatRef{ID: basicChatID(id), Type: domain.ChatGroup, Name: ch.Title},
		}
	}
	for id, ch := range e.Channels {
		typ := domain.ChatGroup
		if ch.Broadcast {
			typ = domain.ChatChannel
		}
		name := ch.Username
		if name == "" {
			name = ch.Title
		}
		c.chats[channelChatID(id)] = chatInfo{
			peer: &tg.InputPeerChannel{ChannelID: id, AccessHash: ch.AccessHash},
			ref:  domain.ChatRef{ID: channelChatID(id), Type: typ, Name: name},
		}
	}
}

func (c *Client) findPeer(chatID int64) tg.InputPeerClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chats[chatID].peer
}

func (c *Client) inputChannel(chatID int64) (*tg.InputChannel, error) {
	p, ok := c.findPeer(chatID).(*tg.InputPeerChannel)
	if !ok {
		return nil, fmt.Errorf("channel %d: %w", chatID, platform.ErrUnknownChat)
	}
	return &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash}, nil
}

// lookupUser must be called with c.mu held.
func (c *Client) lookupUser(id int64) domain.UserRef {
	if u, ok := c.users[id]; ok {
		return u
	}
	return domain.UserRef{ID: id}
}

func (c *Client) userRef(users map[int64]*tg.User, id int64) domain.UserRef {
	if u, ok := users[id]; ok {
		return domain.UserRef{ID: id, Name: formatUserName(u)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupUser(id)
}

// formatUserName prefers the username, which is what owners see in listings.
func formatUserName(u *tg.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// usersToMap converts a UserClass slice to a map of User by ID.
func usersToMap(users []tg.UserClass) map[int64]*tg.User {
	m := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		m[user.ID] = user
	}
	return m
}

func randomID() int64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
