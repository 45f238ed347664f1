package bot

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/metrics"
	"github.com/danhigham/tglab/internal/state"
)

type sent struct {
	chatID int64
	text   string
}

type fakePlatform struct {
	mu       sync.Mutex
	self     domain.UserRef
	admins   map[int64][]domain.Admin
	sent     []sent
	left     []int64
	leaveErr error
}

func (f *fakePlatform) Self(context.Context) (domain.UserRef, error) {
	return f.self, nil
}

func (f *fakePlatform) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID, text})
	return nil
}

func (f *fakePlatform) Admins(_ context.Context, chatID int64) ([]domain.Admin, error) {
	a, ok := f.admins[chatID]
	if !ok {
		return nil, errors.New("chat not found")
	}
	return a, nil
}

func (f *fakePlatform) Leave(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaveErr != nil {
		return f.leaveErr
	}
	f.left = append(f.left, chatID)
	return nil
}

func (f *fakePlatform) Updates(context.Context, int) ([]domain.Update, error) {
	return nil, nil
}

func (f *fakePlatform) drain() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

// countingBackend counts the documents written to the wrapped backend.
type countingBackend struct {
	state.Backend
	saves atomic.Int32
}

func (c *countingBackend) Save(doc []byte) error {
	c.saves.Add(1)
	return c.Backend.Save(doc)
}

var (
	alice = domain.UserRef{ID: 1, Name: "alice"}
	bob   = domain.UserRef{ID: 2, Name: "bob"}
	carol = domain.UserRef{ID: 3, Name: "carol"}
	dave  = domain.UserRef{ID: 4, Name: "dave"}
	eve   = domain.UserRef{ID: 5, Name: "eve"}

	devs = domain.ChatRef{ID: -100, Type: domain.ChatGroup, Name: "devs"}
	ops  = domain.ChatRef{ID: -200, Type: domain.ChatGroup, Name: "ops"}
)

func privateChat(u domain.UserRef) domain.ChatRef {
	return domain.ChatRef{ID: u.ID, Type: domain.ChatPrivate, Name: u.Name}
}

type harness struct {
	t        *testing.T
	bot      *Bot
	store    *state.Store
	backend  *countingBackend
	platform *fakePlatform
	metrics  *metrics.Metrics
	now      time.Time
	nextID   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	file, err := state.NewFileBackend(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	backend := &countingBackend{Backend: file}
	store, err := state.Open(backend, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	group := []domain.Admin{
		{User: bob, Status: domain.StatusCreator},
		{User: carol, Status: domain.StatusAdministrator, CanPromote: true},
		{User: dave, Status: domain.StatusAdministrator},
	}
	fp := &fakePlatform{
		self:   domain.UserRef{ID: 99, Name: "tglab_bot"},
		admins: map[int64][]domain.Admin{devs.ID: group, ops.ID: group},
	}

	h := &harness{
		t:        t,
		store:    store,
		backend:  backend,
		platform: fp,
		metrics:  metrics.New(prometheus.NewRegistry()),
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.bot = New(Options{
		Store:        store,
		Platform:     fp,
		Metrics:      h.metrics,
		MasterSecret: "master-secret",
		Now:          func() time.Time { return h.now },
	})
	require.NoError(t, h.bot.Start(context.Background()))
	require.Equal(t, fp.self, h.bot.Self())
	return h
}

// say delivers text from user in chat and returns the replies sent to it.
func (h *harness) say(chat domain.ChatRef, from domain.UserRef, text string) []string {
	h.t.Helper()
	h.nextID++
	err := h.bot.HandleUpdate(context.Background(), domain.Update{
		ID:      h.nextID,
		Message: &domain.Message{Chat: chat, From: from, Text: text},
	})
	require.NoError(h.t, err)

	var replies []string
	for _, s := range h.platform.drain() {
		assert.Equal(h.t, chat.ID, s.chatID)
		replies = append(replies, s.text)
	}
	return replies
}

func (h *harness) makeOwner(u domain.UserRef) {
	require.NoError(h.t, h.store.Update(func(r *state.Registry) bool {
		r.AddOwner(u)
		return true
	}))
}

func (h *harness) chat(id int64) domain.Chat {
	var out domain.Chat
	h.store.View(func(r *state.Registry) {
		if c := r.Chat(id); c != nil {
			out = *c
		}
	})
	return out
}

var tokenRe = regexp.MustCompile(`New token: (\S+)`)

func (h *harness) newToken(owner domain.UserRef, args string) string {
	h.t.Helper()
	replies := h.say(privateChat(owner), owner, "/getotp "+args)
	require.Len(h.t, replies, 1)
	m := tokenRe.FindStringSubmatch(replies[0])
	require.Len(h.t, m, 2, replies[0])
	return m[1]
}

func TestParseCommand(t *testing.T) {
	b := &Bot{self: domain.UserRef{Name: "tglab_bot"}}

	tests := map[string]struct {
		typ  domain.ChatType
		text string
		name string
		args []string
		ok   bool
	}{
		"private slash":     {domain.ChatPrivate, "/getotp group 5", "getotp", []string{"group", "5"}, true},
		"private bare":      {domain.ChatPrivate, "lsotp", "lsotp", []string{}, true},
		"group bare":        {domain.ChatGroup, "hello there", "", nil, false},
		"group addressed":   {domain.ChatGroup, "/start@tglab_bot", "start", []string{}, true},
		"group other bot":   {domain.ChatGroup, "/start@otherbot", "", nil, false},
		"uppercase":         {domain.ChatGroup, "/STOP", "stop", []string{}, true},
		"only slash":        {domain.ChatGroup, "/", "", nil, false},
		"surrounding space": {domain.ChatPrivate, "  /help  ", "help", []string{}, true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			gotName, gotArgs, ok := b.parseCommand(tt.typ, tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.name, gotName)
				assert.Equal(t, tt.args, gotArgs)
			}
		})
	}
}

func TestPrivilegePrecedence(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)

	// Registers the group without authorizing it.
	assert.Empty(t, h.say(devs, eve, "hi all"))

	assert.Equal(t, []string{msg(msgSorryOwner)}, h.say(devs, alice, "/stop"))
	assert.Equal(t, []string{msg(msgChatUnauth)}, h.say(devs, eve, "/stop"))

	// dave is an admin that cannot promote members, so holds no privilege.
	assert.Equal(t, []string{msg(msgChatUnauth)}, h.say(devs, dave, "/start"))

	assert.Equal(t, []string{msg(msgCmdUnknown)}, h.say(devs, carol, "/frobnicate"))
	assert.Equal(t, []string{msg(msgChatUnauth)}, h.say(devs, eve, "/frobnicate"))
	assert.Equal(t, []string{msg(msgCmdUnknown)}, h.say(devs, alice, "/frobnicate"))
}

func TestGroupAuthorization(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)

	replies := h.say(privateChat(alice), alice, "/getotp group 5")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "type group")
	assert.Contains(t, replies[0], "expires in 5 minutes")
	token := tokenRe.FindStringSubmatch(replies[0])[1]

	assert.Equal(t, []string{msg(msgChgUnknown)}, h.say(devs, carol, "/auth "+token))

	assert.Equal(t,
		[]string{"You have 1 minute to complete the challenge ⏳"},
		h.say(devs, carol, "/start"))

	h.now = h.now.Add(20 * time.Second)
	assert.Equal(t,
		[]string{"You have 40 seconds to complete the challenge ⏳"},
		h.say(devs, carol, "/start"), "second start reuses the live challenge")

	assert.Equal(t, []string{msg(msgChatAuth)}, h.say(devs, carol, "/auth "+token))

	c := h.chat(devs.ID)
	assert.True(t, c.Authorized)
	assert.False(t, c.Quiet)
	assert.Equal(t, bob, c.Owner)

	assert.Equal(t, []string{msg(msgChatAAuth)}, h.say(devs, carol, "/auth "+token))
	assert.Equal(t, []string{msg(msgChatAAuth)}, h.say(devs, carol, "/start"))

	// The token was consumed and cannot authorize a second chat.
	h.say(ops, carol, "/start")
	assert.Equal(t, []string{msg(msgOTPBadType)}, h.say(ops, carol, "/auth "+token))
	assert.False(t, h.chat(ops.ID).Authorized)
}

func TestAuth_TokenTypeMustMatchChat(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	token := h.newToken(alice, "channel")

	h.say(devs, carol, "/start")
	assert.Equal(t, []string{msg(msgOTPBadType)}, h.say(devs, carol, "/auth "+token))
	assert.False(t, h.chat(devs.ID).Authorized)
}

func TestAuth_TargetByID(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	token := h.newToken(alice, "group")

	h.say(devs, carol, "/start")
	assert.Equal(t, []string{msg(msgChatAuth)}, h.say(privateChat(carol), carol, "/auth -100 "+token))
	assert.True(t, h.chat(devs.ID).Authorized)

	assert.Equal(t, []string{msg(msgChatUnknown)}, h.say(privateChat(carol), carol, "/auth -999 "+token))
	assert.Equal(t, []string{msg(msgArgFew)}, h.say(privateChat(carol), carol, "/auth -100"))
}

func TestAuth_MasterSecret(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []string{msg(msgBotAuth)}, h.say(privateChat(eve), eve, "/auth master-secret"))
	assert.Equal(t, []string{msg(msgBotAAuth)}, h.say(privateChat(eve), eve, "/auth master-secret"))

	var owners []domain.UserRef
	h.store.View(func(r *state.Registry) { owners = append(owners, r.Owners...) })
	assert.Equal(t, []domain.UserRef{eve}, owners)

	// Private chats are not authorized by becoming an owner.
	assert.False(t, h.chat(eve.ID).Authorized)

	assert.Equal(t, []string{msg(msgChatAuth)}, h.say(privateChat(eve), eve, "/start"))
	assert.True(t, h.chat(eve.ID).Authorized)
}

func TestAuth_OwnerTokenIsSingleUse(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	token := h.newToken(alice, "owner")

	assert.Equal(t, []string{msg(msgBotAuth)}, h.say(devs, eve, "/auth "+token))
	assert.True(t, h.chat(devs.ID).Authorized, "owner grant from a group authorizes it")

	assert.Equal(t, []string{msg(msgChgUnknown)}, h.say(privateChat(dave), dave, "/auth "+token))

	var isOwner bool
	h.store.View(func(r *state.Registry) { isOwner = r.IsOwner(dave.ID) })
	assert.False(t, isOwner)
}

func TestAuth_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	token := h.newToken(alice, "owner 1")

	h.now = h.now.Add(time.Minute)
	assert.Equal(t, []string{msg(msgChgUnknown)}, h.say(privateChat(eve), eve, "/auth "+token))
}

func TestOwnerCommandGuards(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	pm := privateChat(alice)

	tests := []struct {
		chat domain.ChatRef
		from domain.UserRef
		text string
		want string
	}{
		{pm, alice, "/lsotp extra", msg(msgArgExtra, "extra")},
		{pm, alice, "/delotp", msg(msgArgFew)},
		{pm, alice, "/delotp 1 2", msg(msgArgExtra, "2")},
		{pm, alice, "/delotp x-y", msg(msgArgExtra, "x-y")},
		{pm, alice, "/getotp 2000", msg(msgOTPBadLifetime, 1, 1440)},
		{pm, alice, "/getotp 0", msg(msgOTPBadLifetime, 1, 1440)},
		{pm, alice, "/getotp foo", msg(msgArgExtra, "foo")},
		{pm, alice, "/getotp group channel", msg(msgArgExtra, "channel")},
		{pm, alice, "/getotp 1 2 3", msg(msgArgExtra, "3")},
		{pm, alice, "/lsotp", msg(msgOTPList, "(no entries)")},
		{devs, alice, "/lsotp", msg(msgCmdPrivate)},
		{privateChat(eve), eve, "/lsotp", msg(msgChatUnauth)},
		{devs, alice, "/lschat", msg(msgCmdPrivate)},
		{pm, alice, "/start a b", msg(msgArgExtra, "b")},
	}

	for _, tt := range tests {
		assert.Equal(t, []string{tt.want}, h.say(tt.chat, tt.from, tt.text), tt.text)
	}
}

func TestDeleteTokens(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	pm := privateChat(alice)

	for _, typ := range []string{"private", "group", "channel"} {
		h.newToken(alice, typ)
	}

	assert.Equal(t, []string{"Ok! Deleted 2 tokens"}, h.say(pm, alice, "/delotp 2,0,7"))
	h.store.View(func(r *state.Registry) {
		assert.Len(t, r.OTP, 1)
	})

	assert.Equal(t, []string{"Ok! Deleted 1 token"}, h.say(pm, alice, "/delotp 0"))
	assert.Equal(t, []string{msg(msgOTPFlush)}, h.say(pm, alice, "/flushotp"))

	assert.Equal(t, []string{"Ok! 1 owner gone"}, h.say(pm, alice, "/delowner 0"))
	assert.Equal(t, []string{msg(msgChatUnauth)}, h.say(pm, alice, "/lsowner"))
}

func TestStopQuietSpeak(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)

	assert.Equal(t, []string{msg(msgChatAuth)}, h.say(devs, alice, "/start"))

	assert.Equal(t, []string{msg(msgChatQuiet)}, h.say(devs, carol, "/quiet"))
	c := h.chat(devs.ID)
	assert.True(t, c.Authorized)
	assert.True(t, c.Quiet)

	assert.Equal(t, []string{msg(msgOK)}, h.say(devs, bob, "/speak"))
	assert.False(t, h.chat(devs.ID).Quiet)

	assert.Equal(t, []string{msg(msgChatUnauth)}, h.say(devs, eve, "/quiet"))

	assert.Equal(t, []string{
		msg(msgChatDeauth),
		"I'll leave in 10 minutes if I'm not requested before.",
	}, h.say(devs, carol, "/stop"))

	c = h.chat(devs.ID)
	assert.False(t, c.Authorized)
	assert.True(t, c.Quiet)
	assert.Equal(t, h.now.Add(10*time.Minute), c.Refresh)

	assert.Equal(t, []string{msg(msgSorryOwner)}, h.say(devs, alice, "/speak"))
	assert.Equal(t, []string{msg(msgChatUnknown)}, h.say(devs, alice, "/stop nowhere"))
}

func TestStart_ByName(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	h.say(devs, eve, "hello")

	assert.Equal(t, []string{msg(msgChatAuth)}, h.say(privateChat(alice), alice, "/start devs"))
	assert.True(t, h.chat(devs.ID).Authorized)
}

func TestListChats(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	h.say(devs, eve, "hello")
	h.say(ops, eve, "hello")

	replies := h.say(privateChat(carol), carol, "/lschat")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], `"devs"`)
	assert.Contains(t, replies[0], `"ops"`)
	assert.NotContains(t, replies[0], `"alice"`)

	replies = h.say(privateChat(eve), eve, "/lschat")
	require.Len(t, replies, 1)
	assert.NotContains(t, replies[0], `"devs"`)

	replies = h.say(privateChat(alice), alice, "/lschat")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], `"carol"`)
}

func TestSweep_EvictsExpiredChat(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.say(devs, eve, "hello")
	require.NoError(t, h.bot.Sweep(ctx))
	assert.Empty(t, h.platform.left)

	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.bot.Sweep(ctx))
	require.NoError(t, h.bot.Sweep(ctx))

	assert.Equal(t, []int64{devs.ID}, h.platform.left)
	assert.Zero(t, h.chat(devs.ID).ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Evictions))
}

func TestSweep_LeaveFailureKeepsChat(t *testing.T) {
	h := newHarness(t)
	h.platform.leaveErr = errors.New("network down")

	h.say(devs, eve, "hello")
	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.bot.Sweep(context.Background()))
	assert.Equal(t, devs.ID, h.chat(devs.ID).ID)

	h.platform.leaveErr = nil
	require.NoError(t, h.bot.Sweep(context.Background()))
	assert.Zero(t, h.chat(devs.ID).ID)
}

func TestSweep_RefreshesAuthorizedChats(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	h.say(devs, alice, "/start")
	h.say(privateChat(alice), alice, "/getotp")

	h.platform.admins[devs.ID] = []domain.Admin{
		{User: bob, Status: domain.StatusCreator},
		{User: dave, Status: domain.StatusAdministrator, CanPromote: true},
	}
	h.now = h.now.Add(time.Hour)
	require.NoError(t, h.bot.Sweep(context.Background()))

	c := h.chat(devs.ID)
	assert.True(t, c.Authorized)
	assert.Equal(t, []domain.UserRef{dave}, c.Admins)
	assert.Equal(t, h.now.Add(time.Minute), c.Refresh)
	assert.Empty(t, h.platform.left)

	h.store.View(func(r *state.Registry) {
		assert.Empty(t, r.OTP)
	})
}

func TestSweep_UnchangedSnapshotIsNotSaved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.say(devs, eve, "hello")

	saves := h.backend.saves.Load()
	require.NoError(t, h.bot.Sweep(ctx))
	require.NoError(t, h.bot.Sweep(ctx))
	assert.Equal(t, saves, h.backend.saves.Load())

	h.platform.admins[devs.ID] = []domain.Admin{
		{User: bob, Status: domain.StatusCreator},
		{User: dave, Status: domain.StatusAdministrator, CanPromote: true},
	}
	require.NoError(t, h.bot.Sweep(ctx))
	assert.Equal(t, saves+1, h.backend.saves.Load())
	assert.Equal(t, []domain.UserRef{dave}, h.chat(devs.ID).Admins)
}

func TestChallengeCommands(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	pm := privateChat(alice)

	h.say(devs, carol, "/start")
	h.say(ops, carol, "/start")

	replies := h.say(pm, alice, "/lschg")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "Here's the list of challenges:")
	assert.Contains(t, replies[0], "0: {\n  \"cid\": -100,")
	assert.Contains(t, replies[0], "1: {\n  \"cid\": -200,")
	assert.Contains(t, replies[0], `"uid": 3`)

	assert.Equal(t, []string{msg(msgChatUnauth)}, h.say(privateChat(eve), eve, "/lschg"))
	assert.Equal(t, []string{msg(msgArgExtra, "1-2-3")}, h.say(pm, alice, "/delchg 1-2-3"))

	assert.Equal(t, []string{"Ok! Deleted 1 challenge"}, h.say(pm, alice, "/delchg 0,5"))
	h.store.View(func(r *state.Registry) {
		require.Len(t, r.Challenges, 1)
		assert.Equal(t, ops.ID, r.Challenges[0].ChatID)
	})

	assert.Equal(t, []string{msg(msgChgFlush)}, h.say(pm, alice, "/flushchg"))
	assert.Equal(t, []string{msg(msgChgList, "(no entries)")}, h.say(pm, alice, "/lschg"))
}

func TestBroadcast(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	h.say(devs, alice, "/start")
	h.say(ops, alice, "/start")
	h.say(ops, alice, "/quiet")
	h.say(privateChat(eve), eve, "hello")

	assert.Equal(t, 1, h.bot.Broadcast(context.Background(), "pipeline passed"))
	assert.Equal(t, []sent{{devs.ID, "pipeline passed"}}, h.platform.drain())

	assert.Zero(t, h.bot.Broadcast(context.Background(), ""))
}

func TestHandleUpdate_NewMemberRegistersChat(t *testing.T) {
	h := newHarness(t)

	err := h.bot.HandleUpdate(context.Background(), domain.Update{
		ID: 1,
		Message: &domain.Message{
			Chat:       ops,
			From:       bob,
			NewMembers: []domain.UserRef{h.platform.self},
		},
	})
	require.NoError(t, err)

	c := h.chat(ops.ID)
	assert.Equal(t, ops.ID, c.ID)
	assert.True(t, c.Quiet)
	assert.Equal(t, []domain.UserRef{carol}, c.Admins)
	assert.Empty(t, h.platform.drain())
}

func TestHandleUpdate_OtherServiceMessagesAreIgnored(t *testing.T) {
	h := newHarness(t)

	for _, m := range []*domain.Message{
		{Chat: ops, From: bob, NewMembers: []domain.UserRef{eve}},
		{Chat: devs, From: bob},
	} {
		require.NoError(t, h.bot.HandleUpdate(context.Background(), domain.Update{ID: 1, Message: m}))
	}
	assert.Zero(t, h.chat(ops.ID).ID)
	assert.Zero(t, h.chat(devs.ID).ID)
	assert.Empty(t, h.platform.drain())
}

func TestHandleUpdate_EditedMessageIsNotExecuted(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)

	err := h.bot.HandleUpdate(context.Background(), domain.Update{
		ID:      1,
		Message: &domain.Message{Chat: privateChat(alice), From: alice, Text: "/getotp", Edited: true},
	})
	require.NoError(t, err)
	assert.Empty(t, h.platform.drain())
	assert.Equal(t, alice.ID, h.chat(alice.ID).ID)
}

func TestBroadcastDuringUpdatesAndSweeps(t *testing.T) {
	h := newHarness(t)
	h.makeOwner(alice)
	h.say(devs, alice, "/start")
	h.say(ops, alice, "/start")
	ctx := context.Background()

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			assert.Equal(t, 2, h.bot.Broadcast(ctx, "pipeline passed"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			chat := domain.ChatRef{ID: int64(-1000 - i), Type: domain.ChatGroup, Name: "team"}
			err := h.bot.HandleUpdate(ctx, domain.Update{
				ID:      i,
				Message: &domain.Message{Chat: chat, From: eve, Text: "hello"},
			})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			assert.NoError(t, h.bot.Sweep(ctx))
		}
	}()
	wg.Wait()

	h.store.View(func(r *state.Registry) {
		assert.Len(t, r.Chats, 2+rounds)
	})
	assert.True(t, h.chat(devs.ID).Authorized)
	assert.True(t, h.chat(ops.ID).Authorized)
	assert.Len(t, h.platform.drain(), 2*rounds)
}
