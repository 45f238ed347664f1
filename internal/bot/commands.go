package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/secret"
	"github.com/danhigham/tglab/internal/state"
	"github.com/danhigham/tglab/internal/textfmt"
)

const (
	otpLength      = 8
	minOTPLifetime = 1
	maxOTPLifetime = 1440
	stopGrace      = 10 * time.Minute
)

// request is one command being executed inside a store critical section.
// Replies are collected and sent once the lock is released.
type request struct {
	bot     *Bot
	reg     *state.Registry
	now     time.Time
	chat    *domain.Chat
	from    domain.UserRef
	args    []string
	actor   actor
	replies []string
}

func (q *request) reply(key msgKey, args ...any) {
	q.replies = append(q.replies, msg(key, args...))
}

func (q *request) checkArgs(min, max int) bool {
	switch {
	case len(q.args) < min:
		q.reply(msgArgFew)
		return false
	case len(q.args) > max:
		q.reply(msgArgExtra, strings.Join(q.args[max:], " "))
		return false
	}
	return true
}

// checkOwnerCmd gates commands reserved to bot owners in private chats.
func (q *request) checkOwnerCmd(min, max int) bool {
	if !q.actor.botOwner() {
		q.reply(msgChatUnauth)
		return false
	}
	if q.chat.Type != domain.ChatPrivate {
		q.reply(msgCmdPrivate)
		return false
	}
	return q.checkArgs(min, max)
}

// target resolves the optional chat argument: none means the arrival
// chat, an integer is a chat id and anything else a display name.
func (q *request) target() *domain.Chat {
	if len(q.args) == 0 {
		return q.chat
	}
	return q.lookup(q.args[0])
}

func (q *request) lookup(ref string) *domain.Chat {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return q.reg.Chat(id)
	}
	return q.reg.ChatByName(ref)
}

var commandHelp = []struct{ name, usage string }{
	{"start", "[chat] - begin authorizing a chat"},
	{"auth", "[chat-id] secret - complete authorization with a token"},
	{"stop", "[chat] - deauthorize a chat"},
	{"quiet", "[chat] - stop relaying events"},
	{"speak", "[chat] - resume relaying events"},
	{"lschat", "- list the chats you manage"},
	{"getotp", "[type] [minutes] - create a one-time token"},
	{"lsotp", "- list pending tokens"},
	{"delotp", "range - delete tokens, e.g. 0,2-4"},
	{"flushotp", "- delete all tokens"},
	{"lschg", "- list pending challenges"},
	{"delchg", "range - delete challenges"},
	{"flushchg", "- delete all challenges"},
	{"lsowner", "- list bot owners"},
	{"delowner", "range - remove bot owners"},
	{"help", "- show this list"},
}

var commands = map[string]func(q *request){
	"lsotp":    cmdListOTP,
	"getotp":   cmdGetOTP,
	"delotp":   cmdDeleteOTP,
	"flushotp": cmdFlushOTP,
	"lschg":    cmdListChallenges,
	"delchg":   cmdDeleteChallenges,
	"flushchg": cmdFlushChallenges,
	"lsowner":  cmdListOwners,
	"delowner": cmdDeleteOwners,
	"start":    cmdStart,
	"auth":     cmdAuth,
	"stop":     cmdStop,
	"lschat":   cmdListChats,
	"quiet":    cmdQuiet,
	"speak":    cmdSpeak,
	"help":     cmdHelp,
}

// execute runs a parsed command against the registry and sends the
// replies to the arrival chat. The registry is saved after every command.
func (b *Bot) execute(ctx context.Context, m *domain.Message, name string, args []string) error {
	run, ok := commands[name]
	label := name
	if !ok {
		run = cmdUnknown
		label = "unknown"
	}
	b.metrics.Command(label)
	b.logger.Debug("command",
		zap.String("command", name),
		zap.Int64("chat_id", m.Chat.ID),
		zap.Int64("user_id", m.From.ID),
	)

	var replies []string
	err := b.store.Update(func(r *state.Registry) bool {
		now := b.now()
		chat := r.Chat(m.Chat.ID)
		if chat == nil {
			chat = newChat(m.Chat, now, r.Defaults)
			r.AddChat(chat)
		}
		q := &request{
			bot:   b,
			reg:   r,
			now:   now,
			chat:  chat,
			from:  m.From,
			args:  args,
			actor: actor{reg: r, user: m.From},
		}
		run(q)
		replies = q.replies
		return true
	})

	for _, text := range replies {
		if b.send(ctx, m.Chat.ID, text) {
			b.metrics.Reply()
		}
	}

	if err != nil {
		return fmt.Errorf("command %s: %w", name, err)
	}
	return nil
}

func cmdListOTP(q *request) {
	if q.checkOwnerCmd(0, 0) {
		q.reply(msgOTPList, textfmt.List(q.now, q.reg.OTP))
	}
}

func cmdGetOTP(q *request) {
	if !q.checkOwnerCmd(0, 2) {
		return
	}

	var (
		typ      domain.TokenType
		lifetime int
	)
	for _, arg := range q.args {
		if typ == "" {
			if t, ok := domain.ParseTokenType(arg); ok {
				typ = t
				continue
			}
		}
		if lifetime == 0 && isDecimal(arg) {
			n, err := strconv.Atoi(arg)
			if err != nil || n < minOTPLifetime || n > maxOTPLifetime {
				q.reply(msgOTPBadLifetime, minOTPLifetime, maxOTPLifetime)
				return
			}
			lifetime = n
			continue
		}
		q.reply(msgArgExtra, arg)
		return
	}

	ttl := q.reg.Defaults.OTPTTL()
	if lifetime != 0 {
		ttl = time.Duration(lifetime) * time.Minute
	}
	if typ == "" {
		typ = q.reg.Defaults.TokenType()
	}

	plain, err := secret.Generate(otpLength)
	if err != nil {
		q.bot.logger.Error("generate token", zap.Error(err))
		return
	}
	q.reg.OTP = append(q.reg.OTP, domain.OTPToken{
		Secret:  secret.Hash(plain),
		Type:    typ,
		Refresh: q.now.Add(ttl),
	})
	q.reply(msgOTPNew, plain, typ, textfmt.Duration(ttl))
}

func cmdDeleteOTP(q *request) {
	idx, ok := q.rangeArg()
	if !ok {
		return
	}
	var n int
	q.reg.OTP, n = deleteIndices(q.reg.OTP, idx)
	q.reply(msgOTPRemove, n, textfmt.Plural(n))
}

func cmdFlushOTP(q *request) {
	if q.checkOwnerCmd(0, 0) {
		q.reg.OTP = q.reg.OTP[:0]
		q.reply(msgOTPFlush)
	}
}

func cmdListChallenges(q *request) {
	if q.checkOwnerCmd(0, 0) {
		q.reply(msgChgList, textfmt.List(q.now, q.reg.Challenges))
	}
}

func cmdDeleteChallenges(q *request) {
	idx, ok := q.rangeArg()
	if !ok {
		return
	}
	var n int
	q.reg.Challenges, n = deleteIndices(q.reg.Challenges, idx)
	q.reply(msgChgRemove, n, textfmt.Plural(n))
}

func cmdFlushChallenges(q *request) {
	if q.checkOwnerCmd(0, 0) {
		q.reg.Challenges = q.reg.Challenges[:0]
		q.reply(msgChgFlush)
	}
}

func cmdListOwners(q *request) {
	if q.checkOwnerCmd(0, 0) {
		q.reply(msgOwnerList, textfmt.List(q.now, q.reg.Owners))
	}
}

func cmdDeleteOwners(q *request) {
	idx, ok := q.rangeArg()
	if !ok {
		return
	}
	var n int
	q.reg.Owners, n = deleteIndices(q.reg.Owners, idx)
	q.reply(msgOwnerRemove, n, textfmt.Plural(n))
}

// rangeArg validates the single range argument of the delete commands.
func (q *request) rangeArg() ([]int, bool) {
	if !q.checkOwnerCmd(1, 1) {
		return nil, false
	}
	idx, err := textfmt.ParseRangeList(q.args[0])
	if err != nil {
		q.reply(msgArgExtra, q.args[0])
		return nil, false
	}
	return idx, true
}

// deleteIndices removes the entries at the ascending indices idx, from the
// highest down so earlier removals do not shift later ones. Out of range
// indices are ignored.
func deleteIndices[T any](items []T, idx []int) ([]T, int) {
	var n int
	for i := len(idx) - 1; i >= 0; i-- {
		k := idx[i]
		if k < 0 || k >= len(items) {
			continue
		}
		items = append(items[:k], items[k+1:]...)
		n++
	}
	return items, n
}

func cmdStart(q *request) {
	if !q.checkArgs(0, 1) {
		return
	}
	tc := q.target()
	switch {
	case tc == nil:
		q.reply(msgChatUnknown)
		return
	case !q.actor.privileged(tc):
		q.reply(msgChatUnauth)
		return
	case tc.Authorized:
		q.reply(msgChatAAuth)
		return
	case q.actor.botOwner():
		tc.Authorized = true
		tc.Quiet = false
		q.reply(msgChatAuth)
		return
	}

	chg := q.reg.FindChallenge(tc.ID, q.from.ID, q.now)
	if chg == nil {
		q.reg.Challenges = append(q.reg.Challenges, domain.Challenge{
			ChatID:  tc.ID,
			UserID:  q.from.ID,
			Refresh: q.now.Add(q.reg.Defaults.ChallengeTTL()),
		})
		chg = &q.reg.Challenges[len(q.reg.Challenges)-1]
	}
	q.reply(msgChgNew, textfmt.Between(q.now, chg.Refresh))
}

func cmdAuth(q *request) {
	if !q.checkArgs(1, 2) {
		return
	}

	var (
		chatArg string
		digest  string
	)
	for _, arg := range q.args {
		if chatArg == "" && isChatID(arg) {
			chatArg = arg
			continue
		}
		if digest == "" {
			digest = secret.Hash(arg)
			continue
		}
		q.reply(msgArgExtra, arg)
		return
	}
	if digest == "" {
		q.reply(msgArgFew)
		return
	}

	tc := q.chat
	if chatArg != "" {
		tc = q.lookup(chatArg)
	}
	if tc == nil {
		q.reply(msgChatUnknown)
		return
	}

	otp := q.reg.FindOTP(digest, domain.TokenOwner, q.now)
	chg := q.reg.FindChallenge(tc.ID, q.from.ID, q.now)

	// Bot ownership is granted only from the chat the secret is sent in.
	if tc.ID == q.chat.ID && (otp != nil || digest == q.bot.masterHash) {
		if q.actor.botOwner() {
			q.reply(msgBotAAuth)
			return
		}
		if otp != nil {
			otp.Refresh = q.now
		}
		if chg != nil {
			chg.Refresh = q.now
		}
		if tc.Type != domain.ChatPrivate {
			tc.Authorized = true
		}
		q.reg.AddOwner(q.from)
		q.bot.logger.Info("bot owner added", zap.Int64("user_id", q.from.ID), zap.String("name", q.from.Name))
		q.reply(msgBotAuth)
		return
	}

	if tc.Authorized {
		q.reply(msgChatAAuth)
		return
	}
	if chg == nil {
		q.reply(msgChgUnknown)
		return
	}
	otp = q.reg.FindOTP(digest, domain.TokenType(tc.Type), q.now)
	if otp == nil {
		q.reply(msgOTPBadType)
		return
	}

	tc.Authorized = true
	tc.Quiet = false
	otp.Refresh = q.now
	chg.Refresh = q.now
	q.bot.logger.Info("chat authorized", zap.Int64("chat_id", tc.ID), zap.Int64("user_id", q.from.ID))
	q.reply(msgChatAuth)
}

func cmdStop(q *request) {
	if !q.checkArgs(0, 1) {
		return
	}
	tc := q.target()
	if tc == nil {
		q.reply(msgChatUnknown)
		return
	}

	switch {
	case tc.Authorized && q.actor.privileged(tc):
		tc.Authorized = false
		tc.Quiet = true
		tc.Refresh = q.now.Add(stopGrace)
		q.reply(msgChatDeauth)
		if tc.Type != domain.ChatPrivate {
			q.reply(msgChatLeave, textfmt.Between(q.now, tc.Refresh))
		}
	case q.actor.botOwner():
		q.reply(msgSorryOwner)
	default:
		q.reply(msgChatUnauth)
	}
}

func cmdListChats(q *request) {
	if q.chat.Type != domain.ChatPrivate {
		q.reply(msgCmdPrivate)
		return
	}
	if !q.checkArgs(0, 0) {
		return
	}

	chats := q.reg.Chats
	if !q.actor.botOwner() {
		chats = nil
		for _, c := range q.reg.Chats {
			if q.actor.chatOwner(c) || q.actor.chatAdmin(c) {
				chats = append(chats, c)
			}
		}
	}
	q.reply(msgChatList, textfmt.List(q.now, chats))
}

func cmdQuiet(q *request) {
	setQuiet(q, true)
}

func cmdSpeak(q *request) {
	setQuiet(q, false)
}

func setQuiet(q *request, quiet bool) {
	if !q.checkArgs(0, 1) {
		return
	}
	tc := q.target()
	if tc == nil {
		q.reply(msgChatUnknown)
		return
	}

	if !tc.Authorized || !q.actor.privileged(tc) {
		if q.actor.botOwner() {
			q.reply(msgSorryOwner)
		} else {
			q.reply(msgChatUnauth)
		}
		return
	}

	tc.Quiet = quiet
	if quiet {
		q.reply(msgChatQuiet)
	} else {
		q.reply(msgOK)
	}
}

func cmdHelp(q *request) {
	if !q.checkArgs(0, 0) {
		return
	}
	var b strings.Builder
	for _, c := range commandHelp {
		fmt.Fprintf(&b, "/%s %s\n", c.name, c.usage)
	}
	q.reply(msgHelp, b.String())
}

func cmdUnknown(q *request) {
	if q.actor.privileged(q.chat) {
		q.reply(msgCmdUnknown)
	} else {
		q.reply(msgChatUnauth)
	}
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isChatID accepts optionally negative integers, since group and channel
// ids are negative.
func isChatID(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
