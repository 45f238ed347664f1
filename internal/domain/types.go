package domain

import "time"

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// TokenType is the scope of a one-time token. Every ChatType is also a
// valid TokenType; TokenOwner additionally grants bot ownership.
type TokenType string

const (
	TokenOwner   TokenType = "owner"
	TokenPrivate TokenType = TokenType(ChatPrivate)
	TokenGroup   TokenType = TokenType(ChatGroup)
	TokenChannel TokenType = TokenType(ChatChannel)
)

// ParseTokenType reports whether s names a token scope.
func ParseTokenType(s string) (TokenType, bool) {
	switch t := TokenType(s); t {
	case TokenOwner, TokenPrivate, TokenGroup, TokenChannel:
		return t, true
	}
	return "", false
}

type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ChatRef identifies a chat as reported by the messaging platform.
type ChatRef struct {
	ID   int64
	Type ChatType
	Name string
}

// Chat is a tracked chat. Refresh is the moment the chat must be
// re-checked: unauthorized chats are left once it passes.
type Chat struct {
	ID         int64     `json:"id"`
	Type       ChatType  `json:"type"`
	Name       string    `json:"name"`
	Authorized bool      `json:"authorized"`
	Quiet      bool      `json:"quiet"`
	Owner      UserRef   `json:"owner"`
	Admins     []UserRef `json:"admins"`
	Refresh    time.Time `json:"refresh"`
}

func (c *Chat) Ref() ChatRef {
	return ChatRef{ID: c.ID, Type: c.Type, Name: c.Name}
}

func (c *Chat) Expired(now time.Time) bool {
	return !now.Before(c.Refresh)
}

func (c *Chat) OwnedBy(userID int64) bool {
	return c.Owner.ID != 0 && c.Owner.ID == userID
}

func (c *Chat) AdministeredBy(userID int64) bool {
	for _, a := range c.Admins {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// OTPToken holds the hash of a one-time secret. It is consumed by moving
// Refresh to the consumption time, after which it no longer matches.
type OTPToken struct {
	Secret  string    `json:"secret"`
	Type    TokenType `json:"type"`
	Refresh time.Time `json:"refresh"`
}

func (t OTPToken) Expired(now time.Time) bool {
	return !now.Before(t.Refresh)
}

// Challenge records that a user started authorizing a chat.
type Challenge struct {
	ChatID  int64     `json:"cid"`
	UserID  int64     `json:"uid"`
	Refresh time.Time `json:"refresh"`
}

func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.Refresh)
}

// Defaults are lifetimes in minutes used when a command does not give one.
type Defaults struct {
	ChatLifetime      int       `json:"chat_lifetime"`
	OTPLifetime       int       `json:"otp_lifetime"`
	OTPType           TokenType `json:"otp_type"`
	ChallengeLifetime int       `json:"challenge_lifetime"`
}

func minutes(n int) time.Duration {
	if n <= 0 {
		n = 1
	}
	return time.Duration(n) * time.Minute
}

func (d Defaults) ChatTTL() time.Duration      { return minutes(d.ChatLifetime) }
func (d Defaults) OTPTTL() time.Duration       { return minutes(d.OTPLifetime) }
func (d Defaults) ChallengeTTL() time.Duration { return minutes(d.ChallengeLifetime) }

func (d Defaults) TokenType() TokenType {
	if t, ok := ParseTokenType(string(d.OTPType)); ok {
		return t
	}
	return TokenPrivate
}

// Admin is one entry of a platform chat administrator list.
type Admin struct {
	User       UserRef
	Status     string // creator|administrator
	CanPromote bool
}

const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
)

// Message is a platform message reduced to what the bot acts on.
type Message struct {
	Chat       ChatRef
	From       UserRef
	Text       string
	NewMembers []UserRef
	Edited     bool
}

// Update is one item of the platform update stream. ID increases
// monotonically; Message is nil for update kinds the bot ignores.
type Update struct {
	ID      int
	Message *Message
}
