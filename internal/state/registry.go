package state

import (
	"strings"
	"time"

	"github.com/danhigham/tglab/internal/domain"
)

// Registry is the persisted state document. It is only reachable through
// Store.View and Store.Update, which serialize access to it.
type Registry struct {
	Owners     []domain.UserRef   `json:"owners"`
	Chats      []*domain.Chat     `json:"chats"`
	OTP        []domain.OTPToken  `json:"otp"`
	Challenges []domain.Challenge `json:"challenges"`
	Offset     int                `json:"offset"`
	Defaults   domain.Defaults    `json:"defaults"`
}

func (r *Registry) IsOwner(userID int64) bool {
	for _, o := range r.Owners {
		if o.ID == userID {
			return true
		}
	}
	return false
}

func (r *Registry) AddOwner(u domain.UserRef) {
	r.Owners = append(r.Owners, u)
}

func (r *Registry) Chat(id int64) *domain.Chat {
	for _, c := range r.Chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ChatByName finds a chat by display name; a leading "@" is ignored.
func (r *Registry) ChatByName(name string) *domain.Chat {
	name = strings.TrimPrefix(name, "@")
	for _, c := range r.Chats {
		if strings.TrimPrefix(c.Name, "@") == name {
			return c
		}
	}
	return nil
}

func (r *Registry) AddChat(c *domain.Chat) {
	r.Chats = append(r.Chats, c)
}

func (r *Registry) RemoveChat(id int64) bool {
	for i, c := range r.Chats {
		if c.ID == id {
			r.Chats = append(r.Chats[:i], r.Chats[i+1:]...)
			return true
		}
	}
	return false
}

// FindOTP returns the first live token with the given digest and type.
func (r *Registry) FindOTP(digest string, typ domain.TokenType, now time.Time) *domain.OTPToken {
	for i := range r.OTP {
		t := &r.OTP[i]
		if t.Secret == digest && t.Type == typ && !t.Expired(now) {
			return t
		}
	}
	return nil
}

// FindChallenge returns the first live challenge for the pair.
func (r *Registry) FindChallenge(chatID, userID int64, now time.Time) *domain.Challenge {
	for i := range r.Challenges {
		c := &r.Challenges[i]
		if c.ChatID == chatID && c.UserID == userID && !c.Expired(now) {
			return c
		}
	}
	return nil
}

func (r *Registry) clone() *Registry {
	out := *r
	out.Owners = append([]domain.UserRef(nil), r.Owners...)
	out.OTP = append([]domain.OTPToken(nil), r.OTP...)
	out.Challenges = append([]domain.Challenge(nil), r.Challenges...)
	out.Chats = make([]*domain.Chat, len(r.Chats))
	for i, c := range r.Chats {
		cc := *c
		cc.Admins = append([]domain.UserRef(nil), c.Admins...)
		out.Chats[i] = &cc
	}
	return &out
}
