package platform

import (
	"context"
	"errors"

	"github.com/danhigham/tglab/internal/domain"
)

// ErrUnknownChat is returned when the transport cannot address a chat id,
// for example because it has never seen the peer.
var ErrUnknownChat = errors.New("unknown chat")

// Client is the interface for messaging platform operations.
type Client interface {
	Self(ctx context.Context) (domain.UserRef, error)
	Send(ctx context.Context, chatID int64, text string) error
	Admins(ctx context.Context, chatID int64) ([]domain.Admin, error)
	Leave(ctx context.Context, chatID int64) error
	// Updates returns the updates with ID >= offset, blocking up to the
	// transport's poll timeout when none are pending.
	Updates(ctx context.Context, offset int) ([]domain.Update, error)
}

// Runner is implemented by transports that keep a background connection.
// Run blocks until ctx is cancelled or the connection fails.
type Runner interface {
	Run(ctx context.Context) error
}
