package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/metrics"
	"github.com/danhigham/tglab/internal/platform"
	"github.com/danhigham/tglab/internal/secret"
	"github.com/danhigham/tglab/internal/state"
)

// Options configures a Bot.
type Options struct {
	Store    *state.Store
	Platform platform.Client
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// MasterSecret grants bot ownership through /auth. Only its hash is kept.
	MasterSecret string
	Now          func() time.Time
}

// Bot is the authorization engine shared by the poll loop and the webhook
// endpoint. All registry access goes through the store.
type Bot struct {
	store      *state.Store
	platform   platform.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
	masterHash string
	now        func() time.Time

	self domain.UserRef
}

func New(opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bot{
		store:      opts.Store,
		platform:   opts.Platform,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		masterHash: secret.Hash(opts.MasterSecret),
		now:        opts.Now,
	}
}

// Start fetches the bot identity. It must be called before handling updates.
func (b *Bot) Start(ctx context.Context) error {
	self, err := b.platform.Self(ctx)
	if err != nil {
		b.metrics.PlatformError("self")
		return fmt.Errorf("get self: %w", err)
	}
	b.self = self
	b.logger.Info("bot identity", zap.Int64("id", self.ID), zap.String("name", self.Name))
	return nil
}

// Self is the bot account recorded by Start.
func (b *Bot) Self() domain.UserRef {
	return b.self
}

// send delivers text and logs failures; delivery is best effort.
func (b *Bot) send(ctx context.Context, chatID int64, text string) bool {
	if err := b.platform.Send(ctx, chatID, text); err != nil {
		b.metrics.PlatformError("send")
		b.logger.Warn("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return false
	}
	return true
}
