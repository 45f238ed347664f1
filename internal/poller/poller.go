// Package poller drives the update loop: fetch, dispatch, persist the
// cursor, sweep and idle.
package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
)

type Source interface {
	Updates(ctx context.Context, offset int) ([]domain.Update, error)
}

type Handler interface {
	HandleUpdate(ctx context.Context, u domain.Update) error
}

// Cursor persists the id of the next update to fetch.
type Cursor interface {
	Offset() int
	SetOffset(offset int) error
}

type Sweeper interface {
	Sweep(ctx context.Context) error
}

type Options struct {
	Source   Source
	Handler  Handler
	Cursor   Cursor
	Sweeper  Sweeper
	Interval time.Duration
	Logger   *zap.Logger
}

type Loop struct {
	opts Options
}

func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	return &Loop{opts: opts}
}

// Run processes updates one at a time until ctx is cancelled. Failures of
// a single iteration are logged and retried on the next one.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.opts.Logger
	logger.Info("poll loop started", zap.Int("offset", l.opts.Cursor.Offset()))

	for {
		if err := l.tick(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("poll iteration failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("poll loop stopped")
			return nil
		case <-time.After(l.opts.Interval):
		}
	}
}

func (l *Loop) tick(ctx context.Context) error {
	offset := l.opts.Cursor.Offset()
	updates, err := l.opts.Source.Updates(ctx, offset)
	if err != nil {
		return err
	}

	var errs []error
	for _, u := range updates {
		if u.ID < offset {
			continue
		}
		offset = u.ID + 1
		if err := l.opts.Handler.HandleUpdate(ctx, u); err != nil {
			l.opts.Logger.Warn("update failed", zap.Int("update_id", u.ID), zap.Error(err))
		}
		if err := l.opts.Cursor.SetOffset(offset); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			return errors.Join(errs...)
		}
	}

	if err := l.opts.Sweeper.Sweep(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
