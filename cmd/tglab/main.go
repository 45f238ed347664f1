package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/bot"
	"github.com/danhigham/tglab/internal/config"
	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/metrics"
	"github.com/danhigham/tglab/internal/platform"
	"github.com/danhigham/tglab/internal/platform/botapi"
	"github.com/danhigham/tglab/internal/platform/console"
	"github.com/danhigham/tglab/internal/platform/mtproto"
	"github.com/danhigham/tglab/internal/poller"
	"github.com/danhigham/tglab/internal/state"
	"github.com/danhigham/tglab/internal/webhook"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := pflag.StringP("config", "c", filepath.Join(config.Dir(), "config.yaml"), "path to the config file")
	showVersion := pflag.Bool("version", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("tglab", version)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", *cfgPath, err)
		fmt.Fprintf(os.Stderr, "\nCreate the config file with:\n")
		fmt.Fprintf(os.Stderr, "  mkdir -p %s\n", filepath.Dir(*cfgPath))
		fmt.Fprintf(os.Stderr, "  cat > %s << 'EOF'\n", *cfgPath)
		fmt.Fprintf(os.Stderr, "telegram:\n  api_token: \"123456:ABC...\"\nsvc_token: \"gitlab-secret\"\nEOF\n")
		fmt.Fprintf(os.Stderr, "\nGet a bot token from @BotFather\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("tglab stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = lvl
	return logCfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	backend, err := state.NewBackend(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state backend: %w", err)
	}
	store, err := state.Open(backend, logger.Named("state"))
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer store.Close()

	if err := store.SetDefaults(cfg.Defaults.Domain()); err != nil {
		return fmt.Errorf("save defaults: %w", err)
	}
	d := store.Defaults()
	logger.Info("state loaded",
		zap.String("backend", cfg.State.Backend),
		zap.Int("offset", store.Offset()),
		zap.Duration("chat_lifetime", d.ChatTTL()),
		zap.Duration("otp_lifetime", d.OTPTTL()),
		zap.String("otp_type", string(d.TokenType())),
		zap.Duration("challenge_lifetime", d.ChallengeTTL()),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	client, runner, err := newTransport(cfg, logger.Named("platform"))
	if err != nil {
		return err
	}

	// Signals stop intake; the transport outlives them so the offline
	// notice can still be delivered.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	transportCtx, stopTransport := context.WithCancel(context.Background())
	defer stopTransport()

	var wg sync.WaitGroup
	transportErr := make(chan error, 1)
	if runner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runner.Run(transportCtx); err != nil {
				logger.Error("transport error", zap.Error(err))
				transportErr <- err
			}
			stop()
		}()
	}

	b := bot.New(bot.Options{
		Store:        store,
		Platform:     client,
		Logger:       logger.Named("bot"),
		Metrics:      m,
		MasterSecret: cfg.MasterSecret,
	})
	if err := b.Start(ctx); err != nil {
		stopTransport()
		wg.Wait()
		return err
	}
	logger.Info("online",
		zap.String("bot", b.Self().Name),
		zap.Int("chats", b.Online(ctx)),
	)

	loop := poller.New(poller.Options{
		Source:   client,
		Handler:  b,
		Cursor:   store,
		Sweeper:  b,
		Interval: cfg.PollInterval,
		Logger:   logger.Named("poller"),
	})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = loop.Run(ctx)
	}()

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: webhook.NewRouter(webhook.Options{
			Token:       cfg.SvcToken,
			Broadcaster: b,
			Logger:      logger.Named("webhook"),
			Metrics:     m,
			Gatherer:    reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-pollDone

	b.Offline(shutdownCtx)
	stopTransport()
	wg.Wait()

	select {
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	case err := <-transportErr:
		return fmt.Errorf("transport: %w", err)
	default:
		return nil
	}
}

// newTransport returns the configured messaging client and, for transports
// that keep a session open, the runner that drives it.
func newTransport(cfg *config.Config, logger *zap.Logger) (platform.Client, platform.Runner, error) {
	tc := cfg.Telegram
	switch tc.Transport {
	case config.TransportBotAPI:
		c, err := botapi.New(botapi.Options{
			Token:       tc.APIToken,
			Endpoint:    tc.APIEndpoint,
			PollTimeout: tc.PollTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bot api: %w", err)
		}
		return c, nil, nil

	case config.TransportMTProto:
		if err := os.MkdirAll(tc.SessionDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create session dir: %w", err)
		}
		c := mtproto.New(mtproto.Options{
			APIID:       tc.APIID,
			APIHash:     tc.APIHash,
			BotToken:    tc.APIToken,
			SessionDir:  tc.SessionDir,
			PollTimeout: tc.PollTimeout,
			Logger:      logger,
		})
		return c, c, nil

	case config.TransportConsole:
		name := os.Getenv("USER")
		if name == "" {
			name = "console"
		}
		c, err := console.New(console.Options{
			In:          os.Stdin,
			Out:         os.Stdout,
			User:        domain.UserRef{ID: int64(os.Getuid()) + 1, Name: name},
			PollTimeout: time.Second,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("console: %w", err)
		}
		return c, c, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", tc.Transport)
}
