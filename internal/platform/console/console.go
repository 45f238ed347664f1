package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/platform"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

// Options configures the console transport.
type Options struct {
	In          io.Reader
	Out         io.Writer
	User        domain.UserRef
	Bot         domain.UserRef
	WordWrap    int
	PollTimeout time.Duration
	Logger      *zap.Logger
}

// Client is a local development transport. Every input line is a private
// message from the console user; outgoing messages are rendered as
// Markdown on the output.
type Client struct {
	opts     Options
	renderer *glamour.TermRenderer
	queue    *platform.Queue
	done     chan struct{}

	mu sync.Mutex
}

func New(opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WordWrap <= 0 {
		opts.WordWrap = 80
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.Bot.Name == "" {
		opts.Bot = domain.UserRef{ID: 1, Name: "tglab"}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("notty"),
		glamour.WithWordWrap(opts.WordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	return &Client{
		opts:     opts,
		renderer: r,
		queue:    platform.NewQueue(),
		done:     make(chan struct{}),
	}, nil
}

// Run reads input lines until EOF or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.opts.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	chat := domain.ChatRef{ID: c.opts.User.ID, Type: domain.ChatPrivate, Name: c.opts.User.Name}
	for {
		select {
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			c.queue.Push(&domain.Message{Chat: chat, From: c.opts.User, Text: line})
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			c.opts.Logger.Info("console input closed")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) Self(ctx context.Context) (domain.UserRef, error) {
	return c.opts.Bot, nil
}

func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := headerStyle.Render(fmt.Sprintf("%s → %d", c.opts.Bot.Name, chatID))
	return c.write(header + "\n" + c.render(text) + "\n\n")
}

// Admins reports the console user as the creator of every chat.
func (c *Client) Admins(ctx context.Context, chatID int64) ([]domain.Admin, error) {
	return []domain.Admin{{User: c.opts.User, Status: domain.StatusCreator}}, nil
}

func (c *Client) Leave(ctx context.Context, chatID int64) error {
	return c.write(noticeStyle.Render(fmt.Sprintf("left chat %d", chatID)) + "\n")
}

func (c *Client) Updates(ctx context.Context, offset int) ([]domain.Update, error) {
	return c.queue.Wait(ctx, offset, c.opts.PollTimeout, c.done)
}

func (c *Client) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.opts.Out, s)
	return err
}

// render passes text through glamour. Glamour joins single newlines into
// one paragraph, so plain blocks are rendered line by line and only blocks
// holding fenced code are rendered as a whole.
func (c *Client) render(text string) string {
	blocks := strings.Split(text, "\n\n")
	rendered := make([]string, len(blocks))

	for i, block := range blocks {
		if block == "" {
			continue
		}
		if strings.Contains(block, "```") {
			rendered[i] = c.renderBlock(block)
			continue
		}
		lines := strings.Split(block, "\n")
		for j, line := range lines {
			if line != "" {
				lines[j] = c.renderBlock(line)
			}
		}
		rendered[i] = strings.Join(lines, "\n")
	}

	return strings.Join(rendered, "\n")
}

func (c *Client) renderBlock(text string) string {
	r, err := c.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(r, "\n ")
}
