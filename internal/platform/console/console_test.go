package console_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/platform/console"
)

var dave = domain.UserRef{ID: 1000, Name: "dave"}

func TestRunQueuesInputLines(t *testing.T) {
	c, err := console.New(console.Options{
		In:   strings.NewReader("/help\n\n  \n/getotp group 5\n"),
		Out:  &bytes.Buffer{},
		User: dave,
	})
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	updates, err := c.Updates(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	first := updates[0].Message
	require.NotNil(t, first)
	assert.Equal(t, "/help", first.Text)
	assert.Equal(t, dave, first.From)
	assert.Equal(t, domain.ChatRef{ID: 1000, Type: domain.ChatPrivate, Name: "dave"}, first.Chat)
	assert.Equal(t, "/getotp group 5", updates[1].Message.Text)
}

func TestSendRendersMarkdown(t *testing.T) {
	var out bytes.Buffer
	c, err := console.New(console.Options{In: strings.NewReader(""), Out: &out, User: dave})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), 1000, "Ok! New token: *abc123XY*\n\ntype group"))

	got := out.String()
	assert.Contains(t, got, "tglab → 1000")
	assert.Contains(t, got, "abc123XY")
	assert.Contains(t, got, "type group")
}

func TestSendRendersCodeBlock(t *testing.T) {
	var out bytes.Buffer
	c, err := console.New(console.Options{In: strings.NewReader(""), Out: &out, User: dave})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), 1000, "Here's the list of tokens:\n```\n(no entries)\n```\n"))
	assert.Contains(t, out.String(), "(no entries)")
}

func TestAdminsAndLeave(t *testing.T) {
	var out bytes.Buffer
	c, err := console.New(console.Options{In: strings.NewReader(""), Out: &out, User: dave})
	require.NoError(t, err)

	admins, err := c.Admins(context.Background(), -5)
	require.NoError(t, err)
	assert.Equal(t, []domain.Admin{{User: dave, Status: domain.StatusCreator}}, admins)

	require.NoError(t, c.Leave(context.Background(), -5))
	assert.Contains(t, out.String(), "left chat -5")

	self, err := c.Self(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tglab", self.Name)
}
