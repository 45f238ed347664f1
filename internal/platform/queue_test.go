package platform_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tglab/internal/domain"
	"github.com/danhigham/tglab/internal/platform"
)

func TestQueueRebasesOnFirstOffset(t *testing.T) {
	q := platform.NewQueue()
	q.Push(&domain.Message{Text: "a"})
	q.Push(&domain.Message{Text: "b"})

	got := q.Take(500)
	require.Len(t, got, 2)
	assert.Equal(t, 500, got[0].ID)
	assert.Equal(t, 501, got[1].ID)

	got = q.Take(501)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Message.Text)

	q.Push(&domain.Message{Text: "c"})
	got = q.Take(502)
	require.Len(t, got, 1)
	assert.Equal(t, 502, got[0].ID)
	assert.Equal(t, "c", got[0].Message.Text)
}

func TestQueueWaitsForPush(t *testing.T) {
	q := platform.NewQueue()
	q.Take(0)

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(&domain.Message{Text: "late"})
	}()

	got, err := q.Wait(context.Background(), 0, 5*time.Second, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].Message.Text)
}

func TestQueueWaitTimeout(t *testing.T) {
	q := platform.NewQueue()
	got, err := q.Wait(context.Background(), 0, 10*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueueWaitCancelled(t *testing.T) {
	q := platform.NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Wait(ctx, 0, time.Second, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
