package platform

import (
	"context"
	"sync"
	"time"

	"github.com/danhigham/tglab/internal/domain"
)

// Queue buffers messages pushed by a transport and serves them through the
// offset contract of Client.Updates. Ids are assigned locally and rebased
// onto the first offset requested, since that cursor may come from an
// earlier run.
type Queue struct {
	mu      sync.Mutex
	items   []domain.Update
	next    int
	aligned bool
	notify  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Push(msg *domain.Message) {
	q.mu.Lock()
	q.items = append(q.items, domain.Update{ID: q.next, Message: msg})
	q.next++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Take drops updates below offset and returns a copy of the rest.
func (q *Queue) Take(offset int) []domain.Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.aligned {
		q.aligned = true
		for i := range q.items {
			q.items[i].ID = offset + i
		}
		q.next = offset + len(q.items)
	}

	keep := q.items[:0]
	for _, u := range q.items {
		if u.ID >= offset {
			keep = append(keep, u)
		}
	}
	q.items = keep

	return append([]domain.Update(nil), q.items...)
}

// Wait returns pending updates, blocking up to timeout for a push when
// there are none. A closed done channel ends the wait early.
func (q *Queue) Wait(ctx context.Context, offset int, timeout time.Duration, done <-chan struct{}) ([]domain.Update, error) {
	if out := q.Take(offset); len(out) > 0 {
		return out, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-q.notify:
	case <-timer.C:
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return q.Take(offset), nil
}
