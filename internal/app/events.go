package app

import (
	"context"
	"errors"
	"sync"

	"lms-quiz-engine/internal/domain"
)

// Publisher delivers attempt-completion facts to downstream consumers
// (progress tracking, gamification).
type Publisher interface {
	PublishCompletion(ctx context.Context, event domain.CompletionEvent) error
}

// Fanout publishes to every sink and reports all failures together.
type Fanout []Publisher

func (f Fanout) PublishCompletion(ctx context.Context, event domain.CompletionEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishCompletion(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hub is an in-process Publisher that fans completion events out to channel
// subscribers (the websocket stream feeds from here).
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan domain.CompletionEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan domain.CompletionEvent]struct{})}
}

// Subscribe returns a channel of completion events. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *Hub) Subscribe() (<-chan domain.CompletionEvent, func()) {
	ch := make(chan domain.CompletionEvent, 8)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) PublishCompletion(_ context.Context, event domain.CompletionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Slow consumers drop their oldest event rather than blocking the
			// submission path.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}
