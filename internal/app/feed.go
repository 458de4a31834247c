package app

import (
	"sync"

	"timed-quiz-service/internal/domain"
)

// Feed fans attempt events out to subscribers of each attempt.
type Feed struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.AttemptEvent]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[string]map[chan domain.AttemptEvent]struct{})}
}

// Subscribe returns a channel of events for attemptID.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe(attemptID string) (<-chan domain.AttemptEvent, func()) {
	ch := make(chan domain.AttemptEvent, 8)

	f.mu.Lock()
	subs, ok := f.subscribers[attemptID]
	if !ok {
		subs = make(map[chan domain.AttemptEvent]struct{})
		f.subscribers[attemptID] = subs
	}
	subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs, ok := f.subscribers[attemptID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(f.subscribers, attemptID)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of its attempt. A subscriber that
// fell behind loses its oldest buffered event rather than blocking publishers.
func (f *Feed) Publish(ev domain.AttemptEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[ev.AttemptID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Subscribers reports how many subscribers follow attemptID.
func (f *Feed) Subscribers(attemptID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[attemptID])
}
