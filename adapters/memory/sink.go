package memory

import (
	"context"
	"sync"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Ensure Sink implements both sink interfaces.
var (
	_ reservo.EventSink = (*Sink)(nil)
	_ reservo.ErrorSink = (*Sink)(nil)
)

// PublishedFailure pairs a failure with the key it was published under.
type PublishedFailure struct {
	Key     string
	Failure *reservo.Failure
}

// Sink records published events and failures in publication order.
type Sink struct {
	mu       sync.RWMutex
	events   []reservo.Event
	byKey    map[string][]reservo.Event
	failures []PublishedFailure

	subscribersMu sync.RWMutex
	subscribers   []chan reservo.Event
}

// NewSink creates an empty Sink.
func NewSink() *Sink {
	return &Sink{byKey: make(map[string][]reservo.Event)}
}

// PublishEvent records evt under key and notifies subscribers.
func (s *Sink) PublishEvent(ctx context.Context, key string, evt reservo.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.events = append(s.events, evt)
	s.byKey[key] = append(s.byKey[key], evt)
	s.mu.Unlock()

	s.notifySubscribers(evt)
	return nil
}

// PublishFailure records failure under key.
func (s *Sink) PublishFailure(ctx context.Context, key string, failure *reservo.Failure) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, PublishedFailure{Key: key, Failure: failure})
	return nil
}

// Events returns every published event.
func (s *Sink) Events() []reservo.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]reservo.Event(nil), s.events...)
}

// EventsFor returns the events published under key, in order.
func (s *Sink) EventsFor(key string) []reservo.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]reservo.Event(nil), s.byKey[key]...)
}

// Failures returns every published failure.
func (s *Sink) Failures() []PublishedFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PublishedFailure(nil), s.failures...)
}

// Subscribe returns a channel receiving events published after the call.
// The channel is closed when ctx is done.
func (s *Sink) Subscribe(ctx context.Context, buffer int) <-chan reservo.Event {
	ch := make(chan reservo.Event, buffer)

	s.subscribersMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subscribersMu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeSubscriber(ch)
	}()

	return ch
}

// Reset clears all recorded events and failures.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byKey = make(map[string][]reservo.Event)
	s.failures = nil
}

func (s *Sink) notifySubscribers(evt reservo.Event) {
	s.subscribersMu.RLock()
	defer s.subscribersMu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full, drop.
		}
	}
}

func (s *Sink) removeSubscriber(ch chan reservo.Event) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}
