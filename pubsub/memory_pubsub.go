package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var errMemoryPubSubClosed = errors.New("pubsub: memory pubsub is closed")

// MemoryPubSub delivers messages to in-process subscribers only. This
// is the default backend: shieldd's audit bus runs on it unless
// SHIELD_AUDIT_BACKEND selects redis, since a single process has no
// need for the durability a Redis-backed queue buys.
type MemoryPubSub struct {
	mu      sync.RWMutex
	closed  bool
	topics  map[string]map[string]*subscription
	subs    map[string]*subscription
	closeWg sync.WaitGroup
}

// NewMemoryPubSub creates a new in-memory PubSub instance.
func NewMemoryPubSub() PubSub {
	return &MemoryPubSub{
		topics: make(map[string]map[string]*subscription),
		subs:   make(map[string]*subscription),
	}
}

// Publish delivers msg to every subscriber on topic, waiting for all
// of them or for ctx to be canceled.
func (m *MemoryPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errMemoryPubSubClosed
	}
	subs := m.subscribersFor(topic)
	m.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	m.closeWg.Add(1)
	defer m.closeWg.Done()

	var wg sync.WaitGroup
	wg.Add(len(subs))
	errs := make(chan error, len(subs))
	for _, sub := range subs {
		go func(s *subscription) {
			defer wg.Done()
			if err := s.deliver(msg, false); err != nil && !errors.Is(err, errSubscriptionClosed) {
				log.Error().Err(err).Str("subscription_id", s.id).Str("topic", topic).Msg("failed to deliver message")
				errs <- err
			}
		}(sub)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errs)
		return <-errs
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish delivers msg without blocking the caller; a subscriber
// that isn't ready yet is skipped.
func (m *MemoryPubSub) TryPublish(ctx context.Context, topic string, msg *Message) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errMemoryPubSubClosed
	}
	subs := m.subscribersFor(topic)
	m.mu.RUnlock()

	for _, sub := range subs {
		go func(s *subscription) {
			if err := s.deliver(msg, true); err != nil && !errors.Is(err, errSubscriptionClosed) {
				log.Warn().Err(err).Str("subscription_id", s.id).Str("topic", topic).Msg("failed to try-deliver message")
			}
		}(sub)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Subscribe registers handler against topic.
func (m *MemoryPubSub) Subscribe(ctx context.Context, topic string, handler any, opts ...Option) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", errMemoryPubSubClosed
	}

	sub, err := newSubscription(topic, handler, opts...)
	if err != nil {
		return "", err
	}

	if _, ok := m.topics[topic]; !ok {
		m.topics[topic] = make(map[string]*subscription)
	}
	m.topics[topic][sub.id] = sub
	m.subs[sub.id] = sub

	return sub.id, nil
}

// Unsubscribe removes a subscription.
func (m *MemoryPubSub) Unsubscribe(ctx context.Context, id string) error {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.subs, id)
	if topicSubs, ok := m.topics[sub.topic]; ok {
		delete(topicSubs, id)
		if len(topicSubs) == 0 {
			delete(m.topics, sub.topic)
		}
	}
	m.mu.Unlock()

	sub.close()
	return nil
}

// Close shuts down the MemoryPubSub instance.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.topics = make(map[string]map[string]*subscription)
	m.subs = make(map[string]*subscription)
	m.mu.Unlock()

	m.closeWg.Wait()

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, sub := range subs {
		go func(s *subscription) {
			defer wg.Done()
			s.close()
		}(sub)
	}
	wg.Wait()

	return nil
}

// subscribersFor returns a snapshot of topic's subscribers. Caller
// must hold at least a read lock.
func (m *MemoryPubSub) subscribersFor(topic string) []*subscription {
	topicSubs, ok := m.topics[topic]
	if !ok {
		return nil
	}
	subs := make([]*subscription, 0, len(topicSubs))
	for _, sub := range topicSubs {
		subs = append(subs, sub)
	}
	return subs
}

var _ PubSub = (*MemoryPubSub)(nil)
