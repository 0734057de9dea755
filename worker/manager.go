// Package worker fans critical alerts out across replicas over a
// Redis list: Publisher pushes, ConsumerManager pops and dispatches to
// a registered handler. It's the same LPUSH/BRPOP shape the audit bus
// uses on its Redis backend, lifted one level so an alert survives
// the process that raised it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ConsumerManager owns the subscribers (one BRPOP poller per topic)
// for a process.
type ConsumerManager struct {
	rdb         redis.Cmdable
	mu          sync.Mutex
	subscribers map[string]*subscriber // keyed by topic
	wg          sync.WaitGroup
	shutdown    chan struct{}
	running     bool
}

// NewConsumerManager creates a new ConsumerManager.
func NewConsumerManager(rdb redis.Cmdable) *ConsumerManager {
	return &ConsumerManager{
		rdb:         rdb,
		subscribers: make(map[string]*subscriber),
		shutdown:    make(chan struct{}),
		running:     true,
	}
}

// Subscribe registers handler, a func(T1, T2, ...) matching the
// arguments a Publisher call on the same topic pushes, and starts a
// BRPOP poller for topic. Only one subscriber per topic is meaningful
// within a process; a second Subscribe call on the same topic just
// competes with the first for alerts.
func (cm *ConsumerManager) Subscribe(topic string, handler any, opts ...SubscriptionOption) (*subscriber, error) {
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	cfg := defaultSubscriptionOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	handlerVal := reflect.ValueOf(handler)
	handlerType := handlerVal.Type()
	if handlerType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %T", handler)
	}
	if handlerVal.IsNil() {
		return nil, errors.New("handler function cannot be nil")
	}

	sub := &subscriber{
		rdb:         cm.rdb,
		topic:       topic,
		opts:        cfg,
		processChan: make(chan []byte, cfg.bufferSize),
		stopChan:    make(chan struct{}),
		managerWg:   &cm.wg,
		handlerFunc: handlerVal,
		handlerType: handlerType,
	}

	cm.mu.Lock()
	if !cm.running {
		cm.mu.Unlock()
		return nil, errors.New("consumer manager is not running")
	}
	if _, exists := cm.subscribers[topic]; exists {
		log.Warn().Str("topic", topic).Msg("subscribing to a topic with an existing subscriber, they will compete for alerts")
	}
	cm.subscribers[topic] = sub
	cm.mu.Unlock()

	cm.wg.Add(1)
	go sub.run()

	log.Info().Str("topic", topic).Int("concurrency", cfg.concurrency).Dur("block_time", cfg.blockTime).Msg("alert subscriber started polling list")

	return sub, nil
}

// Unsubscribe stops and removes the subscriber registered for its
// topic.
func (cm *ConsumerManager) Unsubscribe(subToUnsubscribe *subscriber) error {
	if subToUnsubscribe == nil {
		return errors.New("cannot unsubscribe nil subscriber")
	}

	cm.mu.Lock()
	sub, ok := cm.subscribers[subToUnsubscribe.topic]
	if !ok || sub != subToUnsubscribe {
		cm.mu.Unlock()
		log.Warn().Str("topic", subToUnsubscribe.topic).Msg("unsubscribe called for subscriber not found or mismatched")
		return nil
	}

	delete(cm.subscribers, subToUnsubscribe.topic)
	cm.mu.Unlock()

	sub.stop()

	log.Info().Str("topic", sub.topic).Msg("alert subscriber stopped")
	return nil
}

// Shutdown signals every subscriber to stop and waits for them to
// finish.
func (cm *ConsumerManager) Shutdown(ctx context.Context) error {
	cm.mu.Lock()
	if !cm.running {
		cm.mu.Unlock()
		return errors.New("consumer manager already shut down")
	}
	cm.running = false
	close(cm.shutdown)

	subsToStop := make([]*subscriber, 0, len(cm.subscribers))
	for _, sub := range cm.subscribers {
		subsToStop = append(subsToStop, sub)
	}
	cm.subscribers = make(map[string]*subscriber)
	cm.mu.Unlock()

	log.Info().Int("subscriber_count", len(subsToStop)).Msg("shutting down alert subscribers...")

	var stopWg sync.WaitGroup
	for _, sub := range subsToStop {
		stopWg.Add(1)
		go func(s *subscriber) {
			defer stopWg.Done()
			s.stop()
		}(sub)
	}
	stopWg.Wait()

	waitChan := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		log.Info().Msg("consumer manager shutdown complete")
		return nil
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg("consumer manager shutdown timed out waiting for pollers")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
