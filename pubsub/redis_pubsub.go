package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	errRedisPubSubClosed = errors.New("pubsub: redis pubsub is closed")
	errQueueFull         = errors.New("pubsub: redis queue is full")
)

const (
	redisBlockTimeout   = 5 * time.Second
	redisQueueKeyPrefix = "shield:pubsub:"
)

// redisSubscription pairs a subscription with the goroutine polling
// its backing Redis list.
type redisSubscription struct {
	*subscription
	client   redis.Cmdable
	queueKey string
	stop     chan struct{}
	wg       sync.WaitGroup
}

// RedisPubSub delivers messages through Redis lists, so a subscriber
// survives a process restart and any replica can observe what another
// replica published. shieldd wires this in only when
// SHIELD_AUDIT_BACKEND=redis; the default is the in-process
// MemoryPubSub.
type RedisPubSub struct {
	client redis.Cmdable
	mu     sync.RWMutex
	closed bool
	subs   map[string]*redisSubscription
	stopWg sync.WaitGroup
}

// NewRedisPubSub creates a Redis-backed PubSub. client must be non-nil.
func NewRedisPubSub(client redis.Cmdable) PubSub {
	if client == nil {
		panic("pubsub: redis client cannot be nil")
	}
	return &RedisPubSub{client: client, subs: make(map[string]*redisSubscription)}
}

func queueKey(topic string) string {
	return redisQueueKeyPrefix + topic
}

// Publish pushes msg onto topic's Redis list.
func (r *RedisPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	return r.publish(ctx, topic, msg, false)
}

// TryPublish pushes msg onto topic's Redis list, dropping it if the
// list is already at its configured max size.
func (r *RedisPubSub) TryPublish(ctx context.Context, topic string, msg *Message) error {
	return r.publish(ctx, topic, msg, true)
}

func (r *RedisPubSub) publish(ctx context.Context, topic string, msg *Message, try bool) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return errRedisPubSubClosed
	}
	maxQueue := int64(0)
	for _, sub := range r.subs {
		if sub.topic == topic && sub.opts.MaxQueueSize > 0 {
			if maxQueue == 0 || sub.opts.MaxQueueSize < maxQueue {
				maxQueue = sub.opts.MaxQueueSize
			}
		}
	}
	r.mu.RUnlock()

	key := queueKey(topic)

	if maxQueue > 0 {
		n, err := r.client.LLen(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("pubsub: failed to check queue length: %w", err)
		}
		if n >= maxQueue {
			if try {
				log.Warn().Str("topic", topic).Int64("len", n).Msg("redis pubsub queue full, dropping message")
				return nil
			}
			return errQueueFull
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pubsub: failed to marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: failed to lpush message: %w", err)
	}
	return nil
}

// Subscribe registers handler against topic and starts a goroutine
// that polls topic's Redis list with BRPOP.
func (r *RedisPubSub) Subscribe(ctx context.Context, topic string, handler any, opts ...Option) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", errRedisPubSubClosed
	}

	base, err := newSubscription(topic, handler, opts...)
	if err != nil {
		return "", err
	}

	sub := &redisSubscription{
		subscription: base,
		client:       r.client,
		queueKey:     queueKey(topic),
		stop:         make(chan struct{}),
	}
	r.subs[sub.id] = sub
	r.stopWg.Add(1)
	sub.wg.Add(1)
	go sub.listen()

	return sub.id, nil
}

// Unsubscribe stops the listener for id and removes the subscription.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, id)
	r.mu.Unlock()

	close(sub.stop)
	sub.wg.Wait()
	r.stopWg.Done()
	sub.close()
	return nil
}

// Close stops every listener and releases resources.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := make([]*redisSubscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subs = make(map[string]*redisSubscription)
	r.mu.Unlock()

	for _, sub := range subs {
		close(sub.stop)
	}
	for _, sub := range subs {
		sub.wg.Wait()
		r.stopWg.Done()
	}
	r.stopWg.Wait()

	var wg sync.WaitGroup
	wg.Add(len(subs))
	for _, sub := range subs {
		go func(s *redisSubscription) {
			defer wg.Done()
			s.close()
		}(sub)
	}
	wg.Wait()
	return nil
}

// listen polls the subscription's Redis list with BRPOP until stop is
// closed, delivering each popped message to the handler in order.
func (rs *redisSubscription) listen() {
	defer rs.wg.Done()

	for {
		select {
		case <-rs.stop:
			return
		default:
		}

		result, err := rs.client.BRPop(context.Background(), redisBlockTimeout, rs.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			select {
			case <-rs.stop:
				return
			default:
			}
			log.Error().Err(err).Str("queue_key", rs.queueKey).Msg("redis pubsub brpop failed")
			time.Sleep(time.Second)
			continue
		}

		if len(result) != 2 {
			log.Error().Str("queue_key", rs.queueKey).Int("len", len(result)).Msg("unexpected brpop result shape")
			continue
		}

		var envelope struct {
			Payload json.RawMessage
		}
		if err := json.Unmarshal([]byte(result[1]), &envelope); err != nil {
			log.Error().Err(err).Str("queue_key", rs.queueKey).Msg("failed to unmarshal pubsub message")
			continue
		}
		payload := reflect.New(rs.argType)
		if len(envelope.Payload) > 0 {
			if err := json.Unmarshal(envelope.Payload, payload.Interface()); err != nil {
				log.Error().Err(err).Str("queue_key", rs.queueKey).Msg("failed to unmarshal pubsub payload")
				continue
			}
		}
		msg := Message{Payload: payload.Elem().Interface()}

		if err := rs.subscription.deliver(&msg, false); err != nil && !errors.Is(err, errSubscriptionClosed) {
			log.Error().Err(err).Str("subscription_id", rs.id).Str("topic", rs.topic).Msg("failed to deliver message from redis")
		}
	}
}

var _ PubSub = (*RedisPubSub)(nil)
