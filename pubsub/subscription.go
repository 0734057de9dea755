package pubsub

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	errHandlerNotFunc      = errors.New("pubsub: handler must be a func(T) accepting exactly one argument")
	errPayloadTypeMismatch = errors.New("pubsub: message payload does not match handler argument type")
	errSubscriptionClosed  = errors.New("pubsub: subscription is closed")
)

// subscription is one handler registered against one topic. Every
// handler in this codebase is a plain func(T) — audit.Bus subscribes
// with func(audit.Event) and the command-line alert consumer
// subscribes with func(string, string, string) via the worker
// package's own subscriber, not this one — so subscription only needs
// to support single-argument function handlers, not the channel or
// multi-arg forms a more general broker would.
type subscription struct {
	id    string
	topic string
	opts  *subscriptionOptions

	mu     sync.RWMutex
	closed bool

	handler  reflect.Value
	argType  reflect.Type

	queue  chan *Message
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func newSubscription(topic string, handler any, opts ...Option) (*subscription, error) {
	o := defaultSubscriptionOptions()
	o.apply(opts...)

	val := reflect.ValueOf(handler)
	typ := val.Type()
	if typ.Kind() != reflect.Func || typ.NumIn() != 1 {
		return nil, errHandlerNotFunc
	}

	s := &subscription{
		id:      uuid.NewString(),
		topic:   topic,
		opts:    o,
		handler: val,
		argType: typ.In(0),
	}

	if o.Concurrency > 1 {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.queue = make(chan *Message, o.Concurrency*2)
		s.wg.Add(o.Concurrency)
		for i := 0; i < o.Concurrency; i++ {
			go s.runWorker(ctx)
		}
	}

	return s, nil
}

func (s *subscription) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			s.invoke(msg)
		}
	}
}

// deliver sends msg to the handler, queuing it when the subscription
// was configured with concurrency > 1.
func (s *subscription) deliver(msg *Message, try bool) error {
	s.mu.RLock()
	closed := s.closed
	queue := s.queue
	s.mu.RUnlock()
	if closed {
		return errSubscriptionClosed
	}

	if queue == nil {
		return s.invoke(msg)
	}

	if try {
		select {
		case queue <- msg:
			return nil
		default:
			log.Warn().Str("subscription_id", s.id).Str("topic", s.topic).Msg("delivery queue full, dropping message")
			return nil
		}
	}
	queue <- msg
	return nil
}

func (s *subscription) invoke(msg *Message) error {
	s.mu.RLock()
	fn := s.handler
	argType := s.argType
	s.mu.RUnlock()
	if fn.IsZero() {
		return errSubscriptionClosed
	}

	var arg reflect.Value
	if msg == nil || msg.Payload == nil {
		arg = reflect.Zero(argType)
	} else {
		payload := reflect.ValueOf(msg.Payload)
		if !payload.Type().AssignableTo(argType) {
			log.Error().Str("subscription_id", s.id).Str("topic", s.topic).
				Str("expected", argType.String()).Str("got", payload.Type().String()).
				Msg("handler argument type mismatch")
			return errPayloadTypeMismatch
		}
		arg = payload
	}

	fn.Call([]reflect.Value{arg})
	return nil
}

func (s *subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.queue != nil {
		close(s.queue)
	}
	s.handler = reflect.Value{}
	s.mu.Unlock()

	s.wg.Wait()
}
