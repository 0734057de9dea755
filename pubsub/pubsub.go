// Package pubsub is the event-delivery backbone behind the audit bus
// (package audit): a single emitted Event fans out to whatever is
// subscribed on "shield.audit" without coupling the decision path to
// how (or whether) that event ultimately gets written anywhere.
//
// Two backends share one interface: MemoryPubSub for a single process,
// and RedisPubSub when operators want audit visibility to survive a
// process restart or to be visible across replicas.
package pubsub

import (
	"context"
)

// Message is the unit of delivery. Payload carries the emitted value
// (an audit.Event in this codebase) opaquely; pubsub never inspects it,
// only routes it to whatever the handler function expects.
type Message struct {
	Payload any
}

// PubSub is a topic-addressed fan-out: one publisher, any number of
// subscribers, each delivered every message published after it
// subscribed.
type PubSub interface {
	// Publish blocks until every subscriber on topic has received msg
	// or ctx is canceled.
	Publish(ctx context.Context, topic string, msg *Message) error

	// TryPublish delivers msg to subscribers without blocking the
	// caller; a subscriber that isn't ready to receive immediately is
	// skipped rather than waited on.
	TryPublish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers handler, a func(T) where T matches the
	// dynamic type of published payloads, against topic.
	Subscribe(ctx context.Context, topic string, handler any, opts ...Option) (string, error)

	// Unsubscribe removes a subscription by the ID Subscribe returned.
	Unsubscribe(ctx context.Context, id string) error

	// Close shuts the backend down and releases its resources.
	Close() error
}
