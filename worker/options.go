package worker

import (
	"time"
)

// subscriptionOptions configures a ConsumerManager.Subscribe call.
type subscriptionOptions struct {
	blockTime   time.Duration // how long BRPOP blocks waiting for an alert
	concurrency int           // number of concurrent handler goroutines
	bufferSize  int           // buffer between the BRPOP poller and the handler goroutines
}

func defaultSubscriptionOptions() subscriptionOptions {
	return subscriptionOptions{
		blockTime:   5 * time.Second,
		concurrency: 1,
		bufferSize:  128,
	}
}

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*subscriptionOptions)

// WithBlockTime sets how long BRPOP blocks waiting for an alert.
// Defaults to 5 seconds.
func WithBlockTime(d time.Duration) SubscriptionOption {
	return func(o *subscriptionOptions) {
		if d > 0 {
			o.blockTime = d
		}
	}
}

// WithConcurrency sets the number of goroutines processing alerts
// popped from the list concurrently. Defaults to 1.
func WithConcurrency(n int) SubscriptionOption {
	return func(o *subscriptionOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithBufferSize sets the buffer between the BRPOP poller and the
// handler goroutines. Defaults to 128.
func WithBufferSize(size int) SubscriptionOption {
	return func(o *subscriptionOptions) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// publisherOptions configures a Publisher.
type publisherOptions struct {
	defaultPubTimeout time.Duration
	broadcastTimeout  time.Duration
	listMaxLen        int64
}

func defaultPublisherOptions() publisherOptions {
	return publisherOptions{
		defaultPubTimeout: 5 * time.Second,
		broadcastTimeout:  500 * time.Millisecond,
	}
}

// PublisherOption configures the Publisher.
type PublisherOption func(*publisherOptions)

// WithDefaultPubTimeout sets the context timeout for Pub/PubCtx LPUSH calls.
func WithDefaultPubTimeout(d time.Duration) PublisherOption {
	return func(o *publisherOptions) {
		if d > 0 {
			o.defaultPubTimeout = d
		}
	}
}

// WithBroadcastTimeout sets the context timeout for Broadcast. An
// alert that can't be pushed within this window is dropped rather than
// delaying the request that triggered it.
func WithBroadcastTimeout(d time.Duration) PublisherOption {
	return func(o *publisherOptions) {
		if d > 0 {
			o.broadcastTimeout = d
		}
	}
}

// WithListMaxLen caps the alert list's length via LTRIM after each
// push. Zero (the default) disables trimming.
func WithListMaxLen(maxLen int64) PublisherOption {
	return func(o *publisherOptions) {
		if maxLen >= 0 {
			o.listMaxLen = maxLen
		}
	}
}
