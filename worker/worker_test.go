package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func dialTestRedis(t *testing.T) redis.Cmdable {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skipping integration test: redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisherConsumerManagerRoundTrip(t *testing.T) {
	rdb := dialTestRedis(t)
	topic := "shield-test:alerts"
	rdb.Del(context.Background(), topic)

	pub := NewPublisher(rdb)
	cm := NewConsumerManager(rdb)

	var mu sync.Mutex
	var gotKind, gotPrincipal, gotAt string
	done := make(chan struct{})

	sub, err := cm.Subscribe(topic, func(kind, principal, at string) {
		mu.Lock()
		gotKind, gotPrincipal, gotAt = kind, principal, at
		mu.Unlock()
		close(done)
	}, WithBlockTime(time.Second))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer func() {
		if err := cm.Unsubscribe(sub); err != nil {
			t.Errorf("Unsubscribe: %v", err)
		}
	}()

	if err := pub.Pub(topic, "ban", "1.2.3.4", "2026-08-06T00:00:00Z"); err != nil {
		t.Fatalf("Pub: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotKind != "ban" || gotPrincipal != "1.2.3.4" || gotAt != "2026-08-06T00:00:00Z" {
		t.Fatalf("got (%q, %q, %q), want (ban, 1.2.3.4, 2026-08-06T00:00:00Z)", gotKind, gotPrincipal, gotAt)
	}
}

func TestPublisherBroadcastDropsOnTimeoutWithoutError(t *testing.T) {
	rdb := dialTestRedis(t)
	pub := NewPublisher(rdb, WithBroadcastTimeout(time.Nanosecond))

	err := pub.Broadcast(context.Background(), "shield-test:broadcast-timeout", "kind", "principal", "at")
	if err != nil {
		t.Fatalf("Broadcast should swallow a deadline-exceeded error, got: %v", err)
	}
}

func TestConsumerManagerShutdownStopsPollers(t *testing.T) {
	rdb := dialTestRedis(t)
	topic := "shield-test:shutdown"

	cm := NewConsumerManager(rdb)
	if _, err := cm.Subscribe(topic, func(string) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cm.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSubscribeRejectsNonFuncHandler(t *testing.T) {
	cm := NewConsumerManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
	if _, err := cm.Subscribe("topic", "not a func"); err == nil {
		t.Fatal("expected Subscribe to reject a non-func handler")
	}
}

func TestSerializeDeserializeArgsRoundTrip(t *testing.T) {
	payload, err := serializeArgs("ban", "1.2.3.4", "2026-08-06T00:00:00Z")
	if err != nil {
		t.Fatalf("serializeArgs: %v", err)
	}

	args, err := deserializeArgs(payload)
	if err != nil {
		t.Fatalf("deserializeArgs: %v", err)
	}
	if len(args) != 3 || args[0] != "ban" || args[1] != "1.2.3.4" || args[2] != "2026-08-06T00:00:00Z" {
		t.Fatalf("deserializeArgs round-trip mismatch: %v", args)
	}
}
