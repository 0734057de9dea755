package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func dialTestRedis(t *testing.T) {
	t.Helper()
	client, err := New(Config{URL: "redis://localhost:6379/0", Timeout: time.Second})
	if err != nil {
		t.Skipf("skipping integration test: redis not available (%v)", err)
	}
	_ = client.Close()
}

func TestSharded_SingleEndpointAlwaysPicksItself(t *testing.T) {
	dialTestRedis(t)

	s, err := NewSharded("redis://localhost:6379/0", time.Second)
	if err != nil {
		t.Fatalf("NewSharded: %v", err)
	}
	defer s.Close()

	if s.Pick("any-key") == nil {
		t.Fatal("expected Pick to return a non-nil client")
	}
	if s.Shards() != 1 {
		t.Fatalf("Shards() = %d, want 1", s.Shards())
	}
}

func TestSharded_StableRoutingForSameKey(t *testing.T) {
	dialTestRedis(t)

	s, err := NewSharded("redis://localhost:6379/0,redis://localhost:6379/1", time.Second)
	if err != nil {
		t.Skipf("skipping: second shard unavailable (%v)", err)
	}
	defer s.Close()

	key := fmt.Sprintf("shield:shard-test:%d", time.Now().UnixNano())
	first := s.Pick(key)
	for i := 0; i < 10; i++ {
		if s.Pick(key) != first {
			t.Fatal("expected rendezvous hashing to route the same key consistently")
		}
	}
}

func TestSharded_PingReportsReachability(t *testing.T) {
	dialTestRedis(t)

	s, err := NewSharded("redis://localhost:6379/0", time.Second)
	if err != nil {
		t.Fatalf("NewSharded: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestSharded_EvalRoutesThroughOwningShard(t *testing.T) {
	dialTestRedis(t)

	s, err := NewSharded("redis://localhost:6379/0", time.Second)
	if err != nil {
		t.Fatalf("NewSharded: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := s.Eval(ctx, "return ARGV[1]", []string{"shield:shard-eval-test"}, "42").Result()
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if res != "42" {
		t.Fatalf("Eval result = %v, want 42", res)
	}
}

func TestSharded_PrimaryReturnsFirstEndpoint(t *testing.T) {
	dialTestRedis(t)

	s, err := NewSharded("redis://localhost:6379/0", time.Second)
	if err != nil {
		t.Fatalf("NewSharded: %v", err)
	}
	defer s.Close()

	if s.Primary() == nil {
		t.Fatal("expected Primary to return a non-nil client")
	}
}
