package bucket

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func dialTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: redis not available (%v)", err)
	}
	return client
}

func TestRedisEngine_FreshPrincipalHasFullCapacity(t *testing.T) {
	client := dialTestRedis(t)
	engine := NewRedisEngine(client)
	ctx := context.Background()

	key := fmt.Sprintf("shield:test:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	res, err := engine.CheckAndConsume(ctx, key, Limits{Capacity: 5, RefillRate: 1, Cost: 1})
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected first request to be allowed")
	}
	if res.Remaining != 4 {
		t.Errorf("remaining = %d, want 4", res.Remaining)
	}
}

func TestRedisEngine_DeniesOnceExhausted(t *testing.T) {
	client := dialTestRedis(t)
	engine := NewRedisEngine(client)
	ctx := context.Background()

	key := fmt.Sprintf("shield:test:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	limits := Limits{Capacity: 2, RefillRate: 1, Cost: 1}
	for i := 0; i < 2; i++ {
		res, err := engine.CheckAndConsume(ctx, key, limits)
		if err != nil {
			t.Fatalf("CheckAndConsume: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
	}

	res, err := engine.CheckAndConsume(ctx, key, limits)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected third request to be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
}

func TestRedisEngine_RefillsOverTime(t *testing.T) {
	client := dialTestRedis(t)
	engine := NewRedisEngine(client)
	ctx := context.Background()

	key := fmt.Sprintf("shield:test:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	limits := Limits{Capacity: 1, RefillRate: 10, Cost: 1}
	if _, err := engine.CheckAndConsume(ctx, key, limits); err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}

	res, err := engine.CheckAndConsume(ctx, key, limits)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected immediate second request to be denied")
	}

	time.Sleep(1100 * time.Millisecond)

	res, err = engine.CheckAndConsume(ctx, key, limits)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected request after refill window to be allowed")
	}
}

func TestRedisEngine_SharedAcrossInstances(t *testing.T) {
	client := dialTestRedis(t)
	ctx := context.Background()

	key := fmt.Sprintf("shield:test:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	limits := Limits{Capacity: 1, RefillRate: 1, Cost: 1}

	engineA := NewRedisEngine(client)
	if _, err := engineA.CheckAndConsume(ctx, key, limits); err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}

	engineB := NewRedisEngine(client)
	res, err := engineB.CheckAndConsume(ctx, key, limits)
	if err != nil {
		t.Fatalf("CheckAndConsume: %v", err)
	}
	if res.Allowed {
		t.Fatal("second engine instance should see the token consumed by the first")
	}
}
