package bucket

import (
	"context"
	_ "embed" // needed for go:embed
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

//go:embed bucket.lua
var consumeScriptSource string

var consumeScript = redis.NewScript(consumeScriptSource)

// Limits are the parameters of a principal's token bucket. Validated
// once at gateway construction, never per request.
type Limits struct {
	Capacity   int64
	RefillRate float64
	Cost       int64
}

// Engine executes the atomic refill-and-consume operation against a
// shared store.
type Engine interface {
	CheckAndConsume(ctx context.Context, key string, limits Limits) (Result, error)
}

// redisEngine implements Engine using a Lua script executed server-side
// on a go-redis client.
type redisEngine struct {
	client redis.Scripter
}

// NewRedisEngine wraps a pre-configured redis.Scripter: a *redis.Client,
// *redis.ClusterClient, or store.Sharded, which routes each script
// invocation to the shard owning the principal's bucket key. Scripter
// rather than the full Cmdable is all CheckAndConsume ever calls
// through, so that's all this constructor demands.
func NewRedisEngine(client redis.Scripter) Engine {
	return &redisEngine{client: client}
}

// CheckAndConsume runs the embedded script against key. go-redis's
// Script.Run sends EVALSHA first and transparently falls back to EVAL
// (re-registering the script) on a NOSCRIPT error, which is exactly the
// "register once, retry once on miss" behavior this component needs.
func (e *redisEngine) CheckAndConsume(ctx context.Context, key string, limits Limits) (Result, error) {
	res, err := consumeScript.Run(ctx, e.client, []string{key},
		limits.Capacity, limits.RefillRate, limits.Cost,
	).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("bucket script execution failed")
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 3 {
		log.Error().Interface("result", res).Str("key", key).Msg("bucket script returned unexpected shape")
		return Result{}, ErrUnexpectedResult
	}

	allowed, ok1 := vals[0].(int64)
	remaining, ok2 := vals[1].(int64)
	reset, ok3 := vals[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		log.Error().Interface("result", res).Str("key", key).Msg("bucket script returned unexpected types")
		return Result{}, ErrUnexpectedResult
	}

	return Result{
		Allowed:           allowed == 1,
		Remaining:         remaining,
		ResetEpochSeconds: reset,
	}, nil
}
