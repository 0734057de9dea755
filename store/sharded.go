package store

import (
	"context"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"github.com/redis/go-redis/v9"
)

// Sharded distributes per-principal bucket keys across several
// independently-configured store endpoints using rendezvous hashing, so
// one oversized shard of hot clients doesn't bottleneck every other
// client sharing the deployment. It satisfies redis.Scripter, the
// narrow interface the token-bucket engine actually calls through, by
// routing each script invocation to the shard that owns KEYS[1].
//
// Only the bucket engine's per-key traffic is sharded this way.
// Ancillary infrastructure that isn't keyed per principal — the
// sweeper's lock, the alert queue, the replica directory, health pings
// — uses Primary, a single designated endpoint, since none of those
// are meant to scale with client cardinality.
type Sharded struct {
	endpoints []*redis.Client
	names     []string
	hash      *rendezvous.Rendezvous
}

// NewSharded builds a Sharded store from a comma-separated list of
// store_url values and a shared dial timeout, one connection per
// endpoint. A single URL with no comma is accepted and degenerates to
// routing every key to that one endpoint.
func NewSharded(rawURLs string, timeout time.Duration) (*Sharded, error) {
	urls := strings.Split(rawURLs, ",")
	endpoints := make([]*redis.Client, 0, len(urls))
	names := make([]string, 0, len(urls))

	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		client, err := New(Config{URL: u, Timeout: timeout})
		if err != nil {
			for _, c := range endpoints {
				_ = c.Close()
			}
			return nil, err
		}
		endpoints = append(endpoints, client)
		names = append(names, u)
	}

	hash := rendezvous.New(names, xxhash.Sum64String)
	return &Sharded{endpoints: endpoints, names: names, hash: hash}, nil
}

// Pick returns the shard owning key.
func (s *Sharded) Pick(key string) *redis.Client {
	if len(s.endpoints) == 1 {
		return s.endpoints[0]
	}
	name := s.hash.Lookup(key)
	for i, n := range s.names {
		if n == name {
			return s.endpoints[i]
		}
	}
	return s.endpoints[0]
}

// pickForKeys routes on the first key, matching how bucket.Engine calls
// the script: one KEYS entry per call, always the principal's bucket
// key. A script invoked with no keys has nothing to shard on, so it
// falls back to Primary.
func (s *Sharded) pickForKeys(keys []string) *redis.Client {
	if len(keys) == 0 {
		return s.Primary()
	}
	return s.Pick(keys[0])
}

// Primary returns the designated endpoint for infrastructure that
// isn't sharded per key.
func (s *Sharded) Primary() *redis.Client {
	return s.endpoints[0]
}

// Eval implements redis.Scripter by routing to the shard owning keys[0].
func (s *Sharded) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.pickForKeys(keys).Eval(ctx, script, keys, args...)
}

// EvalSha implements redis.Scripter by routing to the shard owning keys[0].
func (s *Sharded) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.pickForKeys(keys).EvalSha(ctx, sha1, keys, args...)
}

// EvalRO implements redis.Scripter by routing to the shard owning keys[0].
func (s *Sharded) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.pickForKeys(keys).EvalRO(ctx, script, keys, args...)
}

// EvalShaRO implements redis.Scripter by routing to the shard owning keys[0].
func (s *Sharded) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.pickForKeys(keys).EvalShaRO(ctx, sha1, keys, args...)
}

// ScriptExists implements redis.Scripter against Primary. The consume
// script is small enough that every shard ends up caching it after its
// first EVAL-on-NOSCRIPT fallback regardless, so this never needs to
// fan out.
func (s *Sharded) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return s.Primary().ScriptExists(ctx, hashes...)
}

// ScriptLoad implements redis.Scripter against Primary, for the same
// reason as ScriptExists.
func (s *Sharded) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return s.Primary().ScriptLoad(ctx, script)
}

// Close closes every underlying connection.
func (s *Sharded) Close() error {
	var firstErr error
	for _, c := range s.endpoints {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping checks that at least one shard is reachable, for health
// reporting purposes.
func (s *Sharded) Ping(ctx context.Context) error {
	var lastErr error
	for _, c := range s.endpoints {
		if err := c.Ping(ctx).Err(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// Shards reports how many endpoints are currently participating, for
// startup logging.
func (s *Sharded) Shards() int {
	return len(s.endpoints)
}

var _ redis.Scripter = (*Sharded)(nil)
