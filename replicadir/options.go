package replicadir

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Options configures a redisDirectory.
type Options struct {
	Client            redis.Cmdable
	KeyPrefix         string
	TTL               time.Duration
	HeartbeatInterval time.Duration
	WatchInterval     time.Duration
}

type Option func(*Options)

const (
	DefaultKeyPrefix        = "shield:replicas"
	DefaultTTL              = 30 * time.Second
	DefaultWatchInterval    = 15 * time.Second
	DefaultHeartbeatDivisor = 3
)

func newOptions(opts ...Option) *Options {
	options := &Options{
		KeyPrefix:     DefaultKeyPrefix,
		TTL:           DefaultTTL,
		WatchInterval: DefaultWatchInterval,
	}
	options.HeartbeatInterval = options.TTL / DefaultHeartbeatDivisor
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = 1 * time.Second
	}

	for _, o := range opts {
		o(options)
	}

	if options.HeartbeatInterval >= options.TTL {
		options.HeartbeatInterval = options.TTL / DefaultHeartbeatDivisor
		if options.HeartbeatInterval <= 0 {
			options.HeartbeatInterval = 1 * time.Second
		}
		log.Warn().Dur("ttl", options.TTL).Dur("adjusted_heartbeat", options.HeartbeatInterval).
			Msg("heartbeat interval was >= ttl, adjusted")
	}

	return options
}

// WithRedisClient sets the store client used for heartbeats/discovery.
func WithRedisClient(client redis.Cmdable) Option {
	return func(o *Options) { o.Client = client }
}

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Options) { o.KeyPrefix = prefix }
}

// WithTTL overrides the replica registration TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithWatchInterval overrides the peer-change poll interval.
func WithWatchInterval(interval time.Duration) Option {
	return func(o *Options) {
		if interval > 0 {
			o.WatchInterval = interval
		}
	}
}
