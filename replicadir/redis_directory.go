package replicadir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type redisDirectory struct {
	opts    *Options
	client  redis.Cmdable
	mu      sync.Mutex
	stopChs map[string]chan struct{}
}

// NewRedisDirectory creates a Redis-backed replica directory.
func NewRedisDirectory(opts ...Option) (Directory, error) {
	options := newOptions(opts...)
	if options.Client == nil {
		return nil, errors.New("replicadir: redis client is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := options.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("replicadir: failed to connect to store: %w", err)
	}

	return &redisDirectory{
		opts:    options,
		client:  options.Client,
		stopChs: make(map[string]chan struct{}),
	}, nil
}

func (d *redisDirectory) instanceKey(instance *Instance) string {
	return fmt.Sprintf("%s:%s:%s", d.opts.KeyPrefix, serviceName, instance.ID)
}

func (d *redisDirectory) servicePrefix() string {
	return fmt.Sprintf("%s:%s:", d.opts.KeyPrefix, serviceName)
}

// Register adds this replica and starts its heartbeat.
func (d *redisDirectory) Register(ctx context.Context, instance *Instance) (func(context.Context) error, error) {
	if instance.Address == "" {
		return nil, errors.New("replicadir: instance address is required")
	}
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	if instance.Metadata == nil {
		instance.Metadata = make(map[string]string)
	}

	key := d.instanceKey(instance)
	valueBytes, err := json.Marshal(instance)
	if err != nil {
		return nil, fmt.Errorf("replicadir: failed to marshal instance: %w", err)
	}

	if err := d.client.Set(ctx, key, valueBytes, d.opts.TTL).Err(); err != nil {
		return nil, fmt.Errorf("replicadir: failed to register instance: %w", err)
	}
	log.Info().Stringer("instance", instance).Dur("ttl", d.opts.TTL).Msg("replica registered")

	d.mu.Lock()
	if oldCh, exists := d.stopChs[key]; exists {
		close(oldCh)
	}
	stopCh := make(chan struct{})
	d.stopChs[key] = stopCh
	d.mu.Unlock()

	go d.keepAlive(instance, stopCh)

	return func(deregisterCtx context.Context) error {
		return d.deregister(deregisterCtx, instance)
	}, nil
}

func (d *redisDirectory) keepAlive(instance *Instance, stopCh <-chan struct{}) {
	key := d.instanceKey(instance)
	ticker := time.NewTicker(d.opts.HeartbeatInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			expired, err := d.client.Expire(ctx, key, d.opts.TTL).Result()
			if err != nil {
				log.Error().Err(err).Stringer("instance", instance).Msg("replica heartbeat failed to renew ttl")
				continue
			}
			if !expired {
				valueBytes, marshalErr := json.Marshal(instance)
				if marshalErr != nil {
					continue
				}
				if setErr := d.client.Set(ctx, key, valueBytes, d.opts.TTL).Err(); setErr != nil {
					log.Error().Err(setErr).Stringer("instance", instance).Msg("failed to re-register expired replica")
				}
			}
		}
	}
}

func (d *redisDirectory) deregister(ctx context.Context, instance *Instance) error {
	key := d.instanceKey(instance)

	d.mu.Lock()
	if stopCh, exists := d.stopChs[key]; exists {
		close(stopCh)
		delete(d.stopChs, key)
	}
	d.mu.Unlock()

	if err := d.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("replicadir: failed to deregister instance: %w", err)
	}
	return nil
}

// Peers lists live replicas using SCAN+MGET.
func (d *redisDirectory) Peers(ctx context.Context) ([]*Instance, error) {
	keys, err := d.scanKeys(ctx, d.servicePrefix()+"*")
	if err != nil {
		return nil, fmt.Errorf("replicadir: scan failed: %w", err)
	}
	if len(keys) == 0 {
		return []*Instance{}, nil
	}

	values, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("replicadir: mget failed: %w", err)
	}

	instances := make([]*Instance, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var inst Instance
		if err := json.Unmarshal([]byte(s), &inst); err != nil {
			log.Warn().Err(err).Str("key", keys[i]).Msg("failed to unmarshal replica entry, skipping")
			continue
		}
		instances = append(instances, &inst)
	}
	return instances, nil
}

func (d *redisDirectory) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := d.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// Watch polls for peer-set changes at the configured interval.
func (d *redisDirectory) Watch(ctx context.Context) (<-chan []*Instance, error) {
	ch := make(chan []*Instance, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(d.opts.WatchInterval)
		defer ticker.Stop()

		current, err := d.Peers(ctx)
		if err != nil {
			current = []*Instance{}
		}
		lastHash := hashInstances(current)
		select {
		case ch <- current:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				peers, err := d.Peers(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("replica watch poll failed")
					continue
				}
				newHash := hashInstances(peers)
				if newHash != lastHash {
					select {
					case ch <- peers:
						lastHash = newHash
					default:
						lastHash = newHash
					}
				}
			}
		}
	}()

	return ch, nil
}

// Close stops every heartbeat this directory instance started.
func (d *redisDirectory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, ch := range d.stopChs {
		close(ch)
		delete(d.stopChs, key)
	}
	return nil
}
