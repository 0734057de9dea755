// Package meta carries request-scoped values (the decision's request
// ID, the resolved principal, anything a handler downstream of the
// gateway's Middleware needs) through a context.Context without every
// caller agreeing on a fixed struct shape up front.
package meta

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// metadataKey is the private context key Metadata is stored under.
type metadataKey struct{}

// Metadata is a concurrency-safe bag of request-scoped key/value
// pairs.
type Metadata struct {
	mu   sync.RWMutex
	data map[string]any
}

// New creates an empty Metadata store.
func New() *Metadata {
	return &Metadata{data: make(map[string]any)}
}

// Set stores value under key.
func (m *Metadata) Set(key string, value any) {
	if m == nil {
		log.Error().Str("key", key).Msg("attempted to set metadata on nil metadata instance")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data == nil {
		m.data = make(map[string]any)
	}
	m.data[key] = value
}

// Get retrieves the raw value stored under key.
func (m *Metadata) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil, false
	}
	value, ok := m.data[key]
	return value, ok
}

// WithContext returns ctx carrying m, so a handler downstream can
// recover it with Get.
func (m *Metadata) WithContext(ctx context.Context) context.Context {
	if m == nil {
		log.Warn().Msg("attempted to call withcontext on nil metadata, returning original context")
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metadataKey{}, m)
}

// FromContext extracts the Metadata store carried by ctx, or an empty
// one if ctx carries none.
func FromContext(ctx context.Context) *Metadata {
	if ctx == nil {
		return New()
	}

	value := ctx.Value(metadataKey{})
	if value == nil {
		return New()
	}

	if md, ok := value.(*Metadata); ok {
		return md
	}

	log.Error().Str("value_type", fmt.Sprintf("%T", value)).Msg("metadata key found in context but value has wrong type")
	return New()
}

// Get retrieves the value stored under key in ctx's Metadata, type
// asserted to T. Returns an error if key is absent or stores a value
// of a different type.
func Get[T any](ctx context.Context, key string) (t T, err error) {
	md := FromContext(ctx)

	rawValue, ok := md.Get(key)
	if !ok {
		err = fmt.Errorf("meta: key '%s' not found in context metadata", key)
		return
	}

	typedValue, ok := rawValue.(T)
	if !ok {
		err = fmt.Errorf("meta: value for key '%s' has type %T, but type %T was requested", key, rawValue, *new(T))
		return
	}

	t = typedValue
	return
}
