package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/atlas/shield/pubsub"
)

const topic = "shield.audit"

// Bus decouples audit event emission from formatting and writing: the
// decision path publishes a Message and returns immediately; a
// subscriber drains the topic and calls Writer.Emit. If the bus has no
// reachable backend, Publish's own TryPublish failure is swallowed and
// the caller falls back to writing directly — observability must never
// block or fail a request.
type Bus struct {
	ps     pubsub.PubSub
	writer *Writer
}

// NewBus wires a PubSub backend (typically pubsub.NewMemoryPubSub, or
// pubsub.NewRedisPubSub when cross-replica audit visibility is wanted)
// to a Writer subscriber.
func NewBus(ps pubsub.PubSub, writer *Writer) (*Bus, error) {
	b := &Bus{ps: ps, writer: writer}
	_, err := ps.Subscribe(context.Background(), topic, func(ev Event) {
		writer.Emit(ev)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Publish attempts to hand ev to the bus without blocking the caller.
// On failure it writes directly as a fallback so the event is never
// lost to a request.
func (b *Bus) Publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.ps.TryPublish(ctx, topic, &pubsub.Message{Payload: ev})
	if err != nil {
		log.Debug().Err(err).Msg("audit bus publish failed, writing directly")
		b.writer.Emit(ev)
	}
}

// Close releases the bus's backend resources.
func (b *Bus) Close() error {
	return b.ps.Close()
}
