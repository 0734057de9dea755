package guard

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// alertBroadcaster is the minimal surface guard needs from worker.Publisher,
// kept narrow so this file does not import the worker package's full
// subscriber/manager machinery just to fire alerts.
type alertBroadcaster interface {
	Broadcast(ctx context.Context, topic string, args ...any) error
}

// WorkerAlertSink fans critical alerts out to a Redis-list topic via a
// worker.Publisher, so any replica running a worker.ConsumerManager
// subscription on the same topic can page on-call or drive dashboards.
// Broadcast is best-effort: a slow or unreachable store drops the alert
// rather than blocking the request that triggered it.
type WorkerAlertSink struct {
	pub   alertBroadcaster
	topic string
}

// NewWorkerAlertSink builds an AlertSink backed by pub, publishing to topic.
func NewWorkerAlertSink(pub alertBroadcaster, topic string) *WorkerAlertSink {
	return &WorkerAlertSink{pub: pub, topic: topic}
}

// Alert implements AlertSink.
func (s *WorkerAlertSink) Alert(kind, principal string) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.pub.Broadcast(ctx, s.topic, kind, principal, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("principal", principal).Msg("alert broadcast dropped")
	}
}
