package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Publisher pushes alerts onto Redis lists via LPUSH, for a
// ConsumerManager elsewhere (same process or a replica) to BRPOP.
type Publisher struct {
	rdb  redis.Cmdable
	opts publisherOptions
}

// NewPublisher creates a new Publisher.
func NewPublisher(rdb redis.Cmdable, opts ...PublisherOption) *Publisher {
	cfg := defaultPublisherOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Publisher{rdb: rdb, opts: cfg}
}

// Pub pushes args onto topic's list, bounded by the publisher's
// configured default timeout.
func (p *Publisher) Pub(topic string, args ...any) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.defaultPubTimeout)
	defer cancel()
	return p.publishInternal(ctx, topic, false, args...)
}

// PubCtx pushes args onto topic's list using ctx, adding the
// publisher's default timeout if ctx has no deadline of its own.
func (p *Publisher) PubCtx(ctx context.Context, topic string, args ...any) error {
	if _, deadlineSet := ctx.Deadline(); !deadlineSet {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.defaultPubTimeout)
		defer cancel()
	}
	return p.publishInternal(ctx, topic, false, args...)
}

// Broadcast pushes args onto topic's list with best effort: an LPUSH
// that doesn't complete within the publisher's broadcast timeout is
// dropped rather than delaying the caller, since alert delivery isn't
// allowed to slow down the request path that raised it.
func (p *Publisher) Broadcast(ctx context.Context, topic string, args ...any) error {
	bctx, cancel := context.WithTimeout(ctx, p.opts.broadcastTimeout)
	defer cancel()

	err := p.publishInternal(bctx, topic, true, args...)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn().Str("topic", topic).Err(err).Msg("alert dropped due to timeout during lpush")
		return nil
	}
	return err
}

// publishInternal serializes args, LPUSHes the payload onto topic,
// and optionally LTRIMs the list down to its configured max length.
func (p *Publisher) publishInternal(ctx context.Context, topic string, isBroadcast bool, args ...any) error {
	if topic == "" {
		return errors.New("topic cannot be empty")
	}
	if len(args) == 0 {
		return errors.New("no alert arguments provided")
	}

	payload, err := serializeArgs(args...)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to serialize alert arguments")
		return fmt.Errorf("serialization failed: %w", err)
	}

	if _, err := p.rdb.LPush(ctx, topic, payload).Result(); err != nil {
		if isBroadcast && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return err
		}
		logEvent := log.Error()
		if isBroadcast {
			logEvent = log.Warn()
		}
		logEvent.Err(err).Str("topic", topic).Msg("failed to publish alert (lpush)")
		return err
	}

	if p.opts.listMaxLen > 0 {
		if trimErr := p.rdb.LTrim(ctx, topic, 0, p.opts.listMaxLen-1).Err(); trimErr != nil {
			log.Warn().Err(trimErr).Str("topic", topic).Int64("max_len", p.opts.listMaxLen).Msg("failed to trim alert list after lpush")
		}
	}

	log.Debug().Str("topic", topic).Int("arg_count", len(args)).Bool("is_broadcast", isBroadcast).Msg("alert published to list")
	return nil
}
