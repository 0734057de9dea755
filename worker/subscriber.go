package worker

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// subscriber polls one topic's Redis list with BRPOP and dispatches
// each popped payload to a registered function handler.
type subscriber struct {
	rdb         redis.Cmdable
	topic       string
	opts        subscriptionOptions
	processChan chan []byte
	stopChan    chan struct{}
	managerWg   *sync.WaitGroup
	internalWg  sync.WaitGroup
	stopOnce    sync.Once

	handlerFunc reflect.Value
	handlerType reflect.Type
}

// run is the main poller goroutine: it blocks on BRPOP and forwards
// whatever it pops to the processor goroutines.
func (s *subscriber) run() {
	defer s.managerWg.Done()

	s.internalWg.Add(s.opts.concurrency)
	for i := 0; i < s.opts.concurrency; i++ {
		go s.runProcessor(i)
	}

	log.Debug().Str("topic", s.topic).Msg("alert list poller started (brpop)")

	defer close(s.processChan)

	for {
		select {
		case <-s.stopChan:
			log.Debug().Str("topic", s.topic).Msg("alert list poller stopping")
			return
		default:
		}

		result, err := s.rdb.BRPop(context.Background(), s.opts.blockTime, s.topic).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			select {
			case <-s.stopChan:
				return
			default:
			}
			log.Error().Err(err).Str("topic", s.topic).Msg("error during brpop")
			select {
			case <-time.After(time.Second):
			case <-s.stopChan:
				return
			}
			continue
		}

		if len(result) != 2 || result[0] != s.topic {
			log.Error().Str("topic", s.topic).Strs("brpop_result", result).Msg("invalid result format from brpop")
			continue
		}
		payload := []byte(result[1])

		select {
		case s.processChan <- payload:
		case <-s.stopChan:
			log.Warn().Str("topic", s.topic).Msg("subscriber stopping, discarding fetched alert")
			return
		}
	}
}

// runProcessor takes raw payloads off processChan, deserializes, and
// calls the handler.
func (s *subscriber) runProcessor(processorID int) {
	defer s.internalWg.Done()
	log.Debug().Str("topic", s.topic).Int("processor_id", processorID).Msg("handler processor started")

	for rawPayload := range s.processChan {
		args, err := deserializeArgs(rawPayload)
		if err != nil {
			log.Error().Err(err).Str("topic", s.topic).Int("processor_id", processorID).Msg("failed to deserialize alert payload, skipping")
			continue
		}
		s.executeHandler(args, processorID)
	}
	log.Debug().Str("topic", s.topic).Int("processor_id", processorID).Msg("handler processor finished")
}

// executeHandler calls the registered handler with args, converted to
// the handler's parameter types.
func (s *subscriber) executeHandler(args []any, processorID int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("topic", s.topic).Int("processor_id", processorID).Interface("panic_value", r).Msg("panic recovered during alert handler execution")
		}
	}()

	numExpected := s.handlerType.NumIn()
	if len(args) != numExpected {
		log.Error().Str("topic", s.topic).Int("processor_id", processorID).Int("expected_args", numExpected).Int("received_args", len(args)).Msg("argument count mismatch for alert handler")
		return
	}

	callArgs := make([]reflect.Value, numExpected)
	for i, arg := range args {
		expectedType := s.handlerType.In(i)
		argVal, err := prepareArgForCall(arg, expectedType)
		if err != nil {
			log.Error().Err(err).Str("topic", s.topic).Int("processor_id", processorID).Int("arg_index", i).Str("expected_type", expectedType.String()).Msg("argument type mismatch for alert handler")
			return
		}
		callArgs[i] = argVal
	}

	s.handlerFunc.Call(callArgs)
}

// stop signals the poller and processor goroutines to stop and waits
// for them to drain.
func (s *subscriber) stop() {
	s.stopOnce.Do(func() {
		log.Debug().Str("topic", s.topic).Msg("stopping alert subscriber...")
		close(s.stopChan)
		s.internalWg.Wait()
		log.Debug().Str("topic", s.topic).Msg("alert subscriber processor goroutines finished")
	})
}
