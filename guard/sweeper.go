package guard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/atlas/shield/redlock"
)

const sweepInterval = 120 * time.Second

// Sweeper runs the periodic cleanup sweep (§4.4) on a timer. When a
// store is configured it elects a single leader across replicas via
// redlock so N replicas don't redundantly scan the same (replica-local)
// state; a replica that finds the lock held by another skips its tick.
// When no store is configured, or the store can't be reached to take
// the lock, every replica just sweeps its own local state, which is
// correct because ban/violation state is intentionally not shared.
type Sweeper struct {
	module *Module
	locker *redlock.Locker // nil when running without leader election
	stop   chan struct{}
	done   chan struct{}
}

// NewSweeper builds a Sweeper. Pass a nil client to run without leader
// election (every replica sweeps its own state unconditionally).
func NewSweeper(module *Module, client redis.Cmdable) *Sweeper {
	s := &Sweeper{
		module: module,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if client != nil {
		locker, err := redlock.NewLocker(client, "shield:sweeper:lock",
			redlock.WithTTL(sweepInterval/2),
			redlock.WithMaxRetries(0),
		)
		if err != nil {
			log.Warn().Err(err).Msg("sweeper leader election disabled, falling back to per-replica sweeps")
		} else {
			s.locker = locker
		}
	}
	return s
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the current tick to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) tick() {
	now := time.Now()

	if s.locker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.locker.TryLock(ctx)
		cancel()
		switch {
		case errors.Is(err, redlock.ErrLockNotAcquired):
			log.Debug().Err(err).Msg("sweeper lock held by another replica, skipping this tick")
			return
		case err != nil:
			log.Warn().Err(err).Msg("sweeper lock unavailable, sweeping local state")
		default:
			defer func() {
				uctx, ucancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer ucancel()
				if err := s.locker.Unlock(uctx); err != nil {
					log.Warn().Err(err).Msg("sweeper failed to release leader lock")
				}
			}()
		}
	}

	bans, violations := s.module.Sweep(now)
	log.Debug().Int("bans_purged", bans).Int("violations_purged", violations).Msg("sweep complete")
}
