// Package gateway implements the HTTP middleware, response shaping, and
// operator-facing endpoints (C6, C7) that wrap the token-bucket engine
// and the abuse-mitigation module into a single decision point.
package gateway

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atlas/shield/audit"
	"github.com/atlas/shield/bucket"
	"github.com/atlas/shield/guard"
	"github.com/atlas/shield/identity"
	"github.com/atlas/shield/meta"
)

// SubjectExtractor resolves the authenticated subject for a request, if
// any. Return an empty identity.Subject when the request carries no
// authenticated identity.
type SubjectExtractor func(r *http.Request) identity.Subject

// Gateway composes the identifier chain, the ban gate, the token-bucket
// engine, and the audit bus into the single decision point every
// request traverses. Construct one per process and share it by
// reference; it is not a singleton looked up ambiently.
type Gateway struct {
	cfg     Config
	engine  bucket.Engine
	module  *guard.Module
	bus     *audit.Bus
	extract SubjectExtractor
}

// New builds a Gateway. extract may be nil, in which case every
// request is treated as unauthenticated for identification purposes.
func New(cfg Config, engine bucket.Engine, module *guard.Module, bus *audit.Bus, extract SubjectExtractor) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if extract == nil {
		extract = func(*http.Request) identity.Subject { return identity.Subject{} }
	}
	return &Gateway{cfg: cfg, engine: engine, module: module, bus: bus, extract: extract}, nil
}

// Middleware wraps next with the rate-limiting decision. A panic
// anywhere in the decision logic itself (never inside next, which runs
// outside the recovered section) is treated the same as a store
// failure: recovered, logged, and the request is admitted rather than
// surfaced as a 5xx, since a correctly functioning deployment of this
// middleware never originates a server error of its own.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.decide(w, r) {
			next.ServeHTTP(w, r)
		}
	})
}

// decide runs the full identification, ban-gate, and token-bucket
// decision, writing a denial response directly when the request is not
// admitted. It reports whether the caller should still invoke next.
func (g *Gateway) decide(w http.ResponseWriter, r *http.Request) (admit bool) {
	admit = true // panic-recovery default: fail open per the error taxonomy
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("action", "ALLOW (fail-open)").
				Bytes("stack", debug.Stack()).
				Msg("unexpected exception in rate-limit middleware")
			admit = true
		}
	}()

	start := time.Now()

	reqID := uuid.NewString()
	md := meta.New()
	md.Set("req_id", reqID)
	*r = *r.WithContext(md.WithContext(r.Context()))

	principal := identity.Identify(r, g.extract(r), g.cfg.ProxyTrust())

	defer func() {
		g.module.RecordLatency(time.Since(start))
	}()

	if banned, remaining := g.module.IsBanned(principal, time.Now()); banned {
		d := decision{
			banned:        true,
			remaining:     0,
			resetEpochS:   nowEpochSeconds() + int64(remaining.Seconds()),
			retryAfterS:   int64(remaining.Seconds()),
			banRemainingS: int64(remaining.Seconds()),
		}
		writeDenial(w, g.cfg.Capacity, d)
		g.emit(audit.Event{
			Timestamp: start, Kind: audit.KindBannedBlocked, ClientID: principal,
			Action: audit.ActionDeny, RemainingTokens: 0, RequestID: reqID,
			Detail: "banned principal blocked before reaching the store",
		})
		return false
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.StoreTimeout)
	defer cancel()

	key := g.cfg.KeyPrefix + principal
	res, err := g.engine.CheckAndConsume(ctx, key, bucket.Limits{
		Capacity:   g.cfg.Capacity,
		RefillRate: g.cfg.RefillRate,
		Cost:       g.cfg.Cost,
	})
	if err != nil {
		g.module.RecordStoreError()
		g.module.RecordFailOpen(principal)
		g.emit(audit.Event{
			Timestamp: start, Kind: audit.KindFailOpen, ClientID: principal,
			Action: audit.ActionAllow, RemainingTokens: g.cfg.Capacity, RequestID: reqID,
			Detail: "store unreachable or timed out",
		})
		return true
	}

	d := decision{
		allowed:     res.Allowed,
		remaining:   res.Remaining,
		resetEpochS: res.ResetEpochSeconds,
		retryAfterS: res.ResetEpochSeconds - nowEpochSeconds(),
	}
	if d.retryAfterS < 0 {
		d.retryAfterS = 0
	}

	if res.Allowed {
		g.module.Observe(principal, true, time.Now())
		setRateLimitHeaders(w, g.cfg.Capacity, d)
		g.emit(audit.Event{
			Timestamp: start, Kind: audit.KindAllowed, ClientID: principal,
			Action: audit.ActionAllow, RemainingTokens: res.Remaining, RequestID: reqID,
		})
		return true
	}

	justBanned := g.module.Observe(principal, false, time.Now())
	writeDenial(w, g.cfg.Capacity, d)

	kind := audit.KindBlocked
	if justBanned {
		kind = audit.KindMaliciousDetected
	}
	g.emit(audit.Event{
		Timestamp: start, Kind: kind, ClientID: principal,
		Action: audit.ActionDeny, RemainingTokens: res.Remaining, RequestID: reqID,
		Detail: "token bucket exhausted",
	})
	return false
}

func (g *Gateway) emit(ev audit.Event) {
	if g.bus != nil {
		g.bus.Publish(ev)
		return
	}
	log.Debug().Str("event_type", string(ev.Kind)).Str("client_id", ev.ClientID).Msg("audit bus not configured, dropping event")
}
