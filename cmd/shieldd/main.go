// Command shieldd runs the rate-limiting gateway as a standalone HTTP
// process: it terminates requests, applies the token-bucket and
// abuse-mitigation decision, and forwards admitted requests to an
// upstream handler (a reverse proxy when SHIELD_UPSTREAM_URL is set,
// otherwise a trivial 200 OK responder useful for smoke-testing).
package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/atlas/shield/audit"
	"github.com/atlas/shield/bucket"
	"github.com/atlas/shield/extension"
	"github.com/atlas/shield/gateway"
	"github.com/atlas/shield/guard"
	"github.com/atlas/shield/pubsub"
	"github.com/atlas/shield/replicadir"
	"github.com/atlas/shield/store"
	"github.com/atlas/shield/worker"
)

func main() {
	cfg, err := resolveConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve configuration")
	}

	configureLogger(cfg.Gateway.Environment)

	if err := cfg.Gateway.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	scripter, storeClient, err := connectStore(cfg.StoreURLs, cfg.Gateway.StoreTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}

	engine := bucket.NewRedisEngine(scripter)

	writer := audit.NewWriter()
	bus, err := audit.NewBus(auditBackend(cfg.AuditBackend, storeClient), writer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start audit bus")
	}
	writer.Emit(audit.Event{Timestamp: time.Now(), Kind: audit.KindServerStarted, Action: audit.ActionAllow})

	alertPublisher := worker.NewPublisher(storeClient)
	alertSink := guard.NewWorkerAlertSink(alertPublisher, cfg.AuditTopic)

	module := guard.New(guard.Config{
		ViolationWindow: cfg.Gateway.ViolationWindow,
		BanThreshold:    cfg.Gateway.BanThreshold,
		BanDuration:     cfg.Gateway.BanDuration,
		LatencyHistory:  cfg.Gateway.LatencyHistorySize,
	}, alertSink)

	gw, err := gateway.New(cfg.Gateway, engine, module, bus, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	mux := http.NewServeMux()
	mux.Handle("/", gw.Middleware(upstreamHandler()))
	mux.HandleFunc("/metrics", gw.MetricsHandler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gateway.Recover(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	mgr := extension.New()
	alertConsumers := worker.NewConsumerManager(storeClient)
	sweeper := guard.NewSweeper(module, storeClient)
	var dir replicadir.Directory
	var deregister func(context.Context) error

	mustRegister(mgr, &funcExtension{
		name: "alert-consumer",
		load: func() error {
			_, err := alertConsumers.Subscribe(cfg.AuditTopic, func(kind, principal, at string) {
				log.Warn().Str("kind", kind).Str("principal", principal).Str("at", at).Msg("critical alert")
			})
			return err
		},
		shutdown: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return alertConsumers.Shutdown(ctx)
		},
	})

	mustRegister(mgr, &funcExtension{
		name: "sweeper",
		load: func() error {
			sweeper.Start()
			return nil
		},
		shutdown: func() error {
			sweeper.Stop()
			return nil
		},
	})

	if cfg.ReplicaKeyPrefix != "" {
		mustRegister(mgr, &funcExtension{
			name: "replica-directory",
			load: func() error {
				d, err := replicadir.NewRedisDirectory(
					replicadir.WithRedisClient(storeClient),
					replicadir.WithKeyPrefix(cfg.ReplicaKeyPrefix),
				)
				if err != nil {
					log.Warn().Err(err).Msg("replica directory disabled")
					return nil
				}
				dr, err := d.Register(context.Background(), &replicadir.Instance{Address: cfg.ListenAddr})
				if err != nil {
					log.Warn().Err(err).Msg("replica registration failed")
					return nil
				}
				dir = d
				deregister = dr
				return nil
			},
			shutdown: func() error {
				if deregister != nil {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return deregister(ctx)
				}
				return nil
			},
		})
	}

	mustRegister(mgr, &funcExtension{
		name: "http-server",
		load: func() error {
			// dir is only populated once the replica-directory
			// extension (registered earlier, so loaded first) has
			// run, which is why HealthHandler is wired here rather
			// than at mux-construction time.
			mux.HandleFunc("/healthz", gw.HealthHandler(storeClient, dir))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("http server failed")
				}
			}()
			return nil
		},
		shutdown: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		},
	})

	if err := mgr.LoadAll(); err != nil {
		log.Fatal().Err(err).Msg("failed to start shieldd")
	}
	log.Info().Str("addr", cfg.ListenAddr).Msg("shieldd listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	if err := mgr.ShutdownAll(); err != nil {
		log.Error().Err(err).Msg("shutdown completed with errors")
	}
	_ = bus.Close()
	if closer, ok := scripter.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

// connectStore dials either a single store endpoint or, when storeURLs
// holds more than one comma-separated address, a sharded set of them.
// It returns two views of the same connection(s): a redis.Scripter for
// the bucket engine, which shards per-key traffic when multiple
// endpoints are configured, and a redis.Cmdable for everything else
// (alert queue, sweeper lock, replica directory, health checks), which
// always points at a single designated endpoint since none of those
// are meant to scale with client cardinality.
func connectStore(storeURLs string, timeout time.Duration) (redis.Scripter, redis.Cmdable, error) {
	urls := strings.Split(storeURLs, ",")
	if len(urls) <= 1 {
		client, err := store.New(store.Config{URL: storeURLs, Timeout: timeout})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}

	sharded, err := store.NewSharded(storeURLs, timeout)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int("shards", sharded.Shards()).Msg("sharding store traffic across endpoints")
	return sharded, sharded.Primary(), nil
}

// auditBackend selects the audit bus's pub/sub backend. "redis" keeps
// emitted events visible across a restart and across replicas at the
// cost of a round trip per event; the default, memory, is enough for a
// single process and adds none.
func auditBackend(kind string, storeClient redis.Cmdable) pubsub.PubSub {
	if kind == "redis" {
		return pubsub.NewRedisPubSub(storeClient)
	}
	return pubsub.NewMemoryPubSub()
}

func mustRegister(mgr *extension.ExtensionManager, ext extension.Extension) {
	if err := mgr.Register(ext); err != nil {
		log.Fatal().Err(err).Str("extension", ext.Name()).Msg("failed to register extension")
	}
}

// upstreamHandler forwards to SHIELD_UPSTREAM_URL when set, otherwise
// answers every admitted request directly so the gateway is useful to
// smoke-test on its own.
func upstreamHandler() http.Handler {
	raw := os.Getenv("SHIELD_UPSTREAM_URL")
	if raw == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})
	}
	target, err := url.Parse(raw)
	if err != nil {
		log.Fatal().Err(err).Str("url", raw).Msg("invalid SHIELD_UPSTREAM_URL")
	}
	return httputil.NewSingleHostReverseProxy(target)
}

func configureLogger(env gateway.Environment) {
	if env == gateway.EnvDevelopment {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
