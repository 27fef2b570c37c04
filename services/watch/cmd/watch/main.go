package main

import (
	"context"
	"errors"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/movieon/internal/platform/analytics"
	"github.com/example/movieon/internal/platform/config"
	"github.com/example/movieon/internal/platform/db"
	"github.com/example/movieon/internal/platform/httpserver"
	"github.com/example/movieon/internal/platform/logging"
	"github.com/example/movieon/internal/platform/natsconn"
	"github.com/example/movieon/internal/platform/profile"
	"github.com/example/movieon/internal/platform/run"
	"github.com/example/movieon/services/watch/internal/catalog"
	watchconfig "github.com/example/movieon/services/watch/internal/config"
	"github.com/example/movieon/services/watch/internal/handlers"
	watchhttp "github.com/example/movieon/services/watch/internal/http"
	"github.com/example/movieon/services/watch/internal/kv"
	"github.com/example/movieon/services/watch/internal/session"
	"github.com/example/movieon/services/watch/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	wcfg, err := watchconfig.LoadWatch(cfg.IsProduction())
	if err != nil {
		log.Error("load watch config", zap.Error(err))
		run.Exit(1)
	}
	strategy, err := wcfg.Strategy()
	if err != nil {
		log.Error("sampling strategy", zap.Error(err))
		run.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage, err := kv.Open(ctx, wcfg.KV(), cfg.IsProduction())
	if err != nil {
		log.Error("open storage", zap.Error(err))
		run.Exit(1)
	}

	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	if wcfg.NATSURL != "" {
		nc, err = natsconn.Connect(natsconn.Options{URL: wcfg.NATSURL, Name: cfg.ServiceName, Logger: log})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		defer nc.Close()
		js, err = nc.JetStream()
		if err != nil {
			log.Warn("jetstream unavailable, async writes disabled", zap.Error(err))
			js = nil
		}
	}
	if js != nil {
		if err := natsconn.EnsureStream(js, worker.StreamConfig()); err != nil {
			log.Warn("ensure watch stream", zap.Error(err))
			js = nil
		} else if err := natsconn.EnsureStream(js, &nats.StreamConfig{
			Name:     "WATCH_ANALYTICS",
			Subjects: []string{"analytics.watch.>"},
			MaxAge:   7 * 24 * time.Hour,
		}); err != nil {
			log.Warn("ensure analytics stream", zap.Error(err))
		}
	}

	var src catalog.Source = catalog.NewMemorySource()
	if wcfg.Storage.DatabaseURL != "" {
		pool, err := db.Open(ctx, wcfg.Storage.DatabaseURL, db.PoolOptions{AppName: cfg.ServiceName + "-catalog"})
		if err != nil {
			log.Error("catalog db open", zap.Error(err))
			run.Exit(1)
		}
		defer pool.Close()
		src = catalog.NewPostgresSource(pool)
	} else {
		log.Warn("DATABASE_URL not set, catalog is empty; sessions need video_url")
	}
	cached, err := catalog.NewCached(src, wcfg.CatalogTTL, nc)
	if err != nil {
		log.Error("catalog cache", zap.Error(err))
		run.Exit(1)
	}
	defer func() { _ = cached.Close() }()

	ap := analytics.New(js, log)
	sessions := session.NewManager(storage, cached, session.Config{
		Strategy:       strategy,
		RuntimeTimeout: wcfg.Player.RuntimeTimeout,
		IdleTTL:        wcfg.SessionIdle,
		MaxEntries:     wcfg.MaxEntries,
	}, ap, log)
	go sessions.Run(ctx)

	publisher := worker.NewEventPublisher(js, wcfg.AsyncWrites)
	if publisher.Enabled() {
		consumer := worker.NewProgressConsumer(sessions.Store, worker.ConsumerConfig{
			BatchSize:     wcfg.Worker.BatchSize,
			BatchInterval: wcfg.Worker.BatchInterval,
		}, log)
		if err := consumer.Start(ctx, js); err != nil {
			log.Error("start progress consumer", zap.Error(err))
			run.Exit(1)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			if nc != nil && !nc.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		},
	})
	r.Group(func(r chi.Router) {
		r.Use(profile.Middleware(profile.Issuer{Secret: wcfg.ProfileSecret}))
		handlers.Mount(r, handlers.Deps{
			Sessions:  sessions,
			Publisher: publisher,
			Limiter:   watchhttp.NewRateLimiter(wcfg.EventsRPS, wcfg.EventsBurst),
			Logger:    log,
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Handler: r})

	runner := run.New(log)
	runner.ShutdownTimeout = cfg.ShutdownTimeout
	code := runner.WithSignals(func(context.Context) error {
		return srv.Start()
	})

	cancel()
	runner.Graceful(srv.Shutdown, sessions.Shutdown, func(context.Context) error {
		closeStorage()
		return nil
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
