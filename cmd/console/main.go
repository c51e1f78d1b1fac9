// Package main runs the Fitnix console's local process: the offline queue,
// the network worker, background sync and a small REST/WebSocket control
// surface on localhost.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kimhsiao/fitnix/console/cmd/console/handlers"
	"github.com/kimhsiao/fitnix/console/internal/apiclient"
	"github.com/kimhsiao/fitnix/console/internal/authz"
	"github.com/kimhsiao/fitnix/console/internal/config"
	"github.com/kimhsiao/fitnix/console/internal/crypto"
	"github.com/kimhsiao/fitnix/console/internal/db"
	"github.com/kimhsiao/fitnix/console/internal/gym"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/session"
	syncpkg "github.com/kimhsiao/fitnix/console/internal/sync"
	"github.com/kimhsiao/fitnix/console/internal/sync/queue"
	"github.com/kimhsiao/fitnix/console/internal/sync/scheduler"
	"github.com/kimhsiao/fitnix/console/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logging.Init(os.Stdout, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logging.Error("Invalid configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("Console stopped with error", err)
		os.Exit(1)
	}
}

// app holds everything main wires together.
type app struct {
	handle    *db.Handle
	redis     *redis.Client
	sessions  *session.Store
	worker    *worker.Worker
	client    *apiclient.Client
	queue     *observedQueue
	engine    *syncpkg.Engine
	scheduler *scheduler.Scheduler
	gym       *gym.Service
	hub       *WSHub
	router    http.Handler
}

// build wires the console. Nothing is started.
func build(cfg *config.Config) (*app, error) {
	a := &app{handle: db.NewHandle(cfg.DataDir)}
	a.hub = NewWSHub(cfg.CORSOrigins)

	// One key seals both the stored session and queued request bodies.
	var sealer *crypto.Sealer
	if cfg.SessionKey != "" {
		var err error
		if sealer, err = crypto.NewSealer(cfg.SessionKey); err != nil {
			return nil, err
		}
	}

	var backend session.Backend
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		backend = session.NewRedisBackend(a.redis, session.DefaultRedisPrefix)
	default:
		backend = session.NewSQLiteBackend(a.handle)
	}
	if sealer != nil {
		backend = session.NewSealedBackend(backend, sealer)
	}
	a.sessions = session.NewStore(backend)
	a.sessions.Subscribe(a.hub.BroadcastSession)

	a.worker = worker.New(worker.NewSQLiteCacheStorage(a.handle))

	opts := []apiclient.Option{
		apiclient.WithTransport(a.worker),
		apiclient.WithClassifier(authz.NewClassifier(cfg.AuthzPhrases)),
		apiclient.OnAuthenticationFailure(func(e *apiclient.APIError) {
			logging.Warn("Session rejected by the API, sign-in required",
				map[string]interface{}{"method": e.Method, "path": e.Path, "status": e.Status})
		}),
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, apiclient.WithTimeout(cfg.HTTPTimeout))
	}
	a.client = apiclient.New(cfg.APIURL, a.sessions, opts...)

	actions := queue.NewActionStore(a.handle)
	if sealer != nil {
		actions.SetSealer(sealer)
	}
	a.queue = &observedQueue{
		ActionStore: actions,
		onChange:    a.hub.BroadcastQueueChanged,
	}

	a.engine = syncpkg.NewEngine(a.queue, a.client)
	a.engine.SetEventHandler(a.hub)

	a.scheduler = scheduler.NewScheduler(a.engine, a.queue,
		scheduler.NewHTTPProber(cfg.APIURL, cfg.ProbeInterval),
		&scheduler.SchedulerConfig{SyncInterval: cfg.SyncInterval, ProbeInterval: cfg.ProbeInterval})

	a.gym = gym.NewService(a.client, a.queue, a.sessions)
	a.gym.SetSyncRegistrar(a.scheduler.Register)

	a.router = newRouter(routes{
		queue:   handlers.NewQueueHandler(a.queue),
		sync:    handlers.NewSyncHandler(a.scheduler, a.engine),
		session: handlers.NewSessionHandler(a.gym, a.sessions),
		gym:     handlers.NewGymHandler(a.gym),
		hub:     a.hub,
		origins: cfg.CORSOrigins,
		started: time.Now(),
	})
	return a, nil
}

// start opens the store, activates the worker and starts background sync.
func (a *app) start(ctx context.Context) error {
	if err := a.queue.Open(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis session backend unreachable: %w", err)
		}
	}
	if err := a.worker.Activate(ctx); err != nil {
		return err
	}
	a.scheduler.Start(ctx)
	return nil
}

// close stops background work and releases storage.
func (a *app) close() {
	a.scheduler.Stop()
	a.hub.Stop()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logging.Warn("Failed to close redis client", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := a.handle.Close(); err != nil {
		logging.Warn("Failed to close database", map[string]interface{}{"error": err.Error()})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Console listening", map[string]interface{}{
			"addr":            cfg.ListenAddr,
			"api_url":         cfg.APIURL,
			"session_backend": cfg.SessionBackend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Shutting down console")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
