package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kimhsiao/fitnix/console/cmd/console/handlers"
	"github.com/kimhsiao/fitnix/console/internal/logging"
	"github.com/kimhsiao/fitnix/console/internal/sync/queue"
)

const serviceName = "fitnix-console"

// routes bundles the handlers mounted on the control surface.
type routes struct {
	queue   *handlers.QueueHandler
	sync    *handlers.SyncHandler
	session *handlers.SessionHandler
	gym     *handlers.GymHandler
	hub     *WSHub
	origins []string
	started time.Time
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health(serviceName, rt.started))

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", rt.queue.List)
		r.Post("/", rt.queue.Enqueue)
		r.Delete("/", rt.queue.Clear)
		r.Delete("/{id}", rt.queue.Remove)
	})

	r.Post("/sync", rt.sync.Trigger)
	r.Get("/sync/status", rt.sync.Status)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", rt.session.Current)
		r.Post("/login", rt.session.Login)
		r.Post("/logout", rt.session.Logout)
		r.Post("/refresh", rt.session.Refresh)
	})

	r.Route("/api", rt.gym.Routes)

	r.Get("/ws", rt.hub.ServeWS)
	return r
}

// requestLogger logs each request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("Request served", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  chimw.GetReqID(r.Context()),
		})
	})
}

// observedQueue announces every change to the offline queue.
type observedQueue struct {
	*queue.ActionStore
	onChange func(pending int)
}

func (q *observedQueue) notify(ctx context.Context) {
	n, err := q.Count(context.WithoutCancel(ctx))
	if err != nil {
		logging.Warn("Failed to count queued actions", map[string]interface{}{"error": err.Error()})
		return
	}
	q.onChange(n)
}

func (q *observedQueue) Enqueue(ctx context.Context, action queue.NewAction) (int64, error) {
	id, err := q.ActionStore.Enqueue(ctx, action)
	if err == nil {
		q.notify(ctx)
	}
	return id, err
}

func (q *observedQueue) Remove(ctx context.Context, id int64) error {
	err := q.ActionStore.Remove(ctx, id)
	if err == nil {
		q.notify(ctx)
	}
	return err
}

func (q *observedQueue) Clear(ctx context.Context) error {
	err := q.ActionStore.Clear(ctx)
	if err == nil {
		q.notify(ctx)
	}
	return err
}
