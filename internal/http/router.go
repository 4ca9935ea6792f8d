package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-ha/mwan3-status/internal/http/handlers"
)

// NewRouter builds the HTTP routing tree. metrics may be nil.
func NewRouter(api *handlers.API, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(middleware.Timeout(20 * time.Second))
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	r.Get("/healthz", api.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/status", api.Status)
		apiRouter.Get("/sensors", api.ListSensors)
		apiRouter.Get("/interfaces", api.ListInterfaces)
		apiRouter.Get("/interfaces/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.GetInterface(w, r, chi.URLParam(r, "name"))
		})
		apiRouter.Post("/refresh", api.Refresh)
		apiRouter.Post("/setup/validate", api.ValidateSetup)
		apiRouter.Get("/history/polls", api.ListPolls)
		apiRouter.Get("/history/events", api.ListEvents)
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
