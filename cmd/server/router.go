package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fenwick-io/task-agent/internal/api"
	apiMiddleware "github.com/fenwick-io/task-agent/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.engine, app.logger)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/task/inference", taskHandler.SubmitTask)
		r.Get("/task/{id}", taskHandler.GetTask)
		r.Delete("/task/{id}", taskHandler.CancelTask)
		r.Get("/tasks", taskHandler.ListTasks)

		r.Get("/health", taskHandler.Health)
		r.Get("/metrics", taskHandler.Metrics)
	})

	// Prometheus exposition for scrapers
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Root endpoint with a welcome message
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, err := w.Write([]byte(`{"message":"Welcome to the task agent API","app_name":"task-agent"}`))
		if err != nil {
			app.logger.Error("failed to write root response", "error", err)
		}
	})

	return r
}
