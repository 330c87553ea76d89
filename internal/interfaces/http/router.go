package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/config"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/middleware"
	"forgetful-backend/internal/service/backup"
	entitysvc "forgetful-backend/internal/service/entity"
	graphsvc "forgetful-backend/internal/service/graph"
	memorysvc "forgetful-backend/internal/service/memory"
	reembedsvc "forgetful-backend/internal/service/reembed"
	"forgetful-backend/internal/tools"
	"forgetful-backend/pkg/observability"
)

// Deps is everything the router needs.
type Deps struct {
	Config     *config.Config
	Logger     *zap.Logger
	Resolver   auth.UserResolver
	Store      Pinger
	Memories   *memorysvc.Service
	Graph      *graphsvc.Service
	Entities   *entitysvc.Service
	Dispatcher *tools.Dispatcher
	Reembed    *reembedsvc.Service
	Backup     backup.Service
	Bus        *events.Bus
	Metrics    *observability.Metrics
}

// NewRouter assembles the chi router with the full middleware chain and every
// API route.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	memories := NewMemoryHandler(d.Memories, logger)
	graph := NewGraphHandler(d.Graph, logger)
	entities := NewEntityHandler(d.Entities, logger)
	toolsH := NewToolsHandler(d.Dispatcher, d.Metrics, logger)
	admin := NewAdminHandler(d.Reembed, d.Backup, d.Bus, d.Config.Backup.Dir, logger)
	health := NewHealthHandler(d.Store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Config.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Session-Scope"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(d.Config.HTTP.WriteTimeout))
	r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("api"), logger))

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Resolver, logger))

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", memories.List)
			r.Post("/", memories.Create)
			r.Post("/search", memories.Search)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memories.Get)
				r.Put("/", memories.Update)
				r.Delete("/", memories.Delete)
				r.Post("/links", memories.CreateLinks)
				r.Get("/links", memories.GetLinks)
				r.Delete("/links/{targetId}", memories.DeleteLink)
			})
		})

		r.Route("/graph", func(r chi.Router) {
			r.Get("/", graph.Overview)
			r.Get("/subgraph", graph.Subgraph)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", entities.ListProjects)
			r.Post("/", entities.CreateProject)
			r.Get("/{id}", entities.GetProject)
			r.Put("/{id}", entities.UpdateProject)
			r.Delete("/{id}", entities.DeleteProject)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", entities.ListDocuments)
			r.Post("/", entities.CreateDocument)
			r.Delete("/{id}", entities.DeleteDocument)
		})

		r.Route("/code-artifacts", func(r chi.Router) {
			r.Get("/", entities.ListCodeArtifacts)
			r.Post("/", entities.CreateCodeArtifact)
			r.Delete("/{id}", entities.DeleteCodeArtifact)
		})

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", entities.ListEntities)
			r.Post("/", entities.CreateEntity)
			r.Delete("/{id}", entities.DeleteEntity)
			r.Post("/{id}/relationships", entities.CreateRelationship)
			r.Get("/{id}/relationships", entities.ListRelationships)
		})

		r.Route("/tools", func(r chi.Router) {
			r.Post("/discover", toolsH.Discover)
			r.Post("/how_to_use", toolsH.HowToUse)
			r.Post("/execute", toolsH.Execute)
		})

		r.Get("/activity", admin.Activity)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reembed", admin.Reembed)
			r.Post("/backup", admin.Backup)
		})
	})

	if d.Metrics != nil {
		return d.Metrics.Instrument("api", r)
	}
	return r
}
