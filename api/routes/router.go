package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adyeetya/blogs-backend/api/controllers"
	"github.com/adyeetya/blogs-backend/api/middleware"
	"github.com/adyeetya/blogs-backend/internal/magazines"
	"github.com/adyeetya/blogs-backend/pkg/config"
	"github.com/adyeetya/blogs-backend/pkg/logger"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Magazines magazines.Service
	// Readiness maps dependency names to health checks for /health/ready.
	Readiness map[string]controllers.Pinger
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	upload := controllers.UploadOptions{
		ScratchDir: cfg.Pipeline.ScratchDir,
		MaxBytes:   cfg.Pipeline.MaxUploadBytes(),
	}

	r.Route("/api/v1/magazines", func(r chi.Router) {
		r.Post("/", controllers.MagazineCreate(deps.Magazines, logg))
		r.Get("/", controllers.MagazineList(deps.Magazines, logg))
		r.Get("/latest", controllers.MagazineLatest(deps.Magazines, logg))
		r.Get("/{slug}", controllers.MagazineGet(deps.Magazines, logg))
		r.Post("/{slug}/pdf", controllers.MagazineUploadPDF(deps.Magazines, upload, logg))
	})

	return r
}
