package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/savegress/spendcast/internal/anomaly"
	"github.com/savegress/spendcast/internal/config"
	"github.com/savegress/spendcast/internal/forecast"
	"github.com/savegress/spendcast/internal/insights"
	"github.com/savegress/spendcast/internal/prediction"
	"github.com/savegress/spendcast/internal/trend"
)

// Server represents the API server
type Server struct {
	config   *config.Config
	router   chi.Router
	handlers *Handlers
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, p *prediction.Engine, a *anomaly.Detector, t *trend.Engine, f *forecast.Engine, ins *insights.Aggregator) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		handlers: NewHandlers(p, a, t, f, ins),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1/spendcast", func(r chi.Router) {
		// Predictions
		r.Route("/predictions", func(r chi.Router) {
			r.Post("/spending", s.handlers.PredictSpending)
		})

		// Anomaly detection
		r.Route("/anomalies", func(r chi.Router) {
			r.Post("/detect", s.handlers.DetectAnomalies)
		})

		// Trend analysis
		r.Route("/trends", func(r chi.Router) {
			r.Post("/analyze", s.handlers.AnalyzeTrends)
		})

		// Forecasting
		r.Route("/forecasts", func(r chi.Router) {
			r.Post("/financial", s.handlers.GenerateForecast)
			r.Post("/cashflow", s.handlers.PredictCashFlow)
		})

		// Aggregated insights
		r.Post("/insights", s.handlers.GetInsights)

		// Model registry
		r.Route("/models", func(r chi.Router) {
			r.Post("/train", s.handlers.TrainModel)
			r.Get("/{id}", s.handlers.GetModel)
		})
	})
}

// Router returns the chi router
func (s *Server) Router() http.Handler {
	return s.router
}
