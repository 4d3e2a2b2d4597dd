// Package api exposes binder tests, extraction, review and compliance over
// HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ecotek/binderlab/internal/compliance"
	"github.com/ecotek/binderlab/internal/model"
	"github.com/ecotek/binderlab/internal/pipeline"
	"github.com/ecotek/binderlab/internal/store"
)

// Tests is the pipeline surface the handlers use. *pipeline.Service
// implements it.
type Tests interface {
	CreateTest(ctx context.Context, t *model.BinderTest) error
	GetTest(ctx context.Context, id string) (*model.BinderTest, error)
	Extract(ctx context.Context, id string) (*pipeline.ExtractResult, error)
	Review(ctx context.Context, id string, submitted map[string]any) (*pipeline.ReviewOutcome, error)
}

// Catalog lists tests and their history.
type Catalog interface {
	ListTests(ctx context.Context, filter store.TestFilter) ([]model.BinderTest, error)
	ListEdits(ctx context.Context, testID string) ([]model.ManualEdit, error)
	ListDocuments(ctx context.Context, testID string) ([]model.SourceDocument, error)
	Ping(ctx context.Context) error
}

// Standards resolves compliance standards.
type Standards interface {
	Standard(code string) (compliance.Standard, error)
	Reload() error
	Codes() []string
}

// Server holds the handler dependencies.
type Server struct {
	tests     Tests
	catalog   Catalog
	standards Standards
}

func NewServer(tests Tests, catalog Catalog, standards Standards) *Server {
	return &Server{tests: tests, catalog: catalog, standards: standards}
}

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Router builds the HTTP handler. Extraction can wait on the AI fallback,
// so the request timeout is generous.
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/tests", func(r chi.Router) {
		r.Get("/", s.listTests)
		r.Post("/", s.createTest)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTest)
			r.Get("/documents", s.listDocuments)
			r.Post("/extract", s.extract)
			r.Post("/review", s.review)
			r.Get("/audit", s.audit)
			r.Get("/compliance", s.compliance)
		})
	})

	r.Get("/standards", s.listStandards)
	r.Post("/standards/reload", s.reloadStandards)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
