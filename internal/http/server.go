package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	applog "financas/internal/log"
	"financas/internal/middleware/ratelimit"
	"financas/internal/middleware/security"
	"financas/internal/middleware/trace"
	"financas/internal/services"
	"financas/internal/sheets"
	appweb "financas/web"
)

const (
	backendTimeout = 7 * time.Second
	maxBodyBytes   = 1 << 20
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the handlers call.
type Services struct {
	Series       *services.SeriesService
	Transactions *services.TransactionService
	Analytics    *services.AnalyticsService
	// Taxonomy is optional; without it the category fields are free text.
	Taxonomy sheets.TaxonomyReader
}

// Options tune the HTTP surface.
type Options struct {
	Logger             *applog.Logger
	AllowedOrigins     []string
	RateLimitPerMinute int
	// Checks are pinged by /readyz, keyed by name.
	Checks map[string]Pinger
}

type Server struct {
	http.Server
	templates *template.Template
	logger    *applog.Logger
	started   time.Time

	series       *services.SeriesService
	transactions *services.TransactionService
	analytics    *services.AnalyticsService
	taxonomy     sheets.TaxonomyReader
	checks       map[string]Pinger

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger:       logger,
		started:      time.Now(),
		series:       svc.Series,
		transactions: svc.Transactions,
		analytics:    svc.Analytics,
		taxonomy:     svc.Taxonomy,
		checks:       opts.Checks,
		detector:     security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	limit := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limit.RequestsPerMinute = opts.RateLimitPerMinute
	}
	s.rateLimiter = ratelimit.NewLimiter(limit)

	t, err := parseTemplates()
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	s.Handler = s.routes(opts.AllowedOrigins)
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Handler)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited))
	r.Use(limitBody)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/installments", func(r chi.Router) {
		r.Post("/preview", s.handleInstallmentsPreview)
		r.Post("/confirm", s.handleInstallmentsConfirm)
		r.Post("/export", s.handleInstallmentsExport)
	})

	r.Get("/series", s.handleSeriesList)
	r.Post("/series/{groupID}/retry", s.handleSeriesRetry)
	r.Delete("/series/{groupID}", s.handleSeriesDiscard)

	r.Post("/transactions", s.handleCreateTransaction)
	r.Post("/transactions/mark-paid", s.handleMarkPaid)
	r.Delete("/groups/{groupID}", s.handleDeleteGroup)

	r.Post("/recurring", s.handleCreateRecurring)
	r.Post("/recurring/preview", s.handleRecurringPreview)
	r.Delete("/recurring/{id}", s.handleDeleteRecurring)

	r.Route("/ui", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/month-overview", s.handleMonthOverview)
		r.Get("/categories", s.handleCategories)
		r.Get("/recurrences", s.handleRecurrences)
		r.Get("/transactions", s.handleTransactionsPartial)
	})

	// JSON API for other front ends.
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", trace.HeaderRequestID},
			ExposedHeaders:   []string{trace.HeaderRequestID},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Post("/installments/preview", s.handleAPIInstallmentsPreview)
	})

	return r
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.").
		TriggerErrorNotification("Muitas requisições. Tente novamente em instantes.").
		Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template into the response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			"template", name,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		http.Error(w, "render error", http.StatusInternalServerError)
	}
}

// renderWith executes a template into b's body so its triggers and status
// travel with the fragment.
func (s *Server) renderWith(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	if s.templates == nil {
		s.render(w, r, name, data)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	b.Header("Content-Type", "text/html; charset=utf-8").Body(buf.Bytes()).Write(w)
}

// backendContext bounds calls made on behalf of a partial.
func backendContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), backendTimeout)
}
