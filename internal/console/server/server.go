package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/compliance-audit-engine/internal/console/handler"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"github.com/xela07ax/compliance-audit-engine/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов IdP (RS256). nil — аутентификация выключена (dev).
	authValidator auth.TokenValidator
	gatherer      prometheus.Gatherer

	// Обработчики бизнес-доменов
	templateHandler *handler.TemplateHandler // /v1/templates
	auditHandler    *handler.AuditHandler    // /v1/audits
}

// NewConsoleServer инициализирует API аудитов со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	gatherer prometheus.Gatherer,
	templateH *handler.TemplateHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		gatherer:        gatherer,
		templateHandler: templateH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен, если включено) ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		} else {
			s.logger.Warn("authentication disabled: audit API is open")
		}

		// Каталог шаблонов
		r.Route("/v1/templates", func(r chi.Router) {
			r.Get("/", s.templateHandler.List)
			r.With(s.scope(domain.ScopeTemplatesWrite)).Post("/", s.templateHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.templateHandler.Get)
				r.With(s.scope(domain.ScopeTemplatesWrite)).Post("/revisions", s.templateHandler.Revise)
			})
		})

		// Аудиты: черновик, ответы, подпись
		r.Route("/v1/audits", func(r chi.Router) {
			r.Get("/", s.auditHandler.List)
			r.With(s.scope(domain.ScopeAuditsWrite)).Post("/", s.auditHandler.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.auditHandler.Get)

				r.Group(func(r chi.Router) {
					r.Use(s.scope(domain.ScopeAuditsWrite))
					r.Delete("/", s.auditHandler.Discard)
					r.Patch("/questions/{qid}", s.auditHandler.Answer)
					r.Post("/finalize", s.auditHandler.Finalize)
				})
			})
		})
	})
}

// scope — проверка скоупа имеет смысл только при включённой аутентификации.
func (s *ConsoleServer) scope(name string) func(http.Handler) http.Handler {
	if s.authValidator == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return auth.RequireScope(name)
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
