package httpapi

import (
	"context"
	"net/http"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Engine is the slice of *goBankAuth.Engine the handlers call.
type Engine interface {
	Admit(ctx context.Context, key string, class goBankAuth.RateClass) error
	Register(ctx context.Context, req goBankAuth.RegisterRequest) (*goBankAuth.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*goBankAuth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*goBankAuth.Session, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	ValidateAccess(token string) (*goBankAuth.Principal, error)
	SendVerification(ctx context.Context, req goBankAuth.SendVerificationRequest) error
	VerifyCode(ctx context.Context, userID string, t goBankAuth.VerificationType, code string) (goBankAuth.VerifyResult, error)
	VerificationStatus(ctx context.Context, caller goBankAuth.Principal, userID string) (*goBankAuth.VerificationStatus, error)
	ClearPendingVerifications(ctx context.Context, caller goBankAuth.Principal, userID string) (int, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, userID, current, next string) error
	DeleteAccount(ctx context.Context, userID, password, confirmation string) error
}

var _ Engine = (*goBankAuth.Engine)(nil)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures a Server. Zero values are usable.
type Options struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	// Checks run on GET /api/health, keyed by dependency name.
	Checks map[string]HealthCheck
	// Registerer receives the HTTP metrics; Gatherer backs /metrics.
	// Both default to the prometheus default registry.
	Registerer     prometheus.Registerer
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

// Server serves the auth API.
type Server struct {
	engine    Engine
	logger    *zap.Logger
	validator *requestValidator
	metrics   *httpMetrics
	checks    map[string]HealthCheck
	gatherer  prometheus.Gatherer
	origins   []string
	timeout   time.Duration
	now       func() time.Time
}

func NewServer(engine Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Server{
		engine:    engine,
		logger:    logger,
		validator: newRequestValidator(),
		metrics:   newHTTPMetrics(reg),
		checks:    opts.Checks,
		gatherer:  gatherer,
		origins:   opts.AllowedOrigins,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(middleware.Timeout(s.timeout))

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:8081"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(clientContext)
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			r.Use(s.apiLimit)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", s.register)
				r.Post("/login", s.login)
				r.Post("/refresh", s.refresh)
				r.Post("/forgot-password", s.forgotPassword)
				r.Post("/reset-password", s.resetPassword)

				r.With(RequireBearer(s.engine)).Post("/logout", s.logout)
			})

			r.Route("/verification", func(r chi.Router) {
				r.Post("/send-verification", s.sendVerification)
				r.Post("/verify-code", s.verifyCode)

				r.Group(func(r chi.Router) {
					r.Use(RequireBearer(s.engine))
					r.Get("/status/{userId}", s.verificationStatus)
					r.Delete("/clear/{userId}", s.clearPending)
				})
			})

			r.Route("/user", func(r chi.Router) {
				r.Use(RequireBearer(s.engine))
				r.Put("/change-password", s.changePassword)
				r.Delete("/account", s.deleteAccount)
			})
		})
	})

	return r
}
