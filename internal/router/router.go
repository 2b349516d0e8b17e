package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/pkg/event"
)

// PublicHandler exposes routes that need no bearer token.
type PublicHandler interface {
	RegisterPublicRoutes(*gin.RouterGroup)
}

// SocketHandler exposes routes that authenticate on their own.
type SocketHandler interface {
	RegisterSocketRoutes(*gin.RouterGroup)
}

// MetricsHandler instruments requests and serves the scrape endpoint.
type MetricsHandler interface {
	Middleware() gin.HandlerFunc
	Handler() gin.HandlerFunc
}

type DoctorHandler interface {
	handler.RouteRegistrar
	PublicHandler
}

type RTCHandler interface {
	handler.RouteRegistrar
	SocketHandler
}

// Handlers groups every resource handler the API mounts.
type Handlers struct {
	Auth         handler.RouteRegistrar
	Health       handler.RouteRegistrar
	User         handler.RouteRegistrar
	Doctor       DoctorHandler
	Schedule     handler.RouteRegistrar
	Appointment  event.EventHandler
	EMR          event.EventHandler
	Payment      event.EventHandler
	Notification handler.RouteRegistrar
	RTC          RTCHandler
	Audit        handler.RouteRegistrar
	Metrics      MetricsHandler
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	audit        *middleware.AuditMiddleware
	limiter      *middleware.RateLimiter
	eventTracker *event.EventTracker
	h            Handlers
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	audit *middleware.AuditMiddleware,
	eventTracker *event.EventTracker,
	h Handlers,
	config RouterConfig,
	logger zerolog.Logger,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	engine := gin.New()

	r := &Router{
		engine:       engine,
		auth:         auth,
		audit:        audit,
		eventTracker: eventTracker,
		h:            h,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
	)
	if h.Metrics != nil {
		engine.Use(h.Metrics.Middleware())
	}
	if config.RateLimit > 0 {
		r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(r.limiter.RateLimit())
	}
	engine.Use(
		middleware.SizeLimit(middleware.SizeLimitConfig{
			MaxBodySize:   config.MaxBodyBytes,
			MaxHeaderSize: middleware.DefaultSizeLimitConfig().MaxHeaderSize,
		}),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	return r
}

func (r *Router) Setup() {
	if r.h.Metrics != nil {
		r.engine.GET("/metrics", r.h.Metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.setupPublicRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	if r.audit != nil {
		protected.Use(r.audit.AuditLog())
	}
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	r.h.Health.RegisterRoutes(rg)
	r.h.Auth.RegisterRoutes(rg)
	r.h.Doctor.RegisterPublicRoutes(rg)
	r.h.RTC.RegisterSocketRoutes(rg)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	r.h.User.RegisterRoutes(rg)
	r.h.Doctor.RegisterRoutes(rg)
	r.h.Schedule.RegisterRoutes(rg)
	r.h.Appointment.RegisterRoutesWithEvents(rg, r.eventTracker)
	r.h.EMR.RegisterRoutesWithEvents(rg, r.eventTracker)
	r.h.Payment.RegisterRoutesWithEvents(rg, r.eventTracker)
	r.h.Notification.RegisterRoutes(rg)
	r.h.RTC.RegisterRoutes(rg)

	admin := rg.Group("")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	r.h.Audit.RegisterRoutes(admin)
}

// Limiter is nil when rate limiting is disabled.
func (r *Router) Limiter() *middleware.RateLimiter {
	return r.limiter
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
