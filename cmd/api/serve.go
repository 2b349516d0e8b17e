package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telehealth-api/internal/app"
	appointmentHandler "github.com/jwalitptl/telehealth-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/telehealth-api/internal/handler/audit"
	authHandler "github.com/jwalitptl/telehealth-api/internal/handler/auth"
	doctorHandler "github.com/jwalitptl/telehealth-api/internal/handler/doctor"
	emrHandler "github.com/jwalitptl/telehealth-api/internal/handler/emr"
	"github.com/jwalitptl/telehealth-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/telehealth-api/internal/handler/notification"
	paymentHandler "github.com/jwalitptl/telehealth-api/internal/handler/payment"
	promHandler "github.com/jwalitptl/telehealth-api/internal/handler/prometheus"
	rtcHandler "github.com/jwalitptl/telehealth-api/internal/handler/rtc"
	scheduleHandler "github.com/jwalitptl/telehealth-api/internal/handler/schedule"
	userHandler "github.com/jwalitptl/telehealth-api/internal/handler/user"
	"github.com/jwalitptl/telehealth-api/internal/middleware"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/payment"
	"github.com/jwalitptl/telehealth-api/internal/router"
	appointmentService "github.com/jwalitptl/telehealth-api/internal/service/appointment"
	authService "github.com/jwalitptl/telehealth-api/internal/service/auth"
	doctorService "github.com/jwalitptl/telehealth-api/internal/service/doctor"
	emrService "github.com/jwalitptl/telehealth-api/internal/service/emr"
	eventService "github.com/jwalitptl/telehealth-api/internal/service/event"
	paymentService "github.com/jwalitptl/telehealth-api/internal/service/payment"
	rtcService "github.com/jwalitptl/telehealth-api/internal/service/rtc"
	scheduleService "github.com/jwalitptl/telehealth-api/internal/service/schedule"
	userService "github.com/jwalitptl/telehealth-api/internal/service/user"
	"github.com/jwalitptl/telehealth-api/pkg/event"
	"github.com/jwalitptl/telehealth-api/pkg/rtc"
	"github.com/jwalitptl/telehealth-api/pkg/security"
	"github.com/jwalitptl/telehealth-api/pkg/validator"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(*configPath)
		},
	}
}

func runServer(configPath string) error {
	a, err := app.New(configPath, "api")
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	log := a.Logger.ZL
	repos := a.Repos

	validator.Register()

	hub := rtc.NewHub(a.Broker, log, a.Metrics.RTCConnections)
	defer hub.Close()

	// Services
	authSvc := authService.NewService(repos.Users, a.Tokens, security.NewBcryptHasher(0), a.Audit)
	userSvc := userService.NewService(repos.Users, a.SMS, a.Audit)
	doctorSvc := doctorService.NewService(repos.Doctors, repos.Slots, repos.Appointments, a.Audit)
	scheduleSvc := scheduleService.NewService(repos.Slots, repos.Doctors, a.Audit)
	appointmentSvc := appointmentService.NewService(repos.Appointments, repos.Slots, repos.Doctors, a.Audit, a.Metrics)
	emrSvc := emrService.NewService(repos.EMR, repos.Users, a.Audit)
	paymentSvc := paymentService.NewService(repos.Payments, repos.Appointments, paymentProviders(a), cfg.Payments.Currency, a.Audit)
	rtcSvc := rtcService.NewService(repos.RTC, repos.Appointments, a.Tokens, hub, a.Audit, a.Metrics, log)
	eventSvc := eventService.NewService(repos.Outbox, log)

	eventTracker := event.NewEventTracker(eventSvc, cfg.EventTracking.Enabled)

	handlers := router.Handlers{
		Auth: authHandler.NewHandler(authSvc),
		Health: health.NewHandler(map[string]health.Check{
			"database": a.CheckDatabase,
			"broker":   a.CheckBroker,
		}),
		User:         userHandler.NewHandler(userSvc),
		Doctor:       doctorHandler.NewHandler(doctorSvc),
		Schedule:     scheduleHandler.NewHandler(scheduleSvc),
		Appointment:  appointmentHandler.NewHandler(appointmentSvc),
		EMR:          emrHandler.NewHandler(emrSvc),
		Payment:      paymentHandler.NewHandler(paymentSvc),
		Notification: notificationHandler.NewHandler(a.Notifications),
		RTC:          rtcHandler.NewHandler(rtcSvc, hub, cfg.RTC.AllowedOrigins),
		Audit:        auditHandler.NewHandler(a.Audit),
		Metrics:      promHandler.New(prometheus.DefaultRegisterer, a.Gatherer()),
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	if len(cfg.CORS.AllowedMethods) > 0 {
		cors.AllowMethods = cfg.CORS.AllowedMethods
	}
	if len(cfg.CORS.AllowedHeaders) > 0 {
		cors.AllowHeaders = cfg.CORS.AllowedHeaders
	}

	routerConfig := router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORSConfig:     cors,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(a.Tokens),
		middleware.NewAuditMiddleware(a.Audit, cfg.Audit.SkipPaths),
		eventTracker,
		handlers,
		routerConfig,
		log,
	)
	r.Setup()

	stop := make(chan struct{})
	defer close(stop)
	if limiter := r.Limiter(); limiter != nil {
		go limiter.Run(time.Minute, stop)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

// paymentProviders registers every gateway. Razorpay is only wired when credentials are set.
func paymentProviders(a *app.App) *payment.Registry {
	cfg := a.Config.Payments
	providers := []payment.Provider{payment.Manual{}, payment.Stripe{}}
	if cfg.RazorpayKey != "" && cfg.RazorpaySecret != "" {
		providers = append(providers, payment.NewGuarded(payment.NewRazorpay(cfg.RazorpayKey, cfg.RazorpaySecret)))
	} else {
		a.Logger.Warn("razorpay credentials not set, razorpay payments are disabled")
	}
	return payment.NewRegistry(model.PaymentProvider(cfg.DefaultProvider), providers...)
}
