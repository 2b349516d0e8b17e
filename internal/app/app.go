// Package app builds the infrastructure shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/telehealth-api/internal/config"
	"github.com/jwalitptl/telehealth-api/internal/email"
	"github.com/jwalitptl/telehealth-api/internal/repository/postgres"
	auditsvc "github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/internal/service/notification"
	"github.com/jwalitptl/telehealth-api/internal/sms"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	"github.com/jwalitptl/telehealth-api/pkg/logger"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/messaging/memory"
	"github.com/jwalitptl/telehealth-api/pkg/messaging/redis"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

const metricsNamespace = "telehealth"

// App holds the long-lived dependencies of one process.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *sqlx.DB
	Repos   *postgres.Repositories
	Broker  messaging.Broker
	Metrics *metrics.Metrics
	Tokens  auth.JWTService
	Audit   *auditsvc.Service
	SMS     sms.Client
	Email   email.Service

	Notifications *notification.Service

	redis *redis.RedisBroker
}

// New loads configuration and connects to postgres and the broker. component names the
// process in every log line.
func New(configPath, component string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).With(component)
	lg.SetGlobal()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Logger:  lg,
		DB:      db,
		Repos:   postgres.NewRepositories(db),
		Metrics: metrics.NewMetrics(metricsNamespace, ""),
		Tokens:  auth.NewJWTService(cfg.AuthConfig()),
	}

	if cfg.Redis.URL != "" {
		rb, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &lg.ZL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rb
		a.Broker = rb
	} else {
		lg.Warn("redis.url not set, using the in-process broker; events do not reach other processes")
		a.Broker = memory.NewBroker()
	}

	trail, err := logger.NewAuditTrail(cfg.Audit.TrailOutput)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build audit trail: %w", err)
	}
	a.Audit = auditsvc.NewService(a.Repos.Audit, trail, lg.ZL)

	a.SMS = sms.NewTwilioClient(sms.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
		VerifySID:  cfg.Twilio.VerifySID,
	})
	a.Email = email.NewSMTPService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	a.Notifications = notification.NewService(
		a.Repos.Notifications,
		a.Repos.Users,
		a.Email,
		a.SMS,
		a.Broker,
		a.Audit,
		a.Metrics,
		lg.ZL,
	)
	return a, nil
}

// CheckDatabase and CheckBroker back the readiness probe.
func (a *App) CheckDatabase(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

func (a *App) CheckBroker(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Client().Ping(ctx).Err()
}

// Gatherer is the registry the metrics endpoint serves.
func (a *App) Gatherer() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}

func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Warn("failed to close broker", "error", err.Error())
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("failed to close database", "error", err.Error())
		}
	}
}
