package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/telehealth-api/internal/app"
	eventService "github.com/jwalitptl/telehealth-api/internal/service/event"
	rtcService "github.com/jwalitptl/telehealth-api/internal/service/rtc"
	internalworker "github.com/jwalitptl/telehealth-api/internal/worker"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/rtc"
	"github.com/jwalitptl/telehealth-api/pkg/worker"
)

func main() {
	var (
		configPath string
		probeAddr  string
	)

	rootCmd := &cobra.Command{
		Use:          "telehealth-worker",
		Short:        "Background jobs: outbox relay, notifications, reminders and sweeps",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, probeAddr)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file")
	rootCmd.Flags().StringVar(&probeAddr, "probe-addr", ":8081", "address for health and metrics endpoints")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, probeAddr string) error {
	a, err := app.New(configPath, "worker")
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config
	log := a.Logger.ZL
	repos := a.Repos

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor, err := worker.NewOutboxProcessor(repos.Outbox, a.Broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
	}, log, a.Metrics)
	if err != nil {
		return err
	}

	hub := rtc.NewHub(a.Broker, log, a.Metrics.RTCConnections)
	defer hub.Close()
	rtcSvc := rtcService.NewService(repos.RTC, repos.Appointments, a.Tokens, hub, a.Audit, a.Metrics, log)
	eventSvc := eventService.NewService(repos.Outbox, log)

	consumer := internalworker.NewEventConsumer(messaging.NewBrokerAdapter(a.Broker), a.Notifications, log)
	reminders := internalworker.NewReminderDispatcher(repos.Appointments, a.Notifications, a.Metrics, log, cfg.Workers.BatchSize)
	auditCleanup := internalworker.NewAuditCleanup(a.Audit, cfg.Audit.RetentionDays, log)

	probe := probeServer(probeAddr, a)
	go func() {
		log.Info().Str("addr", probeAddr).Msg("starting probe server")
		if err := probe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("probe server failed")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event consumer stopped")
		}
	}()
	go func() {
		defer wg.Done()
		worker.RunJobs(ctx, log,
			worker.Job{Name: "appointment_reminders", Interval: cfg.Workers.ReminderInterval, Run: reminders.Run},
			worker.Job{
				Name:     "notification_retry",
				Interval: cfg.Workers.NotificationInterval,
				Run: func(ctx context.Context) (int, error) {
					return a.Notifications.RetryDue(ctx, cfg.Workers.BatchSize)
				},
			},
			worker.Job{
				Name:     "room_sweep",
				Interval: cfg.Workers.RoomSweepInterval,
				Run: func(ctx context.Context) (int, error) {
					n, err := rtcSvc.ExpireRooms(ctx)
					return int(n), err
				},
			},
			worker.Job{Name: "audit_cleanup", Interval: cfg.Audit.CleanupInterval, Run: auditCleanup.Run},
			worker.Job{
				Name:     "outbox_cleanup",
				Interval: cfg.Audit.CleanupInterval,
				Run: func(ctx context.Context) (int, error) {
					n, err := eventSvc.CleanupProcessedEvents(ctx, cfg.Outbox.Retention)
					return int(n), err
				},
			},
		)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutting down worker...")

	cancel()
	wg.Wait()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return probe.Shutdown(shutdownCtx)
}

func probeServer(addr string, a *app.App) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.CheckDatabase(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := a.CheckBroker(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.Gatherer(), promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
