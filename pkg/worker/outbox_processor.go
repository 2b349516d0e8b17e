package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return errors.New("outbox batch size must be greater than 0")
	case c.PollInterval <= 0:
		return errors.New("outbox poll interval must be greater than 0")
	case c.RetryAttempts <= 0:
		return errors.New("outbox retry attempts must be greater than 0")
	case c.RetryDelay < 0:
		return errors.New("outbox retry delay must not be negative")
	}
	return nil
}

// OutboxProcessor publishes claimed outbox events on the events channel.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	sleep   func(time.Duration)
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger.With().Str("component", "outbox").Logger(),
		metrics: m,
		sleep:   time.Sleep,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info().Msg("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch and returns how many events went out.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_pending_events", "success").Inc()

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Msg("failed to process event")
			continue
		}
		published++
	}
	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		Type:    event.EventType,
		Payload: json.RawMessage(event.Payload),
	}
	attempts, err := p.retry(func() error {
		return p.broker.Publish(ctx, messaging.ChannelEvents, msg)
	})
	if attempts > 1 {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Add(float64(attempts - 1))
	}
	retries := event.RetryCount + attempts - 1

	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		errStr := err.Error()
		if updateErr := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusFailed, &errStr, retries); updateErr != nil {
			p.logger.Error().Err(updateErr).Str("event_id", event.ID.String()).Msg("failed to update event status")
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, retries); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (p *OutboxProcessor) retry(fn func() error) (int, error) {
	var err error
	for i := 1; i <= p.config.RetryAttempts; i++ {
		if err = fn(); err == nil {
			return i, nil
		}
		if i < p.config.RetryAttempts {
			p.sleep(p.config.RetryDelay)
		}
	}
	return p.config.RetryAttempts, err
}
