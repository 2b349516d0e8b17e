package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository/mocks"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

type flakyBroker struct {
	failures int
	calls    int
	sent     []messaging.Message
}

func (b *flakyBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.calls++
	if b.calls <= b.failures {
		return errors.New("broker unavailable")
	}
	b.sent = append(b.sent, message.(messaging.Message))
	return nil
}

func (b *flakyBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *flakyBroker) Close() error { return nil }

var testConfig = OutboxProcessorConfig{
	BatchSize:     10,
	PollInterval:  time.Second,
	RetryAttempts: 3,
	RetryDelay:    time.Millisecond,
}

func newProcessor(t *testing.T, repo *mocks.OutboxRepository, broker messaging.Broker) (*OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewNoop()
	p, err := NewOutboxProcessor(repo, broker, testConfig, zerolog.Nop(), m)
	require.NoError(t, err)
	p.sleep = func(time.Duration) {}
	return p, m
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	_, err := NewOutboxProcessor(nil, nil, OutboxProcessorConfig{}, zerolog.Nop(), metrics.NewNoop())
	assert.Error(t, err)
}

func TestProcessBatchPublishesEvents(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	broker := &flakyBroker{}
	p, m := newProcessor(t, repo, broker)

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventAppointmentCreate,
		Payload:   json.RawMessage(`{"id":"a1"}`),
	}
	repo.On("ClaimPending", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	repo.On("UpdateStatus", mock.Anything, event.ID, model.OutboxStatusProcessed, (*string)(nil), 0).Return(nil)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, broker.sent, 1)
	assert.Equal(t, model.EventAppointmentCreate, broker.sent[0].Type)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsProcessed))
	repo.AssertExpectations(t)
}

func TestProcessBatchRetriesThenSucceeds(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	broker := &flakyBroker{failures: 2}
	p, m := newProcessor(t, repo, broker)

	event := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventPaymentComplete, Payload: json.RawMessage(`{}`)}
	repo.On("ClaimPending", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	repo.On("UpdateStatus", mock.Anything, event.ID, model.OutboxStatusProcessed, (*string)(nil), 2).Return(nil)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventPaymentComplete)))
	repo.AssertExpectations(t)
}

func TestProcessBatchMarksFailed(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	broker := &flakyBroker{failures: 10}
	p, m := newProcessor(t, repo, broker)

	event := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventAppointmentCancel, Payload: json.RawMessage(`{}`), RetryCount: 1}
	repo.On("ClaimPending", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	repo.On("UpdateStatus", mock.Anything, event.ID, model.OutboxStatusFailed,
		mock.MatchedBy(func(s *string) bool { return s != nil && *s == "broker unavailable" }), 3).Return(nil)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, broker.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsFailed))
	repo.AssertExpectations(t)
}

func TestProcessBatchClaimError(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	p, _ := newProcessor(t, repo, &flakyBroker{})
	repo.On("ClaimPending", mock.Anything, 10).Return(nil, errors.New("db down"))

	_, err := p.ProcessBatch(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestRunOnceLogsAndSwallowsErrors(t *testing.T) {
	calls := 0
	job := Job{Name: "test", Interval: time.Minute, Run: func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	}}
	RunOnce(context.Background(), zerolog.Nop(), job)
	assert.Equal(t, 1, calls)
}

func TestRunJobsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 1)
	job := Job{Name: "tick", Interval: time.Hour, Run: func(context.Context) (int, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 1, nil
	}}

	done := make(chan struct{})
	go func() {
		RunJobs(ctx, zerolog.Nop(), job, Job{Name: "disabled"})
		close(done)
	}()

	<-ran
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunJobs did not return after cancel")
	}
}
