package notification

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
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/repository/mocks"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/messaging/memory"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

var fixedNow = time.Date(2030, 2, 1, 9, 0, 0, 0, time.UTC)

type stubEmail struct {
	err  error
	sent []string
}

func (e *stubEmail) Send(_ context.Context, to, subject, _ string) error {
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, to+"|"+subject)
	return nil
}

type stubSMS struct{ to string }

func (s *stubSMS) Send(_ context.Context, to, _ string) (string, error) {
	s.to = to
	return "SM123", nil
}

type fixture struct {
	svc     *Service
	repo    *mocks.NotificationRepository
	users   *mocks.UserRepository
	email   *stubEmail
	sms     *stubSMS
	broker  *memory.Broker
	metrics *metrics.Metrics
	user    *model.User
}

func newFixture() *fixture {
	phone := "+15550001111"
	f := &fixture{
		repo:    new(mocks.NotificationRepository),
		users:   new(mocks.UserRepository),
		email:   &stubEmail{},
		sms:     &stubSMS{},
		broker:  memory.NewBroker(),
		metrics: metrics.NewNoop(),
		user:    &model.User{Base: model.NewBase(), Email: "pat@example.com", Phone: &phone, Role: model.RolePatient},
	}
	f.svc = NewService(f.repo, f.users, f.email, f.sms, f.broker, audit.Nop{}, f.metrics, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	f.users.On("Get", mock.Anything, f.user.ID).Return(f.user, nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.repo.On("UpdateDelivery", mock.Anything, mock.Anything).Return(nil)
	return f
}

func (f *fixture) request(channel string) *model.SendNotificationRequest {
	return &model.SendNotificationRequest{
		UserID:  f.user.ID,
		Type:    model.NotifSystemUpdate,
		Channel: channel,
		Title:   "Maintenance",
		Message: "Back at noon",
	}
}

func TestNotifyEmail(t *testing.T) {
	f := newFixture()

	n, err := f.svc.Notify(context.Background(), f.request(model.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusSent, n.Status)
	assert.Equal(t, []string{"pat@example.com|Maintenance"}, f.email.sent)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NotificationsSent.WithLabelValues(model.ChannelEmail, "sent")))
}

func TestNotifySMSStoresProviderID(t *testing.T) {
	f := newFixture()

	n, err := f.svc.Notify(context.Background(), f.request(model.ChannelSMS))
	require.NoError(t, err)
	assert.Equal(t, "SM123", n.ExternalID)
	assert.Equal(t, "+15550001111", f.sms.to)
}

func TestNotifyInAppPublishes(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := f.broker.Subscribe(ctx, messaging.ChannelNotifications)
	require.NoError(t, err)

	n, err := f.svc.Notify(context.Background(), f.request(model.ChannelInApp))
	require.NoError(t, err)

	select {
	case raw := <-ch:
		var msg struct {
			Type    string             `json:"type"`
			Payload model.Notification `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, MessageType, msg.Type)
		assert.Equal(t, n.ID, msg.Payload.ID)
	case <-time.After(time.Second):
		t.Fatal("notification was not published")
	}
}

func TestFailedDeliveryBacksOff(t *testing.T) {
	f := newFixture()
	f.email.err = errors.New("smtp down")

	n, err := f.svc.Notify(context.Background(), f.request(model.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusRetrying, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	require.NotNil(t, n.NextRetryAt)
	assert.Equal(t, fixedNow.Add(5*time.Second), *n.NextRetryAt)

	// second failure doubles the wait, the third gives up
	f.repo.On("DueRetries", mock.Anything, fixedNow, 10).Return([]*model.Notification{n}, nil)
	sent, err := f.svc.RetryDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, fixedNow.Add(10*time.Second), *n.NextRetryAt)

	_, err = f.svc.RetryDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusFailed, n.Status)
	assert.Nil(t, n.NextRetryAt)
	assert.Equal(t, "smtp down", n.LastError)
}

func TestRetryDueRecovers(t *testing.T) {
	f := newFixture()
	next := fixedNow.Add(-time.Second)
	n := &model.Notification{
		Base: model.NewBase(), UserID: f.user.ID, Channel: model.ChannelEmail, Recipient: "pat@example.com",
		Status: model.NotificationStatusRetrying, RetryCount: 1, NextRetryAt: &next,
	}
	f.repo.On("DueRetries", mock.Anything, fixedNow, 50).Return([]*model.Notification{n}, nil)

	sent, err := f.svc.RetryDue(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, model.NotificationStatusSent, n.Status)
	assert.Nil(t, n.NextRetryAt)
}

func TestMissingPhoneFailsImmediately(t *testing.T) {
	f := newFixture()
	f.user.Phone = nil

	n, err := f.svc.Notify(context.Background(), f.request(model.ChannelSMS))
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStatusFailed, n.Status)
}

func TestSendPermissions(t *testing.T) {
	f := newFixture()
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}
	_, err := f.svc.Send(context.Background(), patient, f.request(model.ChannelEmail))
	assert.ErrorIs(t, err, service.ErrPermission)

	doctor := model.Actor{UserID: uuid.New(), Role: model.RoleDoctor}
	n, err := f.svc.Send(context.Background(), doctor, f.request(model.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, doctor.UserID.String(), n.Metadata["sent_by"])

	_, err = f.svc.SendBulk(context.Background(), doctor, &model.BulkNotificationRequest{})
	assert.ErrorIs(t, err, service.ErrNotAdmin)
}

func TestSendBulkSkipsUnknownUsers(t *testing.T) {
	f := newFixture()
	missing := uuid.New()
	f.users.On("Get", mock.Anything, missing).Return(nil, repository.ErrNotFound)
	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}

	created, err := f.svc.SendBulk(context.Background(), admin, &model.BulkNotificationRequest{
		UserIDs: []uuid.UUID{f.user.ID, missing},
		Type:    model.NotifSystemUpdate, Channel: model.ChannelEmail, Title: "Hi", Message: "There",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestStatsScope(t *testing.T) {
	f := newFixture()
	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	patient := model.Actor{UserID: uuid.New(), Role: model.RolePatient}

	f.repo.On("Stats", mock.Anything, (*uuid.UUID)(nil)).Return(&model.NotificationStats{Total: 100}, nil)
	f.repo.On("Stats", mock.Anything, &patient.UserID).Return(&model.NotificationStats{Total: 2}, nil)

	all, err := f.svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 100, all.Total)

	own, err := f.svc.Stats(context.Background(), patient)
	require.NoError(t, err)
	assert.Equal(t, 2, own.Total)
}
