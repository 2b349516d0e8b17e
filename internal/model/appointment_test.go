package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []AppointmentStatus{
		AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow,
		AppointmentStatusRefunded,
	}
	allowed := map[AppointmentStatus][]AppointmentStatus{
		AppointmentStatusPending:    {AppointmentStatusConfirmed, AppointmentStatusCancelled},
		AppointmentStatusConfirmed:  {AppointmentStatusInProgress, AppointmentStatusCancelled, AppointmentStatusNoShow},
		AppointmentStatusInProgress: {AppointmentStatusCompleted, AppointmentStatusCancelled},
		AppointmentStatusCompleted:  {AppointmentStatusRefunded},
		AppointmentStatusCancelled:  {AppointmentStatusRefunded},
		AppointmentStatusNoShow:     {AppointmentStatusRefunded},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCancelWindowIsStrict(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status AppointmentStatus
		in     time.Duration
		want   bool
	}{
		{"confirmed one hour out", AppointmentStatusConfirmed, time.Hour, false},
		{"exactly two hours", AppointmentStatusConfirmed, 2 * time.Hour, false},
		{"just over two hours", AppointmentStatusPending, 2*time.Hour + time.Second, true},
		{"in progress", AppointmentStatusInProgress, 48 * time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Appointment{Status: tt.status, ScheduledAt: now.Add(tt.in)}
			assert.Equal(t, tt.want, a.Cancellable(now))
		})
	}
}

func TestRescheduleWindowIsStrict(t *testing.T) {
	now := time.Now()
	a := &Appointment{Status: AppointmentStatusConfirmed, ScheduledAt: now.Add(24 * time.Hour)}
	assert.False(t, a.Reschedulable(now))

	a.ScheduledAt = now.Add(24*time.Hour + time.Minute)
	assert.True(t, a.Reschedulable(now))

	a.Status = AppointmentStatusCompleted
	assert.False(t, a.Reschedulable(now))
}

func TestDecorate(t *testing.T) {
	now := time.Now()
	a := (&Appointment{Status: AppointmentStatusPending, ScheduledAt: now.Add(3 * time.Hour)}).Decorate(now)

	assert.True(t, a.IsUpcoming)
	assert.True(t, a.CanBeCancelled)
	assert.False(t, a.CanBeRescheduled)
}

func TestJSONMapScan(t *testing.T) {
	var m JSONMap
	assert.NoError(t, m.Scan([]byte(`{"sdp":"v=0"}`)))
	assert.Equal(t, "v=0", m["sdp"])

	v, err := m.Value()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"sdp":"v=0"}`, v.(string))

	assert.NoError(t, m.Scan(nil))
	assert.Empty(t, m)
}
