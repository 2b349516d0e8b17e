package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(Settings{
		Name:        "test",
		MaxFailures: 2,
		MaxRequests: 1,
		Timeout:     time.Minute,
	})
	boom := errors.New("boom")

	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, "open", cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(Settings{Name: "ok"})
	for i := 0; i < 10; i++ {
		assert.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, "closed", cb.State())
}
