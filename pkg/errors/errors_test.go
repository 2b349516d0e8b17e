package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFound("appointment", nil), http.StatusNotFound},
		{"bad request", NewBadRequest("invalid", nil), http.StatusBadRequest},
		{"forbidden", NewForbidden("no"), http.StatusForbidden},
		{"conflict", NewConflict("taken"), http.StatusConflict},
		{"unauthorized", Unauthorized(nil), http.StatusUnauthorized},
		{"wrapped", fmt.Errorf("failed to book: %w", NewConflict("taken")), http.StatusConflict},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	sentinel := NewConflict("slot already booked")
	wrapped := fmt.Errorf("failed to create appointment: %w", NewConflict("slot already booked"))

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.False(t, errors.Is(wrapped, NewConflict("other")))
}

func TestMessageOfHidesInternalDetail(t *testing.T) {
	err := NewInternal(errors.New("pq: connection refused"))
	assert.Equal(t, "internal server error", MessageOf(err))
	assert.Equal(t, "internal server error", MessageOf(errors.New("raw")))
	assert.Equal(t, "room not found", MessageOf(NewNotFound("room", nil)))
}
