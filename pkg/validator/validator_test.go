package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Phone string `json:"phone" binding:"required,phone"`
	Start string `json:"start_time" binding:"required,hhmm"`
	Email string `json:"email" binding:"required,email"`
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("+14155552671"))
	assert.True(t, ValidPhone("919876543210"))
	assert.False(t, ValidPhone("12345"))
	assert.False(t, ValidPhone("+1-415-555"))
}

func TestValidClock(t *testing.T) {
	assert.True(t, ValidClock("09:30"))
	assert.False(t, ValidClock("9:30"))
	assert.False(t, ValidClock("25:00"))
}

func TestRegisterAndMessage(t *testing.T) {
	Register()

	err := binding.Validator.ValidateStruct(&sample{Phone: "abc", Start: "9", Email: "x@y.io"})
	require.Error(t, err)

	fields := Errors(err)
	require.Len(t, fields, 2)
	assert.Equal(t, "phone", fields[0].Field)
	assert.Equal(t, "start_time", fields[1].Field)
	assert.Contains(t, Message(err), "start_time: must be a time in HH:MM format")
}
