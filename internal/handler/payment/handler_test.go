package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/payment"
	"github.com/jwalitptl/telehealth-api/pkg/event"
)

// intentService only implements CreateIntent; any other call panics.
type intentService struct {
	payment.PaymentServicer
	calls int
}

func (s *intentService) CreateIntent(_ context.Context, _ model.Actor, req *model.PaymentIntentRequest) (*model.PaymentTransaction, error) {
	s.calls++
	return &model.PaymentTransaction{Base: model.NewBase(), AppointmentID: req.AppointmentID, Provider: req.Provider}, nil
}

func TestCreateIntentProvider(t *testing.T) {
	tests := []struct {
		provider string
		status   int
	}{
		{"", http.StatusCreated},
		{"manual", http.StatusCreated},
		{"razorpay", http.StatusCreated},
		{"stripe", http.StatusBadRequest},
		{"paypal", http.StatusBadRequest},
	}

	gin.SetMode(gin.TestMode)
	for _, tt := range tests {
		t.Run("provider="+tt.provider, func(t *testing.T) {
			svc := &intentService{}
			engine := gin.New()
			group := engine.Group("/api/v1")
			group.Use(func(c *gin.Context) {
				handler.SetActor(c, model.Actor{UserID: uuid.New(), Role: model.RolePatient})
				c.Next()
			})
			NewHandler(svc).RegisterRoutesWithEvents(group, event.NewEventTracker(nil, false))

			body, _ := json.Marshal(map[string]string{"appointment_id": uuid.NewString(), "provider": tt.provider})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intent", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusBadRequest {
				assert.Zero(t, svc.calls)
			}
		})
	}
}
