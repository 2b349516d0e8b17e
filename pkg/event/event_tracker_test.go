package event

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emitted struct {
	eventType string
	payload   interface{}
}

type fakeEmitter struct {
	events []emitted
}

func (f *fakeEmitter) Emit(_ context.Context, eventType string, payload interface{}) error {
	f.events = append(f.events, emitted{eventType, payload})
	return nil
}

type inner struct {
	ID string `json:"id"`
}

type booking struct {
	inner
	Status string `json:"status"`
	Reason string `json:"reason"`
	secret string
}

func newRouter(tracker *EventTracker, status int, data interface{}) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x", tracker.TrackEvent("appointment", "cancel", "id", "status"), func(c *gin.Context) {
		if data != nil {
			Record(c, data)
			Annotate(c, "actor", "u1")
		}
		c.Status(status)
	})
	return r
}

func TestTrackEventEmitsSelectedFields(t *testing.T) {
	em := &fakeEmitter{}
	r := newRouter(NewEventTracker(em, true), http.StatusOK, &booking{inner: inner{ID: "a1"}, Status: "cancelled", Reason: "x"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))

	require.Len(t, em.events, 1)
	assert.Equal(t, "APPOINTMENT_CANCEL", em.events[0].eventType)
	assert.Equal(t, map[string]interface{}{"id": "a1", "status": "cancelled", "actor": "u1"}, em.events[0].payload)
}

func TestTrackEventSkipsFailures(t *testing.T) {
	em := &fakeEmitter{}
	r := newRouter(NewEventTracker(em, true), http.StatusConflict, &booking{})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Empty(t, em.events)
}

func TestTrackEventWithoutRecord(t *testing.T) {
	em := &fakeEmitter{}
	r := newRouter(NewEventTracker(em, true), http.StatusOK, nil)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Empty(t, em.events)
}

func TestTrackEventDisabled(t *testing.T) {
	em := &fakeEmitter{}
	r := newRouter(NewEventTracker(em, false), http.StatusOK, &booking{})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Empty(t, em.events)
}

func TestExtractChanges(t *testing.T) {
	e := &DefaultFieldExtractor{}
	old := booking{inner: inner{ID: "a1"}, Status: "pending"}
	cur := booking{inner: inner{ID: "a1"}, Status: "confirmed"}

	changes := e.ExtractChanges(old, cur, []string{"id", "status"})
	assert.Equal(t, map[string]interface{}{
		"status": map[string]interface{}{"old": "pending", "new": "confirmed"},
	}, changes)
}
