package event

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const contextKey = "eventCtx"

// Type renders the outbox event type for a resource and operation, e.g. APPOINTMENT_CANCEL.
func Type(resource, operation string) string {
	return fmt.Sprintf("%s_%s", strings.ToUpper(resource), strings.ToUpper(operation))
}

type EventTracker struct {
	emitter   Emitter
	extractor FieldExtractor
	enabled   bool
}

func NewEventTracker(emitter Emitter, enabled bool) *EventTracker {
	return &EventTracker{
		emitter:   emitter,
		extractor: &DefaultFieldExtractor{},
		enabled:   enabled,
	}
}

// TrackEvent emits resource_operation after a successful request whose handler called
// Record. fields restricts the payload to those json keys; empty means the whole object.
func (t *EventTracker) TrackEvent(resource, operation string, fields ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if t == nil || !t.enabled {
			c.Next()
			return
		}

		eventCtx := &EventContext{
			Resource:   resource,
			Operation:  operation,
			Additional: map[string]interface{}{},
		}
		c.Set(contextKey, eventCtx)

		c.Next()

		if eventCtx.NewData == nil || c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		var payload interface{} = eventCtx.NewData
		if len(fields) > 0 {
			data := t.extractor.ExtractFields(eventCtx.NewData, fields)
			if eventCtx.OldData != nil {
				if changes := t.extractor.ExtractChanges(eventCtx.OldData, eventCtx.NewData, fields); len(changes) > 0 {
					data["changes"] = changes
				}
			}
			for k, v := range eventCtx.Additional {
				data[k] = v
			}
			payload = data
		}

		eventType := Type(resource, operation)
		if err := t.emitter.Emit(c.Request.Context(), eventType, payload); err != nil {
			log.Error().Err(err).Str("event_type", eventType).Msg("failed to emit event")
		}
	}
}

// Record hands the result of a tracked operation to the tracker. A no-op on routes
// without TrackEvent.
func Record(c *gin.Context, newData interface{}) {
	if v, ok := c.Get(contextKey); ok {
		v.(*EventContext).NewData = newData
	}
}

// RecordChange is Record for updates, keeping the previous state for the changes diff.
func RecordChange(c *gin.Context, oldData, newData interface{}) {
	if v, ok := c.Get(contextKey); ok {
		ec := v.(*EventContext)
		ec.OldData = oldData
		ec.NewData = newData
	}
}

// Annotate adds a key to the emitted payload.
func Annotate(c *gin.Context, key string, value interface{}) {
	if v, ok := c.Get(contextKey); ok {
		v.(*EventContext).Additional[key] = value
	}
}
