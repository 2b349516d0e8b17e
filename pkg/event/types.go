package event

import (
	"context"
)

// Emitter persists a domain event for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

// EventContext is attached to the gin context by TrackEvent. Handlers fill NewData
// (and OldData for updates) once the operation succeeded.
type EventContext struct {
	Resource   string
	Operation  string
	OldData    interface{}
	NewData    interface{}
	Additional map[string]interface{}
}

type FieldExtractor interface {
	ExtractFields(obj interface{}, fields []string) map[string]interface{}
	ExtractChanges(old, new interface{}, fields []string) map[string]interface{}
}
