package event

import "github.com/gin-gonic/gin"

// EventHandler is implemented by handlers with routes that emit domain events. The
// router registers them with the shared tracker instead of calling RegisterRoutes.
type EventHandler interface {
	RegisterRoutesWithEvents(r *gin.RouterGroup, tracker *EventTracker)
}
