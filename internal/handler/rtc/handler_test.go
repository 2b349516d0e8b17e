package rtc

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	withOrigin := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(withOrigin("https://anything.example.com")))

	strict := originChecker([]string{"https://app.example.com"})
	assert.True(t, strict(withOrigin("https://app.example.com")))
	assert.True(t, strict(withOrigin("")))
	assert.False(t, strict(withOrigin("https://evil.example.com")))
}

func TestSocketRequiresJoinToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(nil, nil, nil).RegisterSocketRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rtc/rooms/room-1/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "join token is required")
}
