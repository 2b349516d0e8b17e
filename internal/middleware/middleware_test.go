package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	"github.com/jwalitptl/telehealth-api/pkg/httputil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAuditor) Log(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthenticate(t *testing.T) {
	tokens := auth.NewJWTService(auth.Config{Secret: "secret"})
	userID := uuid.New()
	pair, err := tokens.GeneratePair(userID, "pat@example.com", string(model.RolePatient))
	require.NoError(t, err)

	engine := gin.New()
	engine.GET("/me", NewAuthMiddleware(tokens).Authenticate(), func(c *gin.Context) {
		actor := handler.Actor(c)
		c.JSON(http.StatusOK, gin.H{"user_id": actor.UserID, "role": actor.Role})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(engine, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), userID.String())
				assert.Contains(t, w.Body.String(), `"role":"patient"`)
			} else {
				assert.Equal(t, "error", decode(t, w).Status)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	withRole := func(role model.Role) gin.HandlerFunc {
		return func(c *gin.Context) {
			handler.SetActor(c, model.Actor{UserID: uuid.New(), Role: role})
			c.Next()
		}
	}

	engine := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	engine.GET("/doctor", withRole(model.RoleDoctor), RequireRole(model.RoleAdmin), ok)
	engine.GET("/admin", withRole(model.RoleAdmin), RequireRole(model.RoleAdmin, model.RoleDoctor), ok)
	engine.GET("/anon", RequireRole(model.RolePatient), ok)

	assert.Equal(t, http.StatusForbidden, serve(engine, httptest.NewRequest(http.MethodGet, "/doctor", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/admin", nil)).Code)
	assert.Equal(t, http.StatusForbidden, serve(engine, httptest.NewRequest(http.MethodGet, "/anon", nil)).Code)
}

func TestAuditLogRecordsMutations(t *testing.T) {
	auditor := &recordingAuditor{}
	userID := uuid.New()
	apptID := uuid.New()

	engine := gin.New()
	engine.Use(RequestID(), func(c *gin.Context) {
		if c.GetHeader("X-Anonymous") == "" {
			handler.SetActor(c, model.Actor{UserID: userID, Role: model.RolePatient})
		}
		c.Next()
	}, NewAuditMiddleware(auditor, []string{"/api/v1/skip"}).AuditLog())

	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	engine.POST("/api/v1/appointments/:id/cancel", ok)
	engine.GET("/api/v1/appointments/:id", ok)
	engine.DELETE("/api/v1/skip", ok)
	engine.PUT("/api/v1/users/me", ok)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/"+apptID.String()+"/cancel", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent")
	serve(engine, req)
	serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/appointments/"+apptID.String(), nil))
	serve(engine, httptest.NewRequest(http.MethodDelete, "/api/v1/skip", nil))
	anon := httptest.NewRequest(http.MethodPut, "/api/v1/users/me", nil)
	anon.Header.Set("X-Anonymous", "1")
	serve(engine, anon)
	serve(engine, httptest.NewRequest(http.MethodPut, "/api/v1/users/me", nil))

	require.Len(t, auditor.entries, 2)

	first := auditor.entries[0]
	assert.Equal(t, model.AuditActionCreate, first.Action)
	assert.Equal(t, "appointments", first.EntityType)
	assert.Equal(t, apptID.String(), first.EntityID)
	assert.Equal(t, "203.0.113.7", first.IPAddress)
	assert.Equal(t, "test-agent", first.UserAgent)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	require.NotNil(t, first.UserID)
	assert.Equal(t, userID, *first.UserID)
	assert.Equal(t, "/api/v1/appointments/:id/cancel", first.Metadata["route"])
	assert.NotEmpty(t, first.Metadata["request_id"])

	second := auditor.entries[1]
	assert.Equal(t, model.AuditActionUpdate, second.Action)
	assert.Equal(t, "users", second.EntityType)
	assert.Empty(t, second.EntityID)
}

func TestEntityFromRoute(t *testing.T) {
	assert.Equal(t, "appointments", entityFromRoute("/api/v1/appointments/:id"))
	assert.Equal(t, "rooms", entityFromRoute("/api/v1/rooms/:room_id/signals"))
	assert.Equal(t, model.AuditEntityRequest, entityFromRoute(""))
	assert.Equal(t, model.AuditEntityRequest, entityFromRoute("/api/v1/:id"))
}

func TestCORS(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowOrigins = []string{"https://app.example.com"}

	engine := gin.New()
	engine.Use(CORS(config))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("allowed origin is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(engine, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), HeaderXRequestID)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := serve(engine, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := serve(engine, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		pre := httptest.NewRequest(http.MethodOptions, "/x", nil)
		pre.Header.Set("Origin", "https://evil.example.com")
		assert.Equal(t, http.StatusForbidden, serve(engine, pre).Code)
	})
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(1), Burst: 2, TTL: time.Minute})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, rl.Cleanup())
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Limit(0.001), Burst: 1})
	engine := gin.New()
	engine.Use(rl.RateLimit())
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decode(t, w).Message)
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(HeaderXRequestID)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderXRequestID, "upstream-id")
	assert.Equal(t, "upstream-id", serve(engine, req).Header().Get(HeaderXRequestID))

	long := httptest.NewRequest(http.MethodGet, "/x", nil)
	long.Header.Set(HeaderXRequestID, strings.Repeat("x", 200))
	assert.NotEqual(t, strings.Repeat("x", 200), serve(engine, long).Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(zerolog.Nop()))
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Message)
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8}))
	engine.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("small"))).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		serve(engine, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("definitely too large"))).Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	engine := gin.New()
	engine.Use(Timeout(TimeoutConfig{Duration: time.Minute}))
	engine.GET("/x", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())

	ws := httptest.NewRequest(http.MethodGet, "/x", nil)
	ws.Header.Set("Upgrade", "websocket")
	assert.JSONEq(t, `{"deadline":false}`, serve(engine, ws).Body.String())
}

func TestSecurityHeaders(t *testing.T) {
	engine := gin.New()
	engine.Use(SecurityHeaders(DefaultSecurityConfig()))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
