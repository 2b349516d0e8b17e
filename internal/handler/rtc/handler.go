package rtc

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telehealth-api/internal/handler"
	"github.com/jwalitptl/telehealth-api/internal/model"
	rtcsvc "github.com/jwalitptl/telehealth-api/internal/service/rtc"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/rtc"
)

// Rooms tracks the sockets attached to each room.
type Rooms interface {
	Register(ctx context.Context, client *rtc.Client) error
	Unregister(client *rtc.Client)
}

type Handler struct {
	service  rtcsvc.RTCServicer
	rooms    Rooms
	upgrader websocket.Upgrader
}

// NewHandler builds the RTC handler. An empty allowedOrigins accepts any origin.
func NewHandler(service rtcsvc.RTCServicer, rooms Rooms, allowedOrigins []string) *Handler {
	h := &Handler{service: service, rooms: rooms}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// RegisterSocketRoutes mounts the signaling socket. It authenticates with the join
// token in the query string instead of the bearer header.
func (h *Handler) RegisterSocketRoutes(r *gin.RouterGroup) {
	r.GET("/rtc/rooms/:room_id/ws", h.Socket)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/rtc")
	{
		g.GET("/rooms", h.ListRooms)
		g.POST("/rooms/appointment/:id", h.CreateRoom)
		g.GET("/rooms/:room_id", h.GetRoom)
		g.GET("/rooms/:room_id/status", h.Status)
		g.POST("/rooms/:room_id/join", h.Join)
		g.POST("/rooms/:room_id/start", h.Start)
		g.POST("/rooms/:room_id/end", h.End)
		g.GET("/rooms/:room_id/signals", h.Signals)
		g.POST("/signals", h.Signal)
		g.GET("/join-tokens", h.JoinTokens)
	}
}

func (h *Handler) ListRooms(c *gin.Context) {
	p := handler.Page(c)
	rooms, total, err := h.service.ListRooms(c.Request.Context(), handler.Actor(c), p)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.List(c, rooms, p, total)
}

func (h *Handler) CreateRoom(c *gin.Context) {
	id, ok := handler.ParseID(c, "id", "appointment")
	if !ok {
		return
	}
	room, created, err := h.service.CreateRoom(c.Request.Context(), handler.Actor(c), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if created {
		handler.Created(c, room)
		return
	}
	handler.OK(c, room)
}

func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.service.GetRoom(c.Request.Context(), handler.Actor(c), c.Param("room_id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, room)
}

func (h *Handler) Status(c *gin.Context) {
	view, err := h.service.Status(c.Request.Context(), handler.Actor(c), c.Param("room_id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, view)
}

func (h *Handler) Join(c *gin.Context) {
	res, err := h.service.Join(c.Request.Context(), handler.Actor(c), c.Param("room_id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, res)
}

func (h *Handler) Start(c *gin.Context) {
	room, err := h.service.Start(c.Request.Context(), handler.Actor(c), c.Param("room_id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, room)
}

func (h *Handler) End(c *gin.Context) {
	room, err := h.service.End(c.Request.Context(), handler.Actor(c), c.Param("room_id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, room)
}

func (h *Handler) Signals(c *gin.Context) {
	signals, err := h.service.Signals(c.Request.Context(), handler.Actor(c), c.Param("room_id"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, signals)
}

func (h *Handler) Signal(c *gin.Context) {
	var req model.SignalRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	sig, err := h.service.Signal(c.Request.Context(), handler.Actor(c), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.Created(c, sig)
}

func (h *Handler) JoinTokens(c *gin.Context) {
	tokens, err := h.service.JoinTokens(c.Request.Context(), handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	handler.OK(c, tokens)
}

// Socket upgrades to a WebSocket and relays signaling frames until the peer leaves.
func (h *Handler) Socket(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("room_id")
	token := c.Query("token")
	if token == "" {
		handler.Fail(c, apperrors.NewUnauthorized("join token is required"))
		return
	}

	userID, err := h.service.AuthorizeSocket(ctx, token, roomID)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already answered
		log.Warn().Err(err).Str("room_id", roomID).Msg("websocket upgrade failed")
		return
	}

	client := rtc.NewClient(userID, roomID, rtc.GorillaConn{Conn: conn})
	if err := h.rooms.Register(ctx, client); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to attach socket")
		_ = conn.Close()
		return
	}
	go client.WritePump()
	h.service.Announce(ctx, userID, roomID, model.WSTypeUserJoined)

	client.ReadPump(func(message []byte) {
		reply := h.service.HandleFrame(ctx, userID, roomID, message)
		if reply == nil {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if !client.Reply(data) {
			log.Warn().Str("room_id", roomID).Str("user_id", userID.String()).Msg("socket send buffer full")
		}
	})

	h.rooms.Unregister(client)
	h.service.Announce(context.WithoutCancel(ctx), userID, roomID, model.WSTypeUserLeft)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
