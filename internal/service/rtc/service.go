package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
	"github.com/jwalitptl/telehealth-api/internal/service"
	"github.com/jwalitptl/telehealth-api/internal/service/audit"
	"github.com/jwalitptl/telehealth-api/pkg/auth"
	apperrors "github.com/jwalitptl/telehealth-api/pkg/errors"
	"github.com/jwalitptl/telehealth-api/pkg/metrics"
)

const (
	maxSignals     = 500
	maxTokenListed = 50
)

var (
	ErrRoomExpired    = apperrors.NewBadRequest("room has expired", nil)
	ErrRoomNotActive  = apperrors.NewBadRequest("room is not active", nil)
	ErrRoomClosed     = apperrors.NewBadRequest("room is no longer open", nil)
	ErrDoctorStarts   = apperrors.NewForbidden("only the doctor can start the room")
	ErrNoVideoVisit   = apperrors.NewBadRequest("appointment is not open for a video visit", nil)
	ErrInvalidSignal  = apperrors.NewBadRequest("missing signal_type or payload", nil)
	ErrRoomTokenScope = apperrors.NewUnauthorized("join token is not valid for this room")
)

// socket error frames
const (
	errInvalidJSON    = "Invalid JSON"
	errMissingFields  = "Missing signal_type or payload"
	errUnknownFrame   = "Unknown message type"
	errSignalRejected = "Signal rejected"
)

// Publisher fans a message out to the other members of a room.
type Publisher interface {
	Publish(ctx context.Context, roomID string, sender uuid.UUID, msg interface{}) error
}

type RTCServicer interface {
	CreateRoom(ctx context.Context, actor model.Actor, appointmentID uuid.UUID) (*model.RTCRoom, bool, error)
	GetRoom(ctx context.Context, actor model.Actor, roomID string) (*model.RTCRoom, error)
	ListRooms(ctx context.Context, actor model.Actor, p model.Pagination) ([]*model.RTCRoom, int, error)
	Join(ctx context.Context, actor model.Actor, roomID string) (*model.JoinResult, error)
	Start(ctx context.Context, actor model.Actor, roomID string) (*model.RTCRoom, error)
	End(ctx context.Context, actor model.Actor, roomID string) (*model.RTCRoom, error)
	Status(ctx context.Context, actor model.Actor, roomID string) (*model.RoomStatusView, error)
	Signal(ctx context.Context, actor model.Actor, req *model.SignalRequest) (*model.RTCSignal, error)
	Signals(ctx context.Context, actor model.Actor, roomID string) ([]*model.RTCSignal, error)
	JoinTokens(ctx context.Context, actor model.Actor) ([]*model.RTCJoinToken, error)

	// AuthorizeSocket checks a join token presented when opening the signaling socket.
	AuthorizeSocket(ctx context.Context, token, roomID string) (uuid.UUID, error)
	// HandleFrame processes one inbound socket frame and returns the reply for the
	// sender, nil when there is none.
	HandleFrame(ctx context.Context, userID uuid.UUID, roomID string, raw []byte) *model.WSMessage
	// Announce tells the rest of the room that userID joined or left.
	Announce(ctx context.Context, userID uuid.UUID, roomID, frameType string)
	// ExpireRooms moves every room past its lifetime to expired.
	ExpireRooms(ctx context.Context) (int64, error)
}

type Service struct {
	repo    repository.RTCRepository
	appts   repository.AppointmentRepository
	tokens  auth.JWTService
	hub     Publisher
	auditor audit.Auditor
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

var _ RTCServicer = (*Service)(nil)

func NewService(
	repo repository.RTCRepository,
	appts repository.AppointmentRepository,
	tokens auth.JWTService,
	hub Publisher,
	auditor audit.Auditor,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:    repo,
		appts:   appts,
		tokens:  tokens,
		hub:     hub,
		auditor: auditor,
		metrics: m,
		logger:  log.With().Str("component", "rtc").Logger(),
		now:     time.Now,
	}
}

// CreateRoom opens the video room of an appointment. When the appointment already has
// one it is returned and the bool is false.
func (s *Service) CreateRoom(ctx context.Context, actor model.Actor, appointmentID uuid.UUID) (*model.RTCRoom, bool, error) {
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, false, service.Translate(err, "appointment")
	}
	if actor.UserID != appt.PatientID && actor.UserID != appt.DoctorID {
		return nil, false, service.ErrPermission
	}
	if appt.AppointmentType != model.AppointmentTypeVideo {
		return nil, false, ErrNoVideoVisit
	}
	switch appt.Status {
	case model.AppointmentStatusPending, model.AppointmentStatusConfirmed, model.AppointmentStatusInProgress:
	default:
		return nil, false, ErrNoVideoVisit
	}

	existing, err := s.repo.GetRoomByAppointment(ctx, appt.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, service.Translate(err, "room")
	}

	now := s.now().UTC()
	room := &model.RTCRoom{
		ID:              uuid.New(),
		RoomID:          NewRoomID(),
		AppointmentID:   appt.ID,
		Status:          model.RoomCreated,
		CreatedBy:       actor.UserID,
		MaxParticipants: model.DefaultMaxParticipants,
		CreatedAt:       now,
		ExpiresAt:       now.Add(model.RoomLifetime),
	}
	stored, err := s.repo.CreateRoom(ctx, room)
	if err != nil {
		return nil, false, service.Translate(err, "room")
	}
	created := stored.ID == room.ID
	if created {
		s.auditor.Log(ctx, audit.Action(actor.UserID, model.AuditActionCreate, model.AuditEntityRoom, stored.ID,
			model.JSONMap{"room_id": stored.RoomID, "appointment_id": appt.ID.String()}))
	}
	return stored, created, nil
}

// NewRoomID returns a public room id of the form room_<12 hex chars>.
func NewRoomID() string {
	return "room_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *Service) GetRoom(ctx context.Context, actor model.Actor, roomID string) (*model.RTCRoom, error) {
	room, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !room.IsParticipant(actor.UserID) {
		return nil, service.ErrPermission
	}
	return room, nil
}

func (s *Service) ListRooms(ctx context.Context, actor model.Actor, p model.Pagination) ([]*model.RTCRoom, int, error) {
	var userID *uuid.UUID
	if !actor.IsAdmin() {
		userID = &actor.UserID
	}
	rooms, total, err := s.repo.ListRooms(ctx, userID, p)
	if err != nil {
		return nil, 0, service.Translate(err, "room")
	}
	return rooms, total, nil
}

// Join issues a short-lived token for the signaling socket of an active room.
func (s *Service) Join(ctx context.Context, actor model.Actor, roomID string) (*model.JoinResult, error) {
	room, err := s.room(ctx, actor.UserID, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status == model.RoomExpired {
		return nil, ErrRoomExpired
	}
	if room.Status != model.RoomActive {
		return nil, ErrRoomNotActive
	}

	token, expiresAt, err := s.tokens.GenerateRoomToken(actor.UserID, room.RoomID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	record := &model.RTCJoinToken{
		ID:        uuid.New(),
		RoomID:    room.ID,
		UserID:    actor.UserID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateJoinToken(ctx, record); err != nil {
		return nil, service.Translate(err, "join token")
	}

	s.auditor.Log(ctx, audit.Action(actor.UserID, "join", model.AuditEntityRoom, room.ID, model.JSONMap{"room_id": room.RoomID}))
	return &model.JoinResult{
		Token:     token,
		RoomID:    room.RoomID,
		ExpiresAt: expiresAt,
		Room:      room,
	}, nil
}

// Start moves a created room to active. Only the appointment's doctor may do it.
func (s *Service) Start(ctx context.Context, actor model.Actor, roomID string) (*model.RTCRoom, error) {
	room, err := s.room(ctx, actor.UserID, roomID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != room.DoctorID {
		return nil, ErrDoctorStarts
	}
	if room.Status == model.RoomExpired {
		return nil, ErrRoomExpired
	}
	if room.Status != model.RoomCreated {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("room cannot be started from status: %s", room.Status), nil)
	}

	now := s.now().UTC()
	room.Status = model.RoomActive
	room.StartedAt = &now
	if err := s.repo.UpdateRoom(ctx, room, model.RoomCreated); err != nil {
		return nil, service.Translate(err, "room")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, "start", model.AuditEntityRoom, room.ID, model.JSONMap{"room_id": room.RoomID}))
	return room, nil
}

// End closes a created or active room. Either participant may end it.
func (s *Service) End(ctx context.Context, actor model.Actor, roomID string) (*model.RTCRoom, error) {
	room, err := s.room(ctx, actor.UserID, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomCreated && room.Status != model.RoomActive {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("room cannot be ended from status: %s", room.Status), nil)
	}

	now := s.now().UTC()
	room.Status = model.RoomEnded
	room.EndedAt = &now
	if err := s.repo.UpdateRoom(ctx, room, model.RoomCreated, model.RoomActive); err != nil {
		return nil, service.Translate(err, "room")
	}
	s.auditor.Log(ctx, audit.Action(actor.UserID, "end", model.AuditEntityRoom, room.ID, model.JSONMap{"room_id": room.RoomID}))
	return room, nil
}

func (s *Service) Status(ctx context.Context, actor model.Actor, roomID string) (*model.RoomStatusView, error) {
	room, err := s.room(ctx, actor.UserID, roomID)
	if err != nil {
		return nil, err
	}
	return &model.RoomStatusView{
		RoomID:    room.RoomID,
		Status:    room.Status,
		ExpiresAt: room.ExpiresAt,
		StartedAt: room.StartedAt,
		EndedAt:   room.EndedAt,
		IsExpired: room.Status == model.RoomExpired,
	}, nil
}

// Signal stores a signaling message and relays it to the other members of the room.
func (s *Service) Signal(ctx context.Context, actor model.Actor, req *model.SignalRequest) (*model.RTCSignal, error) {
	room, err := s.room(ctx, actor.UserID, req.RoomID)
	if err != nil {
		return nil, err
	}
	return s.relay(ctx, actor.UserID, room, req.SignalType, req.Payload)
}

func (s *Service) relay(ctx context.Context, sender uuid.UUID, room *model.RTCRoom, signalType model.SignalType, payload model.JSONMap) (*model.RTCSignal, error) {
	if room.Status == model.RoomEnded || room.Status == model.RoomExpired {
		return nil, ErrRoomClosed
	}
	if !signalType.Valid() || len(payload) == 0 {
		return nil, ErrInvalidSignal
	}

	sig := &model.RTCSignal{
		ID:         uuid.New(),
		RoomID:     room.ID,
		SenderID:   sender,
		SignalType: signalType,
		Payload:    payload,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateSignal(ctx, sig); err != nil {
		return nil, service.Translate(err, "signal")
	}
	s.metrics.RTCSignals.WithLabelValues(string(signalType)).Inc()

	err := s.hub.Publish(ctx, room.RoomID, sender, model.WSMessage{
		Type:       model.WSTypeSignal,
		SignalType: signalType,
		Payload:    payload,
		UserID:     sender.String(),
	})
	if err != nil {
		// stored signals can still be fetched over REST
		s.logger.Error().Err(err).Str("room_id", room.RoomID).Msg("failed to relay signal")
	}
	return sig, nil
}

// Signals returns the room's signaling log, oldest first.
func (s *Service) Signals(ctx context.Context, actor model.Actor, roomID string) ([]*model.RTCSignal, error) {
	room, err := s.room(ctx, actor.UserID, roomID)
	if err != nil {
		return nil, err
	}
	signals, err := s.repo.ListSignals(ctx, room.ID, maxSignals)
	if err != nil {
		return nil, service.Translate(err, "signal")
	}
	for i, j := 0, len(signals)-1; i < j; i, j = i+1, j-1 {
		signals[i], signals[j] = signals[j], signals[i]
	}
	if signals == nil {
		signals = []*model.RTCSignal{}
	}
	return signals, nil
}

func (s *Service) JoinTokens(ctx context.Context, actor model.Actor) ([]*model.RTCJoinToken, error) {
	tokens, err := s.repo.ListJoinTokens(ctx, actor.UserID, maxTokenListed)
	if err != nil {
		return nil, service.Translate(err, "join token")
	}
	if tokens == nil {
		tokens = []*model.RTCJoinToken{}
	}
	return tokens, nil
}

func (s *Service) AuthorizeSocket(ctx context.Context, token, roomID string) (uuid.UUID, error) {
	claims, err := s.tokens.ValidateRoomToken(token)
	if err != nil {
		return uuid.Nil, apperrors.Unauthorized(err)
	}
	if claims.RoomID != roomID {
		return uuid.Nil, ErrRoomTokenScope
	}
	room, err := s.room(ctx, claims.UserID, roomID)
	if err != nil {
		return uuid.Nil, err
	}
	if room.Status != model.RoomActive {
		return uuid.Nil, ErrRoomNotActive
	}
	return claims.UserID, nil
}

type inboundFrame struct {
	Type       string           `json:"type"`
	SignalType model.SignalType `json:"signal_type"`
	Payload    model.JSONMap    `json:"payload"`
}

func (s *Service) HandleFrame(ctx context.Context, userID uuid.UUID, roomID string, raw []byte) *model.WSMessage {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return errorFrame(errInvalidJSON)
	}

	switch frame.Type {
	case model.WSTypeSignal:
		if frame.SignalType == "" || len(frame.Payload) == 0 {
			return errorFrame(errMissingFields)
		}
		room, err := s.room(ctx, userID, roomID)
		if err != nil {
			return errorFrame(apperrors.MessageOf(err))
		}
		if _, err := s.relay(ctx, userID, room, frame.SignalType, frame.Payload); err != nil {
			if errors.Is(err, ErrInvalidSignal) {
				return errorFrame(errSignalRejected)
			}
			return errorFrame(apperrors.MessageOf(err))
		}
	case model.WSTypeJoinRoom:
		s.Announce(ctx, userID, roomID, model.WSTypeUserJoined)
	case model.WSTypeLeaveRoom:
		s.Announce(ctx, userID, roomID, model.WSTypeUserLeft)
	default:
		return errorFrame(errUnknownFrame)
	}
	return nil
}

func (s *Service) Announce(ctx context.Context, userID uuid.UUID, roomID, frameType string) {
	err := s.hub.Publish(ctx, roomID, userID, model.WSMessage{Type: frameType, UserID: userID.String()})
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Str("type", frameType).Msg("failed to announce")
	}
}

func (s *Service) ExpireRooms(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireRooms(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.metrics.RoomsExpired.Add(float64(n))
	return n, nil
}

func errorFrame(msg string) *model.WSMessage {
	return &model.WSMessage{Type: model.WSTypeError, Message: msg}
}

// room loads a room for one of its participants and applies lazy expiry.
func (s *Service) room(ctx context.Context, userID uuid.UUID, roomID string) (*model.RTCRoom, error) {
	room, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsParticipant(userID) {
		return nil, service.ErrPermission
	}
	return room, nil
}

func (s *Service) load(ctx context.Context, roomID string) (*model.RTCRoom, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, service.Translate(err, "room")
	}
	if (room.Status == model.RoomCreated || room.Status == model.RoomActive) && room.PastExpiry(s.now()) {
		from := room.Status
		room.Status = model.RoomExpired
		if err := s.repo.UpdateRoom(ctx, room, from); err != nil {
			if !errors.Is(err, repository.ErrStaleState) {
				return nil, service.Translate(err, "room")
			}
			// another request moved the room first; report what it stored
			if room, err = s.repo.GetRoom(ctx, roomID); err != nil {
				return nil, service.Translate(err, "room")
			}
		}
	}
	return room, nil
}
