package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims carried by access and refresh tokens.
type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenType string    `json:"token_type"`
	jwt.RegisteredClaims
}

// RoomClaims authorize one user on one RTC room.
type RoomClaims struct {
	UserID uuid.UUID `json:"user_id"`
	RoomID string    `json:"room_id"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Config struct {
	Secret        string
	RefreshSecret string
	RoomSecret    string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	RoomExpiry    time.Duration
}

// JWTService issues and validates the platform's tokens.
type JWTService interface {
	GeneratePair(userID uuid.UUID, email, role string) (*TokenPair, error)
	ValidateAccessToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
	GenerateRoomToken(userID uuid.UUID, roomID string) (string, time.Time, error)
	ValidateRoomToken(token string) (*RoomClaims, error)
}

type jwtService struct {
	cfg Config
	now func() time.Time
}

func NewJWTService(cfg Config) JWTService {
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.Secret
	}
	if cfg.RoomSecret == "" {
		cfg.RoomSecret = cfg.Secret
	}
	if cfg.AccessExpiry == 0 {
		cfg.AccessExpiry = 24 * time.Hour
	}
	if cfg.RefreshExpiry == 0 {
		cfg.RefreshExpiry = 7 * 24 * time.Hour
	}
	if cfg.RoomExpiry == 0 {
		cfg.RoomExpiry = 30 * time.Minute
	}
	return &jwtService{cfg: cfg, now: time.Now}
}

func (s *jwtService) GeneratePair(userID uuid.UUID, email, role string) (*TokenPair, error) {
	access, err := s.sign(userID, email, role, TokenTypeAccess, s.cfg.AccessExpiry, s.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := s.sign(userID, email, role, TokenTypeRefresh, s.cfg.RefreshExpiry, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessExpiry.Seconds()),
	}, nil
}

func (s *jwtService) sign(userID uuid.UUID, email, role, tokenType string, ttl time.Duration, secret string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *jwtService) ValidateAccessToken(token string) (*Claims, error) {
	return s.validate(token, s.cfg.Secret, TokenTypeAccess)
}

func (s *jwtService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.validate(token, s.cfg.RefreshSecret, TokenTypeRefresh)
}

func (s *jwtService) validate(tokenString, secret, tokenType string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(tokenString, secret, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *jwtService) GenerateRoomToken(userID uuid.UUID, roomID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.RoomExpiry)
	claims := RoomClaims{
		UserID: userID,
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.RoomSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign room token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *jwtService) ValidateRoomToken(tokenString string) (*RoomClaims, error) {
	claims := &RoomClaims{}
	if err := s.parse(tokenString, s.cfg.RoomSecret, claims); err != nil {
		return nil, err
	}
	if claims.RoomID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *jwtService) parse(tokenString, secret string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
