package model

import "github.com/google/uuid"

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Actor is the authenticated caller, taken from the access token.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Actor) IsDoctor() bool  { return a.Role == RoleDoctor }
func (a Actor) IsPatient() bool { return a.Role == RolePatient }
