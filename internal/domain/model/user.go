package model

import (
	"strings"
	"time"

	"rollingpi/internal/domain"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the backend account keyed by the Pi Network uid.
type User struct {
	ID        int64
	PiID      string
	Username  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewUser(piID, username string) (*User, error) {
	piID = strings.TrimSpace(piID)
	username = strings.TrimSpace(username)
	if piID == "" || username == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{PiID: piID, Username: username, Role: RoleUser, CreatedAt: now, UpdatedAt: now}, nil
}

func (u *User) IsZero() bool { return u == nil || u.PiID == "" }

// UserSession is the single "current user" record the client persists.
type UserSession struct {
	Username    string `json:"username"`
	AccessToken string `json:"accessToken"`
	PiID        string `json:"piId"`
	Role        Role   `json:"role"`
}

func (s *UserSession) Valid() bool {
	return s != nil && s.Username != "" && s.AccessToken != ""
}

// SDKAuth is the payload returned by the payment SDK's authenticate call.
type SDKAuth struct {
	AccessToken string
	UID         string
	Username    string
}
