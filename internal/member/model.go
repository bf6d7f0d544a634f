package member

import "strings"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleEditor    Role = "editor"
	RoleManager   Role = "manager"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleManager, RoleAssistant:
		return true
	}
	return false
}

type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Member is a row of team_members. UserID links the external auth identity
// and may be empty.
type Member struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id,omitempty"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
	Avatar       string `json:"avatar"`
	Status       Status `json:"status"`
}

// FirstName is what the top bar greets the member with.
func (m Member) FirstName() string {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return "Partner"
	}
	return strings.Fields(name)[0]
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
}

// ProfileRequest edits what teammates see: display name and avatar.
type ProfileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type StatusRequest struct {
	Status Status `json:"status"`
}
