package store

import (
	"fmt"
	"time"
)

// User is a profile created on first Google sign-in.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Picture   string     `json:"picture"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Calendar links a user to the Google Calendar they manage through the app.
type Calendar struct {
	ID               string    `json:"id"`
	GoogleCalendarID string    `json:"google_calendar_id"`
	Name             string    `json:"name"`
	OwnerID          string    `json:"owner_id"`
	IsPrimary        bool      `json:"is_primary"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role is the access level granted by a share.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole accepts the two shareable roles. Empty means editor.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleEditor:
		return RoleEditor, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// CanEdit reports whether the role may change events.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CalendarShare grants another user access to a calendar.
type CalendarShare struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Owner is the public view of a calendar owner.
type Owner struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CalendarAccess is a calendar together with everyone who may use it.
type CalendarAccess struct {
	Calendar Calendar        `json:"calendar"`
	Owner    Owner           `json:"owner"`
	Shares   []CalendarShare `json:"shares"`
}

// RoleFor returns the role userID holds on the calendar.
func (a *CalendarAccess) RoleFor(userID string) (Role, bool) {
	if a.Calendar.OwnerID == userID {
		return RoleOwner, true
	}
	for _, s := range a.Shares {
		if s.UserID == userID {
			return s.Role, true
		}
	}
	return "", false
}
