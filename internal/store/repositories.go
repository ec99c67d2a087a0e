package store

import "context"

// UserRepository persists user profiles.
type UserRepository interface {
	UpsertProfile(ctx context.Context, email, name, picture string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// CalendarRepository handles the calendars a user has linked.
type CalendarRepository interface {
	Create(ctx context.Context, cal Calendar) (*Calendar, error)
	FindByOwner(ctx context.Context, ownerID string) (*Calendar, error)
	GetWithAccess(ctx context.Context, id string) (*CalendarAccess, error)
}

// CalendarShareRepository manages per-user calendar access.
type CalendarShareRepository interface {
	Upsert(ctx context.Context, calendarID, userID string, role Role) (*CalendarShare, error)
	ListByCalendar(ctx context.Context, calendarID string) ([]CalendarShare, error)
	GetRole(ctx context.Context, calendarID, userID string) (Role, error)
	Delete(ctx context.Context, calendarID, userID string) error
}
