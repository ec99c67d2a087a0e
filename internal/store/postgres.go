package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id::text, email, COALESCE(name, ''), COALESCE(picture, ''), last_login, created_at, updated_at`

type userRepo struct {
	db DB
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpsertProfile inserts the profile or refreshes name, picture and last login
// for an existing email.
func (r *userRepo) UpsertProfile(ctx context.Context, email, name, picture string) (*User, error) {
	defer observeDB(ctx, "users.upsert")()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("upsert profile: email is required")
	}

	const q = `INSERT INTO user_profiles (email, name, picture, last_login, updated_at)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NOW(), NOW())
ON CONFLICT (email) DO UPDATE SET
	name = COALESCE(EXCLUDED.name, user_profiles.name),
	picture = COALESCE(EXCLUDED.picture, user_profiles.picture),
	last_login = NOW(),
	updated_at = NOW()
RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, q, email, name, picture))
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM user_profiles WHERE id = $1`, id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	defer observeDB(ctx, "users.get_by_email")()
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM user_profiles WHERE email = $1`, email))
}

const calendarColumns = `id::text, google_calendar_id, name, owner_id::text, is_primary, created_at, updated_at`

type calendarRepo struct {
	db DB
}

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var c Calendar
	if err := row.Scan(&c.ID, &c.GoogleCalendarID, &c.Name, &c.OwnerID, &c.IsPrimary, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// Create inserts a calendar. A new primary calendar demotes the owner's
// previous primary in the same transaction.
func (r *calendarRepo) Create(ctx context.Context, cal Calendar) (*Calendar, error) {
	defer observeDB(ctx, "calendars.create")()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("create calendar: %w", err)
	}
	if cal.IsPrimary {
		const demote = `UPDATE calendars SET is_primary = FALSE, updated_at = NOW() WHERE owner_id = $1 AND is_primary`
		if _, err := tx.Exec(ctx, demote, cal.OwnerID); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("demote primary calendar: %w", err)
		}
	}

	const q = `INSERT INTO calendars (google_calendar_id, name, owner_id, is_primary)
VALUES ($1, $2, $3, $4)
RETURNING ` + calendarColumns

	created, err := scanCalendar(tx.QueryRow(ctx, q, cal.GoogleCalendarID, cal.Name, cal.OwnerID, cal.IsPrimary))
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("create calendar: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit calendar: %w", err)
	}
	return created, nil
}

// FindByOwner returns the owner's primary calendar, or the oldest one.
func (r *calendarRepo) FindByOwner(ctx context.Context, ownerID string) (*Calendar, error) {
	defer observeDB(ctx, "calendars.find_by_owner")()

	const q = `SELECT ` + calendarColumns + ` FROM calendars
WHERE owner_id = $1
ORDER BY is_primary DESC, created_at ASC
LIMIT 1`
	return scanCalendar(r.db.QueryRow(ctx, q, ownerID))
}

// GetWithAccess loads the calendar, its owner and its shares.
func (r *calendarRepo) GetWithAccess(ctx context.Context, id string) (*CalendarAccess, error) {
	defer observeDB(ctx, "calendars.get_with_access")()

	const q = `SELECT c.id::text, c.google_calendar_id, c.name, c.owner_id::text, c.is_primary, c.created_at, c.updated_at,
	u.email, COALESCE(u.name, '')
FROM calendars c
JOIN user_profiles u ON u.id = c.owner_id
WHERE c.id = $1`

	var a CalendarAccess
	c := &a.Calendar
	err := r.db.QueryRow(ctx, q, id).Scan(&c.ID, &c.GoogleCalendarID, &c.Name, &c.OwnerID, &c.IsPrimary, &c.CreatedAt, &c.UpdatedAt,
		&a.Owner.Email, &a.Owner.Name)
	if err != nil {
		return nil, notFound(err)
	}

	shares, err := listShares(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	a.Shares = shares
	return &a, nil
}

type calendarShareRepo struct {
	db DB
}

// Upsert grants role on the calendar, replacing any existing role.
func (r *calendarShareRepo) Upsert(ctx context.Context, calendarID, userID string, role Role) (*CalendarShare, error) {
	defer observeDB(ctx, "calendar_shares.upsert")()

	const q = `INSERT INTO calendar_shares (calendar_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (calendar_id, user_id) DO UPDATE SET role = EXCLUDED.role
RETURNING id::text, calendar_id::text, user_id::text, role, created_at`

	var s CalendarShare
	var roleName string
	if err := r.db.QueryRow(ctx, q, calendarID, userID, string(role)).Scan(&s.ID, &s.CalendarID, &s.UserID, &roleName, &s.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert share: %w", notFound(err))
	}
	s.Role = Role(roleName)
	return &s, nil
}

func (r *calendarShareRepo) ListByCalendar(ctx context.Context, calendarID string) ([]CalendarShare, error) {
	defer observeDB(ctx, "calendar_shares.list")()
	return listShares(ctx, r.db, calendarID)
}

func (r *calendarShareRepo) GetRole(ctx context.Context, calendarID, userID string) (Role, error) {
	defer observeDB(ctx, "calendar_shares.get_role")()

	var role string
	err := r.db.QueryRow(ctx, `SELECT role FROM calendar_shares WHERE calendar_id = $1 AND user_id = $2`, calendarID, userID).Scan(&role)
	if err != nil {
		return "", notFound(err)
	}
	return Role(role), nil
}

func (r *calendarShareRepo) Delete(ctx context.Context, calendarID, userID string) error {
	defer observeDB(ctx, "calendar_shares.delete")()

	tag, err := r.db.Exec(ctx, `DELETE FROM calendar_shares WHERE calendar_id = $1 AND user_id = $2`, calendarID, userID)
	if err != nil {
		return fmt.Errorf("delete share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func listShares(ctx context.Context, db DB, calendarID string) ([]CalendarShare, error) {
	const q = `SELECT s.id::text, s.calendar_id::text, s.user_id::text, s.role, s.created_at, u.email, COALESCE(u.name, '')
FROM calendar_shares s
JOIN user_profiles u ON u.id = s.user_id
WHERE s.calendar_id = $1
ORDER BY s.created_at ASC`

	rows, err := db.Query(ctx, q, calendarID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	shares := []CalendarShare{}
	for rows.Next() {
		var s CalendarShare
		var role string
		if err := rows.Scan(&s.ID, &s.CalendarID, &s.UserID, &role, &s.CreatedAt, &s.Email, &s.Name); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		s.Role = Role(role)
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	return shares, nil
}
