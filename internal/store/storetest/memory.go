// Package storetest provides an in-memory store for handler tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pewcal/pewcal/internal/store"
)

// Memory holds users, calendars and shares in maps.
type Memory struct {
	mu        sync.Mutex
	users     map[string]*store.User
	calendars map[string]*store.Calendar
	shares    map[string]map[string]*store.CalendarShare
	clock     time.Time
}

func New() *Memory {
	return &Memory{
		users:     make(map[string]*store.User),
		calendars: make(map[string]*store.Calendar),
		shares:    make(map[string]map[string]*store.CalendarShare),
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Store wires the memory repositories into a store.Store.
func (m *Memory) Store() *store.Store {
	return &store.Store{
		Users:          users{m},
		Calendars:      calendars{m},
		CalendarShares: shares{m},
	}
}

// tick returns a strictly increasing timestamp so ordering is deterministic.
func (m *Memory) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// AddUser inserts a user and returns it.
func (m *Memory) AddUser(email, name string) *store.User {
	u, _ := users{m}.UpsertProfile(context.Background(), email, name, "")
	return u
}

// AddCalendar inserts a calendar owned by ownerID.
func (m *Memory) AddCalendar(ownerID, googleID, name string, primary bool) *store.Calendar {
	c, _ := calendars{m}.Create(context.Background(), store.Calendar{
		GoogleCalendarID: googleID, Name: name, OwnerID: ownerID, IsPrimary: primary,
	})
	return c
}

type users struct{ m *Memory }

func (r users) UpsertProfile(_ context.Context, email, name, picture string) (*store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("upsert profile: email is required")
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	now := r.m.tick()
	for _, u := range r.m.users {
		if u.Email == email {
			if name != "" {
				u.Name = name
			}
			if picture != "" {
				u.Picture = picture
			}
			u.LastLogin = &now
			u.UpdatedAt = now
			cp := *u
			return &cp, nil
		}
	}
	u := &store.User{ID: uuid.NewString(), Email: email, Name: name, Picture: picture, LastLogin: &now, CreatedAt: now, UpdatedAt: now}
	r.m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r users) GetByID(_ context.Context, id string) (*store.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r users) GetByEmail(_ context.Context, email string) (*store.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type calendars struct{ m *Memory }

func (r calendars) Create(_ context.Context, cal store.Calendar) (*store.Calendar, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.users[cal.OwnerID]; !ok {
		return nil, fmt.Errorf("create calendar: owner %s does not exist", cal.OwnerID)
	}
	if cal.IsPrimary {
		for _, c := range r.m.calendars {
			if c.OwnerID == cal.OwnerID {
				c.IsPrimary = false
			}
		}
	}
	now := r.m.tick()
	cal.ID = uuid.NewString()
	cal.CreatedAt, cal.UpdatedAt = now, now
	stored := cal
	r.m.calendars[cal.ID] = &stored
	return &cal, nil
}

func (r calendars) get(id string) (*store.Calendar, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.calendars[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r calendars) FindByOwner(_ context.Context, ownerID string) (*store.Calendar, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var owned []*store.Calendar
	for _, c := range r.m.calendars {
		if c.OwnerID == ownerID {
			owned = append(owned, c)
		}
	}
	if len(owned) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(owned, func(i, j int) bool {
		if owned[i].IsPrimary != owned[j].IsPrimary {
			return owned[i].IsPrimary
		}
		return owned[i].CreatedAt.Before(owned[j].CreatedAt)
	})
	cp := *owned[0]
	return &cp, nil
}

func (r calendars) GetWithAccess(ctx context.Context, id string) (*store.CalendarAccess, error) {
	cal, err := r.get(id)
	if err != nil {
		return nil, err
	}
	owner, err := users{r.m}.GetByID(ctx, cal.OwnerID)
	if err != nil {
		return nil, err
	}
	list, err := shares{r.m}.ListByCalendar(ctx, id)
	if err != nil {
		return nil, err
	}
	return &store.CalendarAccess{
		Calendar: *cal,
		Owner:    store.Owner{Email: owner.Email, Name: owner.Name},
		Shares:   list,
	}, nil
}

type shares struct{ m *Memory }

func (r shares) Upsert(_ context.Context, calendarID, userID string, role store.Role) (*store.CalendarShare, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.calendars[calendarID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := r.m.users[userID]; !ok {
		return nil, store.ErrNotFound
	}
	byUser := r.m.shares[calendarID]
	if byUser == nil {
		byUser = make(map[string]*store.CalendarShare)
		r.m.shares[calendarID] = byUser
	}
	s, ok := byUser[userID]
	if !ok {
		s = &store.CalendarShare{ID: uuid.NewString(), CalendarID: calendarID, UserID: userID, CreatedAt: r.m.tick()}
		byUser[userID] = s
	}
	s.Role = role
	cp := *s
	return &cp, nil
}

func (r shares) ListByCalendar(_ context.Context, calendarID string) ([]store.CalendarShare, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []store.CalendarShare{}
	for _, s := range r.m.shares[calendarID] {
		cp := *s
		if u, ok := r.m.users[s.UserID]; ok {
			cp.Email, cp.Name = u.Email, u.Name
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r shares) GetRole(_ context.Context, calendarID, userID string) (store.Role, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.shares[calendarID][userID]
	if !ok {
		return "", store.ErrNotFound
	}
	return s.Role, nil
}

func (r shares) Delete(_ context.Context, calendarID, userID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.shares[calendarID][userID]; !ok {
		return store.ErrNotFound
	}
	delete(r.m.shares[calendarID], userID)
	return nil
}
