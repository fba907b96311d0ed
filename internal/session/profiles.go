package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pechincha/internal/backend"
)

// ProfilesTable is the backend table holding one profile per user.
const ProfilesTable = "profiles"

// ErrProfileNotFound is returned when no profile row exists for an id.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the backend record paired with an authenticated user.
type Profile struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Role      Role          `json:"role"`
	Status    AccountStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ProfileUpdate holds the fields an admin may edit. Nil fields are left untouched.
type ProfileUpdate struct {
	Name   *string
	Status *AccountStatus
}

// Profiles reads and edits rows of the profiles table.
type Profiles struct {
	tables backend.Tables
}

// NewProfiles builds a profiles repository.
func NewProfiles(tables backend.Tables) *Profiles {
	return &Profiles{tables: tables}
}

// Get loads the profile of userID.
func (p *Profiles) Get(ctx context.Context, userID string) (Profile, error) {
	rows, err := p.tables.Select(ctx, backend.Query{
		Table:   ProfilesTable,
		Filters: []backend.Filter{backend.Eq("id", strings.TrimSpace(userID))},
		Limit:   1,
	})
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if len(rows) == 0 {
		return Profile{}, ErrProfileNotFound
	}
	return profileFromRow(rows[0]), nil
}

// ListByRole returns every profile with role, newest first.
func (p *Profiles) ListByRole(ctx context.Context, role Role) ([]Profile, error) {
	rows, err := p.tables.Select(ctx, backend.Query{
		Table:   ProfilesTable,
		Filters: []backend.Filter{backend.EqFold("role", string(role))},
		Order:   []backend.Order{{Column: "created_at", Desc: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]Profile, 0, len(rows))
	for _, row := range rows {
		prof := profileFromRow(row)
		if prof.ID == "" || prof.Role != role {
			continue
		}
		out = append(out, prof)
	}
	return out, nil
}

// Update applies upd to the profile of id and returns the stored result.
func (p *Profiles) Update(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("update profile: empty id")
	}
	changes := backend.Row{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Profile{}, fmt.Errorf("update profile: empty name")
		}
		changes["name"] = name
	}
	if upd.Status != nil {
		changes["status"] = string(NormalizeAccountStatus(string(*upd.Status)))
	}
	if len(changes) == 0 {
		return p.Get(ctx, id)
	}
	rows, err := p.tables.Update(ctx, ProfilesTable, []backend.Filter{backend.Eq("id", id)}, changes)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	if len(rows) == 0 {
		return Profile{}, ErrProfileNotFound
	}
	return profileFromRow(rows[0]), nil
}

func profileFromRow(row backend.Row) Profile {
	prof := Profile{
		ID:     row.String("id"),
		Name:   row.String("name", "full_name", "display_name"),
		Email:  row.String("email"),
		Role:   NormalizeRole(row.String("role")),
		Status: NormalizeAccountStatus(row.String("status")),
	}
	if raw, ok := row.Raw("created_at", "createdAt"); ok {
		if t, ok := backend.ParseTime(raw); ok {
			prof.CreatedAt = t.UTC()
		}
	}
	return prof
}

func backendString(v any) string {
	return backend.AsString(v)
}
