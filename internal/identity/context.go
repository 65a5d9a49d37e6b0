package identity

import (
	"context"
	"strings"
)

// Role identifies which kind of principal issued a request.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalizes a role claim.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// Caller is the authenticated principal supplied by the identity provider.
type Caller struct {
	ID   string
	Role Role
}

// Is reports whether the caller is the given principal.
func (c Caller) Is(role Role, id string) bool {
	return c.Role == role && c.ID != "" && c.ID == id
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type ctxKey string

const callerKey ctxKey = "clinic.caller"

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext extracts the caller if present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok && caller.ID != "" && caller.Role.Valid()
}

// CanManageSchedule reports whether the caller may edit a doctor's slots.
func (c Caller) CanManageSchedule(doctorID string) bool {
	return c.IsAdmin() || c.Is(RoleDoctor, doctorID)
}
