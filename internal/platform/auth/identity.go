package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
)

// Role is the coarse actor role carried by every authenticated request.
type Role string

const (
	RoleSuperAdmin      Role = "SUPER_ADMIN"
	RoleAdmin           Role = "ADMIN"
	RoleHospital        Role = "HOSPITAL"
	RoleHospitalManager Role = "HOSPITAL_MANAGER"
)

var validRoles = map[Role]bool{
	RoleSuperAdmin: true, RoleAdmin: true, RoleHospital: true, RoleHospitalManager: true,
}

func (r Role) Valid() bool { return validRoles[r] }

// IsAdmin reports whether the role sees every hospital.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Actor is the authenticated identity as supplied by the identity provider.
// HospitalID is only meaningful for HOSPITAL_MANAGER actors.
type Actor struct {
	ID         uuid.UUID  `json:"id"`
	Role       Role       `json:"role"`
	Name       string     `json:"name"`
	HospitalID *uuid.UUID `json:"hospital_id,omitempty"`
}

// Scope is the {role, actingUserId, hospitalScopeId} triple every read and
// write is filtered by. A nil HospitalScopeID means every hospital.
type Scope struct {
	Role            Role
	ActingUserID    uuid.UUID
	HospitalScopeID *uuid.UUID
}

// AllHospitals reports whether the scope is unrestricted.
func (s Scope) AllHospitals() bool { return s.HospitalScopeID == nil }

// Covers reports whether a record owned by hospitalUserID is inside the scope.
func (s Scope) Covers(hospitalUserID uuid.UUID) bool {
	return s.HospitalScopeID == nil || *s.HospitalScopeID == hospitalUserID
}

// ResolveScope derives the visibility scope for an actor. A hospital sees
// its own records, a manager sees the hospital it is bound to, and
// administrators see everything.
func ResolveScope(a Actor) (Scope, error) {
	s := Scope{Role: a.Role, ActingUserID: a.ID}
	switch a.Role {
	case RoleHospital:
		id := a.ID
		s.HospitalScopeID = &id
	case RoleHospitalManager:
		if a.HospitalID == nil || *a.HospitalID == uuid.Nil {
			return Scope{}, apperror.Forbidden("assign a hospital first for role %s", a.Role)
		}
		id := *a.HospitalID
		s.HospitalScopeID = &id
	case RoleAdmin, RoleSuperAdmin:
	default:
		return Scope{}, apperror.Forbidden("unknown role %q", a.Role)
	}
	return s, nil
}

const ActorKey contextKey = "actor"

// WithActor binds the actor to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ActorKey, a)
}

// ActorFromContext returns the actor bound by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ActorKey).(Actor)
	return a, ok
}

// UserIDFromContext returns the acting user id as a string, or "" when the
// request is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	a, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return a.ID.String()
}
