package users

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

// DropdownLimit caps picker results.
const DropdownLimit = 20

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStore(err, "user")
	}
	return u, nil
}

// FirstSuperAdmin is the fallback recipient for unassigned intake.
func (s *Service) FirstSuperAdmin(ctx context.Context) (*User, error) {
	u, err := s.repo.FirstByRole(ctx, auth.RoleSuperAdmin)
	if err != nil {
		return nil, apperror.FromStore(err, "user")
	}
	return u, nil
}

// Dropdown lists id/name pairs. Hospital roles may only look up staff, so
// they cannot enumerate other hospitals.
func (s *Service) Dropdown(ctx context.Context, actor auth.Actor, f DropdownFilter) ([]Option, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, apperror.InvalidState("role", "invalid role: %s", f.Role)
	}
	if !actor.Role.IsAdmin() && (f.Role == auth.RoleHospital || f.Role == auth.RoleHospitalManager) {
		return nil, apperror.Forbidden("role %s cannot list %s users", actor.Role, f.Role)
	}
	if !actor.Role.IsAdmin() && f.Role == "" {
		f.Role = auth.RoleAdmin
	}
	opts, err := s.repo.Dropdown(ctx, f, DropdownLimit)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = []Option{}
	}
	return opts, nil
}

// List pages through the directory for administrators.
func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*User, int, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, apperror.InvalidState("role", "invalid role: %s", f.Role)
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*User{}
	}
	return items, total, nil
}

// Update edits a user's profile. A hospitalId binds a hospital manager to
// the hospital account it works for; no other role carries one.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*User, error) {
	u, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperror.InvalidState("name", "name must not be empty")
		}
		u.Name = name
	}
	if in.HospitalName != nil {
		u.HospitalName = in.HospitalName
	}
	if in.Address != nil {
		u.Address = in.Address
	}
	if in.HospitalID != nil {
		if u.Role != auth.RoleHospitalManager {
			return nil, apperror.InvalidState("hospitalId", "only %s users are bound to a hospital", auth.RoleHospitalManager)
		}
		h, err := s.repo.GetByID(ctx, *in.HospitalID)
		if err != nil {
			if apperror.Is(apperror.FromStore(err, "user"), apperror.KindNotFound) {
				return nil, apperror.InvalidReference("hospital", *in.HospitalID)
			}
			return nil, err
		}
		if h.Role != auth.RoleHospital {
			return nil, apperror.InvalidReference("hospital", *in.HospitalID)
		}
		u.HospitalID = in.HospitalID
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, apperror.FromStore(err, "user")
	}
	return u, nil
}

// Delete removes a user that no longer owns any claim history.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*User, error) {
	if id == actor.ID {
		return nil, apperror.InvalidState("id", "cannot delete your own account")
	}
	u, err := s.manageable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		err = apperror.FromStore(err, "user")
		if apperror.Is(err, apperror.KindInvalidReference) {
			return nil, apperror.InvalidState("id", "user %s still owns claim records", id)
		}
		return nil, err
	}
	return u, nil
}

// manageable loads the target of an administrative edit. Only a super
// admin may change another super admin.
func (s *Service) manageable(ctx context.Context, actor auth.Actor, id uuid.UUID) (*User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == auth.RoleSuperAdmin && actor.Role != auth.RoleSuperAdmin {
		return nil, apperror.Forbidden("role %s cannot manage %s users", actor.Role, auth.RoleSuperAdmin)
	}
	return u, nil
}
