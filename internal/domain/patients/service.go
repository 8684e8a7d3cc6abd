package patients

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

// Create registers a patient under the actor's hospital.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Patient, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if scope.AllHospitals() {
		return nil, apperror.Forbidden("role %s cannot register patients", actor.Role)
	}
	name := strings.TrimSpace(in.Name)
	if len(name) < 3 {
		return nil, apperror.InvalidState("name", "name must be at least 3 characters")
	}
	if in.Age < 0 {
		return nil, apperror.InvalidState("age", "age must not be negative")
	}
	p := &Patient{
		Name:           name,
		Age:            in.Age,
		FileName:       in.FileName,
		HospitalUserID: *scope.HospitalScopeID,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, apperror.FromStore(err, "patient")
	}
	return p, nil
}

// Get returns a patient inside the actor's scope.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.FromStore(err, "patient")
	}
	if !scope.Covers(p.HospitalUserID) {
		return nil, apperror.Forbidden("patient %s is outside your hospital scope", id)
	}
	return p, nil
}

// List pages through the patients the actor can see. Hospital roles are
// pinned to their own hospital; an explicit hospital filter naming another
// hospital is rejected.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter, limit, offset int) ([]*ListItem, int, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, 0, err
	}
	if !scope.AllHospitals() {
		if f.HospitalUserID != nil && *f.HospitalUserID != *scope.HospitalScopeID {
			return nil, 0, apperror.Forbidden("hospital %s is outside your scope", *f.HospitalUserID)
		}
		f.HospitalUserID = scope.HospitalScopeID
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*ListItem{}
	}
	return items, total, nil
}

// Dropdown lists patients of one hospital by name. Administrators must name
// the hospital.
func (s *Service) Dropdown(ctx context.Context, actor auth.Actor, hospitalID *uuid.UUID, name string) ([]Option, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	target := scope.HospitalScopeID
	if scope.AllHospitals() {
		if hospitalID == nil {
			return nil, apperror.InvalidState("hospitalId", "hospitalId is required for role %s", actor.Role)
		}
		target = hospitalID
	} else if hospitalID != nil && *hospitalID != *target {
		return nil, apperror.Forbidden("hospital %s is outside your scope", *hospitalID)
	}
	opts, err := s.repo.Dropdown(ctx, *target, name, DropdownLimit)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = []Option{}
	}
	return opts, nil
}

// Update edits a patient inside the actor's scope. The owning hospital never
// changes.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in UpdateInput) (*Patient, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len(name) < 3 {
			return nil, apperror.InvalidState("name", "name must be at least 3 characters")
		}
		p.Name = name
	}
	if in.Age != nil {
		if *in.Age < 0 {
			return nil, apperror.InvalidState("age", "age must not be negative")
		}
		p.Age = *in.Age
	}
	if in.FileName != nil {
		p.FileName = in.FileName
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, apperror.FromStore(err, "patient")
	}
	return p, nil
}

// Delete removes a patient that has no claims.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.CountClaims(ctx, id)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apperror.InvalidState("id", "Cannot delete patient with existing claims")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, apperror.FromStore(err, "patient")
	}
	return p, nil
}

// OwnerHospitalID resolves the hospital user owning a patient. An unknown
// patient is an InvalidReference.
func (s *Service) OwnerHospitalID(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	p, err := s.repo.GetByID(ctx, patientID)
	if err != nil {
		if apperror.Is(apperror.FromStore(err, "patient"), apperror.KindNotFound) {
			return uuid.Nil, apperror.InvalidReference("patient", patientID)
		}
		return uuid.Nil, err
	}
	return p.HospitalUserID, nil
}

// Exists reports whether a patient id resolves.
func (s *Service) Exists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	_, err := s.OwnerHospitalID(ctx, patientID)
	if apperror.Is(err, apperror.KindInvalidReference) {
		return false, nil
	}
	return err == nil, err
}
