package visibility

import (
	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

// CommentType classifies a comment.
type CommentType string

const (
	CommentNote         CommentType = "NOTE"
	CommentQuery        CommentType = "QUERY"
	CommentTPAReply     CommentType = "TPA_REPLY"
	CommentHospitalNote CommentType = "HOSPITAL_NOTE"
	CommentSystem       CommentType = "SYSTEM"
)

func (t CommentType) Valid() bool {
	switch t {
	case CommentNote, CommentQuery, CommentTPAReply, CommentHospitalNote, CommentSystem:
		return true
	}
	return false
}

var (
	claimThreadTypes = []CommentType{CommentNote, CommentQuery, CommentTPAReply, CommentSystem}
	allTypes         = []CommentType{CommentNote, CommentQuery, CommentTPAReply, CommentHospitalNote, CommentSystem}
)

// AllowedCommentTypes is the type allow-list for a role.
func AllowedCommentTypes(r auth.Role) []CommentType {
	switch r {
	case auth.RoleHospital:
		return claimThreadTypes
	case auth.RoleHospitalManager, auth.RoleAdmin, auth.RoleSuperAdmin:
		return allTypes
	}
	return nil
}

// CommentRequest is the caller-supplied comment filter.
type CommentRequest struct {
	InsuranceRequestID *uuid.UUID
	HospitalID         *uuid.UUID
	Type               CommentType
	CreatedBy          *uuid.UUID
}

// CommentScope is the effective comment filter after the actor's scope has
// been applied. At most one of ClaimID and HospitalID is set. When
// ClaimHospitalUserID is set, claim-thread comments are limited to claims of
// that hospital.
type CommentScope struct {
	ClaimID             *uuid.UUID
	HospitalID          *uuid.UUID
	ClaimHospitalUserID *uuid.UUID
	Types               []CommentType
	CreatedBy           *uuid.UUID
}

// ForComments validates req against the actor's scope. Filters that would
// widen the scope fail rather than being dropped.
func ForComments(s auth.Scope, req CommentRequest) (CommentScope, error) {
	if req.InsuranceRequestID != nil && req.HospitalID != nil {
		return CommentScope{}, apperror.InvalidState("hospitalId", "filter by insuranceRequestId or hospitalId, not both")
	}
	if req.Type != "" && !req.Type.Valid() {
		return CommentScope{}, apperror.InvalidState("type", "invalid comment type: %s", req.Type)
	}

	out := CommentScope{
		ClaimID:    req.InsuranceRequestID,
		HospitalID: req.HospitalID,
		CreatedBy:  req.CreatedBy,
	}

	switch s.Role {
	case auth.RoleHospital:
		if req.HospitalID != nil {
			return CommentScope{}, apperror.Forbidden("role %s cannot list hospital manager comments", s.Role)
		}
		if req.InsuranceRequestID == nil {
			return CommentScope{}, apperror.InvalidState("insuranceRequestId", "insuranceRequestId is required for role %s", s.Role)
		}
		out.ClaimHospitalUserID = s.HospitalScopeID
	case auth.RoleHospitalManager:
		if s.HospitalScopeID == nil {
			return CommentScope{}, apperror.Forbidden("assign a hospital first for role %s", s.Role)
		}
		if req.HospitalID != nil && *req.HospitalID != *s.HospitalScopeID {
			return CommentScope{}, apperror.Forbidden("hospital %s is outside your scope", *req.HospitalID)
		}
		if req.InsuranceRequestID == nil {
			out.HospitalID = s.HospitalScopeID
		}
		out.ClaimHospitalUserID = s.HospitalScopeID
	case auth.RoleAdmin, auth.RoleSuperAdmin:
	default:
		return CommentScope{}, apperror.Forbidden("unknown role %q", s.Role)
	}

	allowed := AllowedCommentTypes(s.Role)
	if req.Type != "" {
		if !containsType(allowed, req.Type) {
			return CommentScope{}, apperror.Forbidden("role %s cannot list %s comments", s.Role, req.Type)
		}
		out.Types = []CommentType{req.Type}
	} else {
		out.Types = allowed
	}
	switch {
	case out.ClaimID != nil:
		if req.Type == CommentHospitalNote {
			return CommentScope{}, apperror.InvalidState("type", "claim threads do not hold %s comments", CommentHospitalNote)
		}
		out.Types = withoutType(out.Types, CommentHospitalNote)
	case out.HospitalID != nil:
		if req.Type != "" && req.Type != CommentHospitalNote {
			return CommentScope{}, apperror.InvalidState("type", "hospital threads only hold %s comments", CommentHospitalNote)
		}
		out.Types = []CommentType{CommentHospitalNote}
	}
	return out, nil
}

func containsType(ts []CommentType, t CommentType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func withoutType(ts []CommentType, drop CommentType) []CommentType {
	out := make([]CommentType, 0, len(ts))
	for _, t := range ts {
		if t != drop {
			out = append(out, t)
		}
	}
	return out
}
