package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

// User is a directory entry. Credentials live with the identity provider.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	Role         auth.Role  `db:"role" json:"role"`
	HospitalName *string    `db:"hospital_name" json:"hospitalName,omitempty"`
	Address      *string    `db:"address" json:"address,omitempty"`
	HospitalID   *uuid.UUID `db:"hospital_id" json:"hospitalId,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// DisplayName is the hospital name for hospital accounts, the person's name
// otherwise.
func (u *User) DisplayName() string {
	if u.Role == auth.RoleHospital && u.HospitalName != nil && *u.HospitalName != "" {
		return *u.HospitalName
	}
	return u.Name
}

// Option is the id/name pair used by pickers.
type Option struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ListFilter narrows the admin listing. Name and Email match substrings.
type ListFilter struct {
	Name  string
	Email string
	Role  auth.Role
}

// UpdateInput carries the profile fields an administrator may change.
// Credentials are not editable here, so email and password in a request body
// are ignored.
type UpdateInput struct {
	Name         *string    `json:"name" validate:"omitempty,min=1,max=255"`
	HospitalName *string    `json:"hospitalName" validate:"omitempty,max=255"`
	Address      *string    `json:"address" validate:"omitempty,max=512"`
	HospitalID   *uuid.UUID `json:"hospitalId"`
}

// DropdownFilter narrows the picker list.
type DropdownFilter struct {
	Search string
	Role   auth.Role
}
