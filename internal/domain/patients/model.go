package patients

import (
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Age            int       `db:"age" json:"age"`
	FileName       *string   `db:"file_name" json:"fileName,omitempty"`
	HospitalUserID uuid.UUID `db:"hospital_user_id" json:"hospitalUserId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// ListItem is a patient row with a summary of its claims.
type ListItem struct {
	Patient
	ClaimCount           int     `json:"claimCount"`
	SingleClaimRefNumber *string `json:"singleClaimRefNumber"`
	IsClaimStatusDraft   bool    `json:"isClaimStatusDraft"`
}

// Option is the id/name pair used by pickers.
type Option struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type CreateInput struct {
	Name     string  `json:"name" validate:"required,min=3,max=255"`
	Age      int     `json:"age" validate:"min=0,max=150"`
	FileName *string `json:"fileName" validate:"omitempty,max=512"`
}

// UpdateInput carries the fields a patient edit may change. Nil fields are
// left untouched.
type UpdateInput struct {
	Name     *string `json:"name" validate:"omitempty,min=3,max=255"`
	Age      *int    `json:"age" validate:"omitempty,min=0,max=150"`
	FileName *string `json:"fileName" validate:"omitempty,max=512"`
}

// ListFilter narrows patient listings. HospitalUserID is set from the
// actor's scope, or by an administrator's explicit filter.
type ListFilter struct {
	HospitalUserID *uuid.UUID
	Name           string
	Age            *int
}
