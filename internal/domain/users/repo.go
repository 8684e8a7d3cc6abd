package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FirstByRole returns the earliest created user holding role.
	FirstByRole(ctx context.Context, role auth.Role) (*User, error)
	Dropdown(ctx context.Context, f DropdownFilter, limit int) ([]Option, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*User, int, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
}
