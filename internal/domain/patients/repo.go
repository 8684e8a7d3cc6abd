package patients

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*ListItem, int, error)
	Dropdown(ctx context.Context, hospitalUserID uuid.UUID, name string, limit int) ([]Option, error)
	CountClaims(ctx context.Context, id uuid.UUID) (int, error)
}
