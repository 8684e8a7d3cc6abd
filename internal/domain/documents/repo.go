package documents

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateMany inserts docs and returns how many rows were written.
	CreateMany(ctx context.Context, docs []*Document) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	Update(ctx context.Context, d *Document) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Document, error)
}
