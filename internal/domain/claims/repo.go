package claims

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/visibility"
)

type ClaimRepository interface {
	// NextRef allocates the next reference number. Values are never reused.
	NextRef(ctx context.Context) (string, error)
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByRef(ctx context.Context, ref string) (*Claim, error)
	// GetByRefForUpdate reads the claim and locks its row until the
	// surrounding transaction ends.
	GetByRefForUpdate(ctx context.Context, ref string) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, scope visibility.ClaimScope, f ListFilter, limit, offset int) ([]*Claim, int, error)
}

type EnhancementRepository interface {
	Create(ctx context.Context, e *Enhancement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Enhancement, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Enhancement, error)
	Update(ctx context.Context, e *Enhancement) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Enhancement, error)
}

type QueryRepository interface {
	Create(ctx context.Context, q *Query) error
	GetByID(ctx context.Context, id uuid.UUID) (*Query, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Query, error)
	Update(ctx context.Context, q *Query) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Query, error)
	ListByEnhancement(ctx context.Context, enhancementID uuid.UUID) ([]*Query, error)
}
