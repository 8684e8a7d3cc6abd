package collab

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/visibility"
)

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	// List returns up to limit comments matching scope, newest first,
	// strictly after the cursor comment when one is given.
	List(ctx context.Context, scope visibility.CommentScope, after *Comment, limit int) ([]*Comment, error)
	MarkRead(ctx context.Context, f MarkReadFilter) (int, error)
	// HospitalThreads returns the newest HOSPITAL_NOTE of every hospital,
	// most recent first, with unread counts as seen by reader.
	HospitalThreads(ctx context.Context, reader uuid.UUID) ([]*HospitalThread, error)
}
