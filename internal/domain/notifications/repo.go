package notifications

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Count(ctx context.Context, userID uuid.UUID, isRead *bool) (int, error)
	List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Notification, error)
	// MarkRead flips the unread rows of userID. A nil ids slice selects all
	// of them.
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error)
}
