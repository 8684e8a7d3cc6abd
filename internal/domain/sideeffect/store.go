package sideeffect

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimdesk/claimdesk/internal/platform/db"
	"github.com/claimdesk/claimdesk/internal/platform/notification"
)

// Store persists the rows produced by an event. Implementations pick the
// transaction from the context.
type Store interface {
	InsertActivity(ctx context.Context, userID uuid.UUID, action, targetType string, targetID uuid.UUID) error
	// InsertNotifications writes one unread row per user and returns them.
	InsertNotifications(ctx context.Context, userIDs []uuid.UUID, message string) ([]notification.Message, error)
	InsertSystemComment(ctx context.Context, claimID, createdBy uuid.UUID, text string) error
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (s *storePG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, s.pool)
}

func (s *storePG) InsertActivity(ctx context.Context, userID uuid.UUID, action, targetType string, targetID uuid.UUID) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO activity_logs (user_id, action, target_type, target_id)
		VALUES ($1, $2, $3, $4)`, userID, action, targetType, targetID)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (s *storePG) InsertNotifications(ctx context.Context, userIDs []uuid.UUID, message string) ([]notification.Message, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := []interface{}{message}
	values := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
		values = append(values, fmt.Sprintf("($%d, $1)", len(args)))
	}
	rows, err := s.conn(ctx).Query(ctx, `
		INSERT INTO notifications (user_id, message)
		VALUES `+strings.Join(values, ", ")+`
		RETURNING id, user_id, message, created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("insert notifications: %w", err)
	}
	defer rows.Close()

	out := make([]notification.Message, 0, len(userIDs))
	for rows.Next() {
		var m notification.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(userIDs) {
		return nil, fmt.Errorf("insert notifications: wrote %d of %d", len(out), len(userIDs))
	}
	return out, nil
}

// InsertSystemComment appends a SYSTEM comment to a claim thread. System
// comments are born read.
func (s *storePG) InsertSystemComment(ctx context.Context, claimID, createdBy uuid.UUID, text string) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO comments (text, type, insurance_request_id, created_by, is_read)
		VALUES ($1, 'SYSTEM', $2, $3, TRUE)`, text, claimID, createdBy)
	if err != nil {
		return fmt.Errorf("insert system comment: %w", err)
	}
	return nil
}
