package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimdesk/claimdesk/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const notificationCols = `id, user_id, message, is_read, created_at`

func (r *repoPG) scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt)
	return &n, err
}

func where(userID uuid.UUID, isRead *bool) (string, []interface{}) {
	args := []interface{}{userID}
	clause := "user_id = $1"
	if isRead != nil {
		args = append(args, *isRead)
		clause += fmt.Sprintf(" AND is_read = $%d", len(args))
	}
	return clause, args
}

func (r *repoPG) Count(ctx context.Context, userID uuid.UUID, isRead *bool) (int, error) {
	clause, args := where(userID, isRead)
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+clause, args...).Scan(&n)
	return n, err
}

func (r *repoPG) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Notification, error) {
	clause, args := where(userID, f.IsRead)
	dir := "DESC"
	if f.SortOrder == SortAsc {
		dir = "ASC"
	}
	args = append(args, f.Take, f.Skip)
	q := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at %s, id %s LIMIT $%d OFFSET $%d`,
		notificationCols, clause, dir, dir, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repoPG) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	q := `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`
	args := []interface{}{userID}
	if ids != nil {
		args = append(args, ids)
		q += ` AND id = ANY($2)`
	}
	tag, err := r.conn(ctx).Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
