package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/visibility"
	"github.com/claimdesk/claimdesk/internal/platform/db"
)

type commentRepoPG struct{ pool *pgxpool.Pool }

func NewCommentRepoPG(pool *pgxpool.Pool) CommentRepository { return &commentRepoPG{pool: pool} }

func (r *commentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const commentSelect = `
	SELECT c.id, c.text, c.type, c.file_url, c.insurance_request_id, c.hospital_id,
		c.created_by, c.is_read, c.created_at, u.name
	FROM comments c
	JOIN users u ON u.id = c.created_by`

func (r *commentRepoPG) scanComment(row pgx.Row) (*Comment, error) {
	var (
		c           Comment
		creatorName string
	)
	err := row.Scan(&c.ID, &c.Text, &c.Type, &c.FileURL, &c.InsuranceRequestID, &c.HospitalID,
		&c.CreatedBy, &c.IsRead, &c.CreatedAt, &creatorName)
	if err != nil {
		return nil, err
	}
	c.Creator = &claims.UserRef{ID: c.CreatedBy, Name: creatorName}
	return &c, nil
}

func (r *commentRepoPG) Create(ctx context.Context, c *Comment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO comments (text, type, file_url, insurance_request_id, hospital_id, created_by, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		c.Text, c.Type, c.FileURL, c.InsuranceRequestID, c.HospitalID, c.CreatedBy, c.IsRead,
	).Scan(&c.ID, &c.CreatedAt)
}

func (r *commentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	return r.scanComment(r.conn(ctx).QueryRow(ctx, commentSelect+` WHERE c.id = $1`, id))
}

func (r *commentRepoPG) List(ctx context.Context, scope visibility.CommentScope, after *Comment, limit int) ([]*Comment, error) {
	types := make([]string, len(scope.Types))
	for i, t := range scope.Types {
		types[i] = string(t)
	}
	args := []interface{}{types}
	where := []string{"c.type = ANY($1)"}
	from := commentSelect

	if scope.ClaimID != nil {
		args = append(args, *scope.ClaimID)
		where = append(where, fmt.Sprintf("c.insurance_request_id = $%d", len(args)))
	}
	if scope.HospitalID != nil {
		args = append(args, *scope.HospitalID)
		where = append(where, fmt.Sprintf("c.hospital_id = $%d", len(args)))
	}
	if scope.CreatedBy != nil {
		args = append(args, *scope.CreatedBy)
		where = append(where, fmt.Sprintf("c.created_by = $%d", len(args)))
	}
	if scope.ClaimHospitalUserID != nil {
		from += `
	LEFT JOIN insurance_requests ir ON ir.id = c.insurance_request_id
	LEFT JOIN patients p ON p.id = ir.patient_id`
		args = append(args, *scope.ClaimHospitalUserID)
		where = append(where, fmt.Sprintf("(c.hospital_id = $%d OR p.hospital_user_id = $%d)", len(args), len(args)))
	}
	if after != nil {
		args = append(args, after.CreatedAt, after.ID)
		where = append(where, fmt.Sprintf("(c.created_at, c.id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	args = append(args, limit)
	q := from + " WHERE " + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY c.created_at DESC, c.id DESC LIMIT $%d", len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Comment
	for rows.Next() {
		c, err := r.scanComment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *commentRepoPG) MarkRead(ctx context.Context, f MarkReadFilter) (int, error) {
	var (
		column string
		target uuid.UUID
	)
	switch {
	case f.ClaimID != nil && f.HospitalID == nil:
		column, target = "insurance_request_id", *f.ClaimID
	case f.HospitalID != nil && f.ClaimID == nil:
		column, target = "hospital_id", *f.HospitalID
	default:
		return 0, errors.New("mark read needs exactly one thread")
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE comments SET is_read = TRUE
		WHERE `+column+` = $1 AND created_by <> $2 AND NOT is_read`, target, f.Reader)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *commentRepoPG) HospitalThreads(ctx context.Context, reader uuid.UUID) ([]*HospitalThread, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT t.id, t.text, t.type, t.file_url, t.insurance_request_id, t.hospital_id,
			t.created_by, t.is_read, t.created_at, t.creator_name,
			COALESCE(h.hospital_name, h.name), t.unread
		FROM (
			SELECT DISTINCT ON (c.hospital_id) c.*, u.name AS creator_name,
				COUNT(*) FILTER (WHERE NOT c.is_read AND c.created_by <> $1)
					OVER (PARTITION BY c.hospital_id) AS unread
			FROM comments c
			JOIN users u ON u.id = c.created_by
			WHERE c.type = $2 AND c.hospital_id IS NOT NULL
			ORDER BY c.hospital_id, c.created_at DESC, c.id DESC
		) t
		JOIN users h ON h.id = t.hospital_id
		ORDER BY t.created_at DESC, t.id DESC`, reader, string(visibility.CommentHospitalNote))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HospitalThread
	for rows.Next() {
		var (
			c           Comment
			creatorName string
			th          HospitalThread
		)
		err := rows.Scan(&c.ID, &c.Text, &c.Type, &c.FileURL, &c.InsuranceRequestID, &c.HospitalID,
			&c.CreatedBy, &c.IsRead, &c.CreatedAt, &creatorName,
			&th.HospitalName, &th.UnreadCount)
		if err != nil {
			return nil, err
		}
		c.Creator = &claims.UserRef{ID: c.CreatedBy, Name: creatorName}
		th.HospitalID = *c.HospitalID
		th.LastComment = &c
		out = append(out, &th)
	}
	return out, rows.Err()
}
