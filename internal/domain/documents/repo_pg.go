package documents

import (
	"context"
	"fmt"
	"strings"

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

const docCols = `id, file_name, type, remark, uploaded_by, insurance_request_id, enhancement_id, query_id, created_at, updated_at`

func (r *repoPG) scanDocument(row pgx.Row) (*Document, error) {
	var (
		d           Document
		claimID     uuid.UUID
		enhancement *uuid.UUID
		query       *uuid.UUID
	)
	if err := row.Scan(&d.ID, &d.FileName, &d.Type, &d.Remark, &d.UploadedBy,
		&claimID, &enhancement, &query, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	o, err := OwnerFromColumns(claimID, enhancement, query)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", d.ID, err)
	}
	d.setOwner(o)
	return &d, nil
}

// CreateMany writes the batch with one multi-row INSERT and counts the
// returned rows.
func (r *repoPG) CreateMany(ctx context.Context, docs []*Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	const perRow = 8
	values := make([]string, 0, len(docs))
	args := make([]interface{}, 0, len(docs)*perRow)
	for i, d := range docs {
		d.ID = uuid.New()
		o := d.Owner()
		n := i * perRow
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8))
		args = append(args, d.ID, d.FileName, string(d.Type), d.Remark, d.UploadedBy,
			o.ClaimID(), o.EnhancementID(), o.QueryID())
	}

	rows, err := r.conn(ctx).Query(ctx, `
		INSERT INTO documents (id, file_name, type, remark, uploaded_by, insurance_request_id, enhancement_id, query_id)
		VALUES `+strings.Join(values, ",")+`
		RETURNING id, created_at, updated_at`, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	created := 0
	for rows.Next() {
		var id uuid.UUID
		var d Document
		if err := rows.Scan(&id, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return created, err
		}
		if doc, ok := byID[id]; ok {
			doc.CreatedAt, doc.UpdatedAt = d.CreatedAt, d.UpdatedAt
			created++
		}
	}
	return created, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+docCols+` FROM documents WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, d *Document) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE documents SET file_name = $2, type = $3, remark = $4, uploaded_by = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FileName, string(d.Type), d.Remark, d.UploadedBy).Scan(&d.UpdatedAt)
}

func (r *repoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+docCols+` FROM documents WHERE insurance_request_id = $1 ORDER BY created_at ASC, id ASC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
