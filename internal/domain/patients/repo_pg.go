package patients

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

const patientCols = `id, name, age, file_name, hospital_user_id, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.FileName, &p.HospitalUserID, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, age, file_name, hospital_user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Age, p.FileName, p.HospitalUserID).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET name = $2, age = $3, file_name = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Age, p.FileName).Scan(&p.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *repoPG) CountClaims(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM insurance_requests WHERE patient_id = $1`, id).Scan(&n)
	return n, err
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ListItem, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.HospitalUserID != nil {
		args = append(args, *f.HospitalUserID)
		where = append(where, fmt.Sprintf("p.hospital_user_id = $%d", len(args)))
	}
	if s := strings.TrimSpace(f.Name); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("p.name ILIKE $%d", len(args)))
	}
	if f.Age != nil {
		args = append(args, *f.Age)
		where = append(where, fmt.Sprintf("p.age = $%d", len(args)))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients p`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf(`
		SELECT p.id, p.name, p.age, p.file_name, p.hospital_user_id, p.created_at, p.updated_at,
			COUNT(ir.id), MIN(ir.ref_number), BOOL_AND(ir.status = 'DRAFT')
		FROM patients p
		LEFT JOIN insurance_requests ir ON ir.patient_id = p.id
		%s
		GROUP BY p.id
		ORDER BY p.created_at DESC
		LIMIT $%d OFFSET $%d`, whereSQL, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ListItem
	for rows.Next() {
		var (
			it       ListItem
			firstRef *string
			allDraft *bool
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Age, &it.FileName, &it.HospitalUserID, &it.CreatedAt, &it.UpdatedAt,
			&it.ClaimCount, &firstRef, &allDraft); err != nil {
			return nil, 0, err
		}
		if it.ClaimCount == 1 {
			it.SingleClaimRefNumber = firstRef
			it.IsClaimStatusDraft = allDraft != nil && *allDraft
		}
		items = append(items, &it)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Dropdown(ctx context.Context, hospitalUserID uuid.UUID, name string, limit int) ([]Option, error) {
	args := []interface{}{hospitalUserID}
	q := `SELECT id, name FROM patients WHERE hospital_user_id = $1`
	if s := strings.TrimSpace(name); s != "" {
		args = append(args, "%"+s+"%")
		q += ` AND name ILIKE $2`
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
