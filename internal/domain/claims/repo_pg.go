package claims

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/claimdesk/claimdesk/internal/domain/visibility"
	"github.com/claimdesk/claimdesk/internal/platform/db"
)

// -- Claim --

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const claimSelect = `
	SELECT ir.id, ir.ref_number, ir.patient_id, ir.status, ir.description, ir.is_pre_auth,
		ir.doctor_name, ir.tpa_name, ir.insurance_company, ir.assigned_to,
		ir.additional_notes, ir.discharge_summary, ir.settlement_summary,
		ir.settlement_amount, ir.actual_quoted_amount, ir.total_bill, ir.total_approval,
		ir.transaction_id, ir.tds, ir.deduction, ir.settlement_date, ir.updated_settlement_date,
		ir.is_basic_claim_update, ir.created_at, ir.updated_at,
		p.hospital_user_id, p.name, u.name
	FROM insurance_requests ir
	JOIN patients p ON p.id = ir.patient_id
	LEFT JOIN users u ON u.id = ir.assigned_to`

func (r *claimRepoPG) scanClaim(row pgx.Row) (*Claim, error) {
	var (
		c            Claim
		patientName  string
		assigneeName *string
	)
	err := row.Scan(&c.ID, &c.RefNumber, &c.PatientID, &c.Status, &c.Description, &c.IsPreAuth,
		&c.DoctorName, &c.TPAName, &c.InsuranceCompany, &c.AssignedTo,
		&c.AdditionalNotes, &c.DischargeSummary, &c.SettlementSummary,
		&c.SettlementAmount, &c.ActualQuotedAmount, &c.TotalBill, &c.TotalApproval,
		&c.TransactionID, &c.TDS, &c.Deduction, &c.SettlementDate, &c.UpdatedSettlementDate,
		&c.IsBasicClaimUpdate, &c.CreatedAt, &c.UpdatedAt,
		&c.HospitalUserID, &patientName, &assigneeName)
	if err != nil {
		return nil, err
	}
	c.Patient = &PatientRef{ID: c.PatientID, Name: patientName}
	if c.AssignedTo != nil && assigneeName != nil {
		c.Assignee = &UserRef{ID: *c.AssignedTo, Name: *assigneeName}
	}
	return &c, nil
}

func (r *claimRepoPG) NextRef(ctx context.Context) (string, error) {
	var n int64
	if err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('claim_ref_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("allocate reference number: %w", err)
	}
	return FormatRef(n), nil
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insurance_requests (id, ref_number, patient_id, status, description, is_pre_auth,
			doctor_name, tpa_name, insurance_company, assigned_to,
			additional_notes, discharge_summary, settlement_summary,
			settlement_amount, actual_quoted_amount, total_bill, total_approval,
			transaction_id, tds, deduction, settlement_date, updated_settlement_date, is_basic_claim_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING created_at, updated_at`,
		c.ID, c.RefNumber, c.PatientID, string(c.Status), c.Description, c.IsPreAuth,
		c.DoctorName, c.TPAName, c.InsuranceCompany, c.AssignedTo,
		c.AdditionalNotes, c.DischargeSummary, c.SettlementSummary,
		c.SettlementAmount, c.ActualQuotedAmount, c.TotalBill, c.TotalApproval,
		c.TransactionID, c.TDS, c.Deduction, c.SettlementDate, c.UpdatedSettlementDate, c.IsBasicClaimUpdate,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.scanClaim(r.conn(ctx).QueryRow(ctx, claimSelect+` WHERE ir.id = $1`, id))
}

func (r *claimRepoPG) GetByRef(ctx context.Context, ref string) (*Claim, error) {
	return r.scanClaim(r.conn(ctx).QueryRow(ctx, claimSelect+` WHERE ir.ref_number = $1`, ref))
}

func (r *claimRepoPG) GetByRefForUpdate(ctx context.Context, ref string) (*Claim, error) {
	return r.scanClaim(r.conn(ctx).QueryRow(ctx, claimSelect+` WHERE ir.ref_number = $1 FOR UPDATE OF ir`, ref))
}

func (r *claimRepoPG) Update(ctx context.Context, c *Claim) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE insurance_requests SET
			patient_id = $2, status = $3, description = $4, is_pre_auth = $5,
			doctor_name = $6, tpa_name = $7, insurance_company = $8, assigned_to = $9,
			additional_notes = $10, discharge_summary = $11, settlement_summary = $12,
			settlement_amount = $13, actual_quoted_amount = $14, total_bill = $15, total_approval = $16,
			transaction_id = $17, tds = $18, deduction = $19, settlement_date = $20,
			updated_settlement_date = $21, is_basic_claim_update = $22, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.PatientID, string(c.Status), c.Description, c.IsPreAuth,
		c.DoctorName, c.TPAName, c.InsuranceCompany, c.AssignedTo,
		c.AdditionalNotes, c.DischargeSummary, c.SettlementSummary,
		c.SettlementAmount, c.ActualQuotedAmount, c.TotalBill, c.TotalApproval,
		c.TransactionID, c.TDS, c.Deduction, c.SettlementDate,
		c.UpdatedSettlementDate, c.IsBasicClaimUpdate,
	).Scan(&c.UpdatedAt)
}

// Delete removes the claim. Enhancements, queries, documents and claim
// comments cascade.
func (r *claimRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM insurance_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *claimRepoPG) List(ctx context.Context, scope visibility.ClaimScope, f ListFilter, limit, offset int) ([]*Claim, int, error) {
	var args []interface{}
	pred, args := scope.Predicate("p.hospital_user_id", args)
	where := []string{pred}

	contains := func(column, value string) {
		if v := strings.TrimSpace(value); v != "" {
			args = append(args, "%"+v+"%")
			where = append(where, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
		}
	}
	if v := strings.TrimSpace(f.RefNumber); v != "" {
		args = append(args, v+"%")
		where = append(where, fmt.Sprintf("ir.ref_number ILIKE $%d", len(args)))
	}
	contains("ir.doctor_name", f.DoctorName)
	contains("ir.insurance_company", f.InsuranceCompany)
	contains("ir.tpa_name", f.TPAName)
	contains("u.name", f.AssigneeName)
	contains("p.name", f.PatientName)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("ir.patient_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ss[i] = string(s)
		}
		args = append(args, ss)
		where = append(where, fmt.Sprintf("ir.status = ANY($%d)", len(args)))
	}
	if f.CreatedFrom != nil {
		args = append(args, *f.CreatedFrom)
		where = append(where, fmt.Sprintf("ir.created_at >= $%d", len(args)))
	}
	if f.CreatedTo != nil {
		args = append(args, *f.CreatedTo)
		where = append(where, fmt.Sprintf("ir.created_at <= $%d", len(args)))
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM insurance_requests ir
		JOIN patients p ON p.id = ir.patient_id
		LEFT JOIN users u ON u.id = ir.assigned_to`+whereSQL, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	q := claimSelect + whereSQL + fmt.Sprintf(` ORDER BY ir.created_at DESC, ir.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Claim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// -- Enhancement --

type enhancementRepoPG struct{ pool *pgxpool.Pool }

func NewEnhancementRepoPG(pool *pgxpool.Pool) EnhancementRepository {
	return &enhancementRepoPG{pool: pool}
}

func (r *enhancementRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const enhancementCols = `id, insurance_request_id, number_of_days, doctor_name, notes, status,
	discharge_summary, settlement_summary, created_by, created_at, updated_at`

func (r *enhancementRepoPG) scanEnhancement(row pgx.Row) (*Enhancement, error) {
	var e Enhancement
	err := row.Scan(&e.ID, &e.InsuranceRequestID, &e.NumberOfDays, &e.DoctorName, &e.Notes, &e.Status,
		&e.DischargeSummary, &e.SettlementSummary, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *enhancementRepoPG) Create(ctx context.Context, e *Enhancement) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO enhancements (id, insurance_request_id, number_of_days, doctor_name, notes, status,
			discharge_summary, settlement_summary, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		e.ID, e.InsuranceRequestID, e.NumberOfDays, e.DoctorName, e.Notes, string(e.Status),
		e.DischargeSummary, e.SettlementSummary, e.CreatedBy).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *enhancementRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Enhancement, error) {
	return r.scanEnhancement(r.conn(ctx).QueryRow(ctx, `SELECT `+enhancementCols+` FROM enhancements WHERE id = $1`, id))
}

func (r *enhancementRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Enhancement, error) {
	return r.scanEnhancement(r.conn(ctx).QueryRow(ctx, `SELECT `+enhancementCols+` FROM enhancements WHERE id = $1 FOR UPDATE`, id))
}

func (r *enhancementRepoPG) Update(ctx context.Context, e *Enhancement) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE enhancements SET number_of_days = $2, doctor_name = $3, notes = $4, status = $5,
			discharge_summary = $6, settlement_summary = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.NumberOfDays, e.DoctorName, e.Notes, string(e.Status),
		e.DischargeSummary, e.SettlementSummary).Scan(&e.UpdatedAt)
}

func (r *enhancementRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Enhancement, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+enhancementCols+` FROM enhancements WHERE insurance_request_id = $1 ORDER BY created_at ASC, id ASC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Enhancement
	for rows.Next() {
		e, err := r.scanEnhancement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// -- Query --

type queryRepoPG struct{ pool *pgxpool.Pool }

func NewQueryRepoPG(pool *pgxpool.Pool) QueryRepository { return &queryRepoPG{pool: pool} }

func (r *queryRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const queryCols = `id, insurance_request_id, enhancement_id, notes, resolved_remarks, is_resolved,
	created_by, created_at, updated_at`

func (r *queryRepoPG) scanQuery(row pgx.Row) (*Query, error) {
	var q Query
	err := row.Scan(&q.ID, &q.InsuranceRequestID, &q.EnhancementID, &q.Notes, &q.ResolvedRemarks, &q.IsResolved,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	return &q, err
}

func (r *queryRepoPG) Create(ctx context.Context, q *Query) error {
	q.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queries (id, insurance_request_id, enhancement_id, notes, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		q.ID, q.InsuranceRequestID, q.EnhancementID, q.Notes, q.CreatedBy).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *queryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Query, error) {
	return r.scanQuery(r.conn(ctx).QueryRow(ctx, `SELECT `+queryCols+` FROM queries WHERE id = $1`, id))
}

func (r *queryRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Query, error) {
	return r.scanQuery(r.conn(ctx).QueryRow(ctx, `SELECT `+queryCols+` FROM queries WHERE id = $1 FOR UPDATE`, id))
}

func (r *queryRepoPG) Update(ctx context.Context, q *Query) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE queries SET notes = $2, resolved_remarks = $3, is_resolved = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		q.ID, q.Notes, q.ResolvedRemarks, q.IsResolved).Scan(&q.UpdatedAt)
}

func (r *queryRepoPG) list(ctx context.Context, where string, arg interface{}) ([]*Query, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+queryCols+` FROM queries WHERE `+where+` = $1 ORDER BY created_at ASC, id ASC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Query
	for rows.Next() {
		q, err := r.scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *queryRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Query, error) {
	return r.list(ctx, "insurance_request_id", claimID)
}

func (r *queryRepoPG) ListByEnhancement(ctx context.Context, enhancementID uuid.UUID) ([]*Query, error) {
	return r.list(ctx, "enhancement_id", enhancementID)
}
