package claims

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
)

// Status is the lifecycle state of a claim.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusPending     Status = "PENDING"
	StatusSentToTPA   Status = "SENT_TO_TPA"
	StatusQueried     Status = "QUERIED"
	StatusEnhancement Status = "ENHANCEMENT"
	StatusApproved    Status = "APPROVED"
	StatusDenied      Status = "DENIED"
	StatusSettled     Status = "SETTLED"
)

// transitions lists the statuses reachable from each status. DENIED and
// SETTLED are terminal.
var transitions = map[Status][]Status{
	StatusDraft:       {StatusPending},
	StatusPending:     {StatusSentToTPA, StatusQueried, StatusEnhancement, StatusDenied},
	StatusSentToTPA:   {StatusQueried, StatusEnhancement, StatusApproved, StatusDenied},
	StatusQueried:     {StatusSentToTPA, StatusEnhancement, StatusApproved, StatusDenied},
	StatusEnhancement: {StatusSentToTPA, StatusQueried, StatusApproved, StatusDenied},
	StatusApproved:    {StatusEnhancement, StatusSettled},
	StatusDenied:      {},
	StatusSettled:     {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a claim in s may move to next. Staying in
// the same status is not a transition and always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// checkTransition validates a requested status change.
func checkTransition(from, to Status) error {
	if !to.Valid() {
		return apperror.InvalidState("status", "invalid status: %s", to)
	}
	if !from.CanTransition(to) {
		return apperror.InvalidState("status", "cannot change status from %s to %s", from, to)
	}
	return nil
}

// EnhancementStatus is the lifecycle state of an enhancement.
type EnhancementStatus string

const (
	EnhancementPending   EnhancementStatus = "PENDING"
	EnhancementSentToTPA EnhancementStatus = "SENT_TO_TPA"
	EnhancementQueried   EnhancementStatus = "QUERIED"
	EnhancementApproved  EnhancementStatus = "APPROVED"
	EnhancementDenied    EnhancementStatus = "DENIED"
)

var validEnhancementStatuses = map[EnhancementStatus]bool{
	EnhancementPending:  true, EnhancementSentToTPA: true, EnhancementQueried: true,
	EnhancementApproved: true, EnhancementDenied: true,
}

func (s EnhancementStatus) Valid() bool { return validEnhancementStatuses[s] }

// ---------------------------------------------------------------------------
// Reference numbers
// ---------------------------------------------------------------------------

const refPrefix = "CLM-"

// FormatRef renders a sequence value as a claim reference number.
func FormatRef(n int64) string {
	return fmt.Sprintf("%s%05d", refPrefix, n)
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// PatientRef is the patient summary embedded in claim reads.
type PatientRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// UserRef is the user summary embedded in claim reads.
type UserRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Claim is an insurance request. HospitalUserID is the owner of the
// patient and drives visibility; it is never serialised.
type Claim struct {
	ID                    uuid.UUID   `db:"id" json:"id"`
	RefNumber             string      `db:"ref_number" json:"refNumber"`
	PatientID             uuid.UUID   `db:"patient_id" json:"patientId"`
	Status                Status      `db:"status" json:"status"`
	Description           *string     `db:"description" json:"description,omitempty"`
	IsPreAuth             bool        `db:"is_pre_auth" json:"isPreAuth"`
	DoctorName            *string     `db:"doctor_name" json:"doctorName"`
	TPAName               *string     `db:"tpa_name" json:"tpaName"`
	InsuranceCompany      *string     `db:"insurance_company" json:"insuranceCompany"`
	AssignedTo            *uuid.UUID  `db:"assigned_to" json:"assignedTo"`
	AdditionalNotes       *string     `db:"additional_notes" json:"additionalNotes,omitempty"`
	DischargeSummary      *string     `db:"discharge_summary" json:"dischargeSummary,omitempty"`
	SettlementSummary     *string     `db:"settlement_summary" json:"settlementSummary,omitempty"`
	SettlementAmount      *string     `db:"settlement_amount" json:"settlementAmount,omitempty"`
	ActualQuotedAmount    *string     `db:"actual_quoted_amount" json:"actualQuotedAmount,omitempty"`
	TotalBill             *string     `db:"total_bill" json:"totalBill,omitempty"`
	TotalApproval         *string     `db:"total_approval" json:"totalApproval,omitempty"`
	TransactionID         *string     `db:"transaction_id" json:"transactionId,omitempty"`
	TDS                   *string     `db:"tds" json:"tds,omitempty"`
	Deduction             *string     `db:"deduction" json:"deduction,omitempty"`
	SettlementDate        *string     `db:"settlement_date" json:"settlementDate,omitempty"`
	UpdatedSettlementDate *string     `db:"updated_settlement_date" json:"updatedSettlementDate,omitempty"`
	IsBasicClaimUpdate    bool        `db:"is_basic_claim_update" json:"isBasicClaimUpdate"`
	CreatedAt             time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time   `db:"updated_at" json:"updatedAt"`
	Patient               *PatientRef `json:"patient,omitempty"`
	Assignee              *UserRef    `json:"assignee,omitempty"`
	HospitalUserID        uuid.UUID   `json:"-"`
}

// Enhancement requests additional days or coverage on a claim.
type Enhancement struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	InsuranceRequestID uuid.UUID         `db:"insurance_request_id" json:"insuranceRequestId"`
	NumberOfDays       int               `db:"number_of_days" json:"numberOfDays"`
	DoctorName         *string           `db:"doctor_name" json:"doctorName,omitempty"`
	Notes              *string           `db:"notes" json:"notes,omitempty"`
	Status             EnhancementStatus `db:"status" json:"status"`
	DischargeSummary   *string           `db:"discharge_summary" json:"dischargeSummary,omitempty"`
	SettlementSummary  *string           `db:"settlement_summary" json:"settlementSummary,omitempty"`
	CreatedBy          uuid.UUID         `db:"created_by" json:"createdBy"`
	CreatedAt          time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updatedAt"`
}

// Query is a question raised against a claim or one of its enhancements.
type Query struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	InsuranceRequestID uuid.UUID  `db:"insurance_request_id" json:"insuranceRequestId"`
	EnhancementID      *uuid.UUID `db:"enhancement_id" json:"enhancementId,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	ResolvedRemarks    *string    `db:"resolved_remarks" json:"resolvedRemarks,omitempty"`
	IsResolved         bool       `db:"is_resolved" json:"isResolved"`
	CreatedBy          uuid.UUID  `db:"created_by" json:"createdBy"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// Fields is the editable claim payload shared by create and update.
// Nil pointers leave the stored value untouched.
type Fields struct {
	Description           *string    `json:"description"`
	IsPreAuth             *bool      `json:"isPreAuth"`
	DoctorName            *string    `json:"doctorName" validate:"omitempty,max=255"`
	TPAName               *string    `json:"tpaName" validate:"omitempty,max=255"`
	InsuranceCompany      *string    `json:"insuranceCompany" validate:"omitempty,max=255"`
	AssignedTo            *uuid.UUID `json:"assignedTo"`
	Status                *Status    `json:"status"`
	AdditionalNotes       *string    `json:"additionalNotes"`
	DischargeSummary      *string    `json:"dischargeSummary"`
	SettlementSummary     *string    `json:"settlementSummary"`
	SettlementAmount      *string    `json:"settlementAmount" validate:"omitempty,max=64"`
	ActualQuotedAmount    *string    `json:"actualQuotedAmount" validate:"omitempty,max=64"`
	TotalBill             *string    `json:"totalBill" validate:"omitempty,max=64"`
	TotalApproval         *string    `json:"totalApproval" validate:"omitempty,max=64"`
	TransactionID         *string    `json:"transactionId" validate:"omitempty,max=128"`
	TDS                   *string    `json:"tds" validate:"omitempty,max=64"`
	Deduction             *string    `json:"deduction" validate:"omitempty,max=64"`
	SettlementDate        *string    `json:"settlementDate" validate:"omitempty,max=32"`
	UpdatedSettlementDate *string    `json:"updatedSettlementDate" validate:"omitempty,max=32"`
	IsBasicClaimUpdate    *bool      `json:"isBasicClaimUpdate"`
}

// apply copies every set field onto c. Status and assignee are handled by
// the caller because they carry their own rules.
func (f *Fields) apply(c *Claim) {
	setStr := func(dst **string, src *string) {
		if src != nil {
			v := *src
			*dst = &v
		}
	}
	setStr(&c.Description, f.Description)
	setStr(&c.DoctorName, f.DoctorName)
	setStr(&c.TPAName, f.TPAName)
	setStr(&c.InsuranceCompany, f.InsuranceCompany)
	setStr(&c.AdditionalNotes, f.AdditionalNotes)
	setStr(&c.DischargeSummary, f.DischargeSummary)
	setStr(&c.SettlementSummary, f.SettlementSummary)
	setStr(&c.SettlementAmount, f.SettlementAmount)
	setStr(&c.ActualQuotedAmount, f.ActualQuotedAmount)
	setStr(&c.TotalBill, f.TotalBill)
	setStr(&c.TotalApproval, f.TotalApproval)
	setStr(&c.TransactionID, f.TransactionID)
	setStr(&c.TDS, f.TDS)
	setStr(&c.Deduction, f.Deduction)
	setStr(&c.SettlementDate, f.SettlementDate)
	setStr(&c.UpdatedSettlementDate, f.UpdatedSettlementDate)
	if f.IsPreAuth != nil {
		c.IsPreAuth = *f.IsPreAuth
	}
	if f.IsBasicClaimUpdate != nil {
		c.IsBasicClaimUpdate = *f.IsBasicClaimUpdate
	}
}

type CreateInput struct {
	PatientID uuid.UUID `json:"patientId" validate:"notnil_uuid"`
	Fields
	Documents []documents.Input `json:"documents" validate:"required,min=1,dive"`
}

type UpdateInput struct {
	PatientID *uuid.UUID `json:"patientId"`
	Fields
	Documents []documents.Input `json:"documents" validate:"omitempty,dive"`
}

type AssignInput struct {
	AssignedTo uuid.UUID `json:"assignedTo" validate:"notnil_uuid"`
}

// ListFilter narrows claim listings. String filters match case-insensitively
// anywhere in the value except RefNumber, which matches a prefix.
type ListFilter struct {
	RefNumber        string
	DoctorName       string
	InsuranceCompany string
	TPAName          string
	AssigneeName     string
	PatientName      string
	PatientID        *uuid.UUID
	Statuses         []Status
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
}

// ---------------------------------------------------------------------------
// Outputs
// ---------------------------------------------------------------------------

// Mutation is the summary returned by create and update.
type Mutation struct {
	ID               uuid.UUID             `json:"id"`
	RefNumber        string                `json:"refNumber"`
	DoctorName       *string               `json:"doctorName"`
	TPAName          *string               `json:"tpaName"`
	InsuranceCompany *string               `json:"insuranceCompany"`
	Status           Status                `json:"status"`
	Documents        []*documents.Document `json:"documents,omitempty"`
}

func newMutation(c *Claim, docs []*documents.Document) *Mutation {
	return &Mutation{
		ID:               c.ID,
		RefNumber:        c.RefNumber,
		DoctorName:       c.DoctorName,
		TPAName:          c.TPAName,
		InsuranceCompany: c.InsuranceCompany,
		Status:           c.Status,
		Documents:        docs,
	}
}

// Assignment is the result of assigning a claim.
type Assignment struct {
	ID         uuid.UUID `json:"id"`
	RefNumber  string    `json:"refNumber"`
	AssignedTo uuid.UUID `json:"assignedTo"`
	Changed    bool      `json:"changed"`
}

// QueryDetail is a query with its own documents.
type QueryDetail struct {
	*Query
	Documents []*documents.Document `json:"documents"`
}

// EnhancementDetail is an enhancement with the documents it owns directly
// and the queries raised against it.
type EnhancementDetail struct {
	*Enhancement
	Documents []*documents.Document `json:"documents"`
	Queries   []*QueryDetail        `json:"queries"`
}

// Detail is the full claim graph. Each document appears exactly once, under
// its most specific owner.
type Detail struct {
	*Claim
	Documents    []*documents.Document `json:"documents"`
	Queries      []*QueryDetail        `json:"queries"`
	Enhancements []*EnhancementDetail  `json:"enhancements"`
}
