package documents

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies an uploaded document.
type Type string

const (
	TypeClinicPaper      Type = "CLINIC_PAPER"
	TypeICP              Type = "ICP"
	TypeBill             Type = "BILL"
	TypeDischargeSummary Type = "DISCHARGE_SUMMARY"
	TypeLabReport        Type = "LAB_REPORT"
	TypePrescription     Type = "PRESCRIPTION"
	TypeIDProof          Type = "ID_PROOF"
	TypePolicyCopy       Type = "POLICY_COPY"
	TypeOther            Type = "OTHER"
)

var validTypes = map[Type]bool{
	TypeClinicPaper: true, TypeICP: true, TypeBill: true, TypeDischargeSummary: true,
	TypeLabReport:   true, TypePrescription: true, TypeIDProof: true, TypePolicyCopy: true,
	TypeOther:       true,
}

func (t Type) Valid() bool { return validTypes[t] }

// Document references an uploaded file by storage key. The parent id
// fields mirror Owner for serialisation.
type Document struct {
	ID                 uuid.UUID  `json:"id"`
	FileName           string     `json:"fileName"`
	Type               Type       `json:"type"`
	Remark             *string    `json:"remark,omitempty"`
	UploadedBy         uuid.UUID  `json:"uploadedBy"`
	InsuranceRequestID uuid.UUID  `json:"insuranceRequestId"`
	EnhancementID      *uuid.UUID `json:"enhancementId,omitempty"`
	QueryID            *uuid.UUID `json:"queryId,omitempty"`
	URL                string     `json:"url,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`

	owner Owner
}

func (d *Document) Owner() Owner { return d.owner }

func (d *Document) setOwner(o Owner) {
	d.owner = o
	d.InsuranceRequestID = o.ClaimID()
	d.EnhancementID = o.EnhancementID()
	d.QueryID = o.QueryID()
}

// Input is one entry of a document batch. Entries without an id are new
// attachments; entries with an id edit an existing document in place.
type Input struct {
	ID       *uuid.UUID `json:"id"`
	FileName string     `json:"fileName" validate:"required,max=512"`
	Type     Type       `json:"type" validate:"required"`
	Remark   *string    `json:"remark"`
}

// Result is the outcome of applying a batch.
type Result struct {
	Created []*Document
	Updated []*Document
}

// All returns created then updated documents.
func (r *Result) All() []*Document {
	out := make([]*Document, 0, len(r.Created)+len(r.Updated))
	out = append(out, r.Created...)
	return append(out, r.Updated...)
}
