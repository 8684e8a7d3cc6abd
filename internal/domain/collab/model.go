package collab

import (
	"time"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/domain/visibility"
)

// ---------------------------------------------------------------------------
// Enhancements
// ---------------------------------------------------------------------------

// EnhancementCreateInput requests more days on a claim. Status is accepted
// only to reject it: a new enhancement always starts PENDING.
type EnhancementCreateInput struct {
	InsuranceRequestID uuid.UUID                 `json:"insuranceRequestId" validate:"notnil_uuid"`
	NumberOfDays       int                       `json:"numberOfDays"`
	DoctorName         *string                   `json:"doctorName" validate:"omitempty,max=255"`
	Notes              *string                   `json:"notes"`
	Status             *claims.EnhancementStatus `json:"status"`
	DischargeSummary   *string                   `json:"dischargeSummary"`
	SettlementSummary  *string                   `json:"settlementSummary"`
	Documents          []documents.Input         `json:"documents" validate:"omitempty,dive"`
}

type EnhancementUpdateInput struct {
	NumberOfDays      *int                      `json:"numberOfDays"`
	DoctorName        *string                   `json:"doctorName" validate:"omitempty,max=255"`
	Notes             *string                   `json:"notes"`
	Status            *claims.EnhancementStatus `json:"status"`
	DischargeSummary  *string                   `json:"dischargeSummary"`
	SettlementSummary *string                   `json:"settlementSummary"`
	Documents         []documents.Input         `json:"documents" validate:"omitempty,dive"`
}

// EnhancementMutation is the summary returned by enhancement writes.
type EnhancementMutation struct {
	ID           uuid.UUID                `json:"id"`
	RefNumber    string                   `json:"refNumber"`
	NumberOfDays int                      `json:"numberOfDays"`
	Status       claims.EnhancementStatus `json:"status"`
	Notes        *string                  `json:"notes,omitempty"`
	Documents    []*documents.Document    `json:"documents,omitempty"`
}

func newEnhancementMutation(ref string, e *claims.Enhancement, docs []*documents.Document) *EnhancementMutation {
	return &EnhancementMutation{
		ID:           e.ID,
		RefNumber:    ref,
		NumberOfDays: e.NumberOfDays,
		Status:       e.Status,
		Notes:        e.Notes,
		Documents:    docs,
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// QueryCreateInput raises a query. ResolvedRemarks and IsResolved are only
// accepted on update.
type QueryCreateInput struct {
	InsuranceRequestID uuid.UUID         `json:"insuranceRequestId" validate:"notnil_uuid"`
	EnhancementID      *uuid.UUID        `json:"enhancementId"`
	Notes              *string           `json:"notes"`
	ResolvedRemarks    *string           `json:"resolvedRemarks"`
	IsResolved         *bool             `json:"isResolved"`
	Documents          []documents.Input `json:"documents" validate:"omitempty,dive"`
}

type QueryUpdateInput struct {
	Notes           *string           `json:"notes"`
	ResolvedRemarks *string           `json:"resolvedRemarks"`
	IsResolved      *bool             `json:"isResolved"`
	Documents       []documents.Input `json:"documents" validate:"omitempty,dive"`
}

type QueryMutation struct {
	ID            uuid.UUID             `json:"id"`
	RefNumber     string                `json:"refNumber"`
	EnhancementID *uuid.UUID            `json:"enhancementId,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	IsResolved    bool                  `json:"isResolved"`
	Documents     []*documents.Document `json:"documents,omitempty"`
}

func newQueryMutation(ref string, q *claims.Query, docs []*documents.Document) *QueryMutation {
	return &QueryMutation{
		ID:            q.ID,
		RefNumber:     ref,
		EnhancementID: q.EnhancementID,
		Notes:         q.Notes,
		IsResolved:    q.IsResolved,
		Documents:     docs,
	}
}

// ---------------------------------------------------------------------------
// Comments
// ---------------------------------------------------------------------------

// Comment belongs to exactly one thread: a claim or a hospital.
type Comment struct {
	ID                 uuid.UUID              `db:"id" json:"id"`
	Text               string                 `db:"text" json:"text"`
	Type               visibility.CommentType `db:"type" json:"type"`
	FileURL            *string                `db:"file_url" json:"fileUrl,omitempty"`
	InsuranceRequestID *uuid.UUID             `db:"insurance_request_id" json:"insuranceRequestId,omitempty"`
	HospitalID         *uuid.UUID             `db:"hospital_id" json:"hospitalId,omitempty"`
	CreatedBy          uuid.UUID              `db:"created_by" json:"createdBy"`
	IsRead             bool                   `db:"is_read" json:"isRead"`
	CreatedAt          time.Time              `db:"created_at" json:"createdAt"`
	Creator            *claims.UserRef        `json:"creator,omitempty"`
}

type CommentInput struct {
	Text               string                 `json:"text" validate:"required,max=4000"`
	Type               visibility.CommentType `json:"type" validate:"required"`
	InsuranceRequestID *uuid.UUID             `json:"insuranceRequestId"`
	HospitalID         *uuid.UUID             `json:"hospitalId"`
	FileURL            *string                `json:"fileUrl" validate:"omitempty,max=512"`
}

const (
	DefaultCommentTake = 10
	MaxCommentTake     = 50
)

// CommentFilter is a cursor-paginated comment listing request. Cursor is
// the id of the last comment of the previous page.
type CommentFilter struct {
	visibility.CommentRequest
	Cursor *uuid.UUID
	Take   int
}

func (f *CommentFilter) take() int {
	switch {
	case f.Take <= 0:
		return DefaultCommentTake
	case f.Take > MaxCommentTake:
		return MaxCommentTake
	}
	return f.Take
}

// CommentPage is one page of comments, newest first. NextCursor is nil on
// the last page.
type CommentPage struct {
	Data       []*Comment `json:"data"`
	NextCursor *uuid.UUID `json:"nextCursor"`
}

// Count reports how many rows an update touched.
type Count struct {
	Count int `json:"count"`
}

// HospitalThread summarises the manager conversation with one hospital.
type HospitalThread struct {
	HospitalID   uuid.UUID `json:"hospitalId"`
	HospitalName string    `json:"hospitalName"`
	UnreadCount  int       `json:"unreadCount"`
	LastComment  *Comment  `json:"lastComment"`
}

// MarkReadFilter selects the unread comments to flip. Exactly one of
// ClaimID and HospitalID is set; comments written by Reader stay untouched.
type MarkReadFilter struct {
	ClaimID    *uuid.UUID
	HospitalID *uuid.UUID
	Reader     uuid.UUID
}
