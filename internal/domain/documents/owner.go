package documents

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerKind tags which entity a document hangs off.
type OwnerKind int

const (
	OwnerClaim OwnerKind = iota + 1
	OwnerEnhancement
	OwnerQuery
	OwnerEnhancementQuery
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerClaim:
		return "claim"
	case OwnerEnhancement:
		return "enhancement"
	case OwnerQuery:
		return "query"
	case OwnerEnhancementQuery:
		return "enhancement query"
	}
	return "unknown"
}

// Owner is the entity a document belongs to. Every owner resolves to a
// claim; enhancement and query ids are present only for the kinds that need
// them. The zero Owner is invalid; use the constructors.
type Owner struct {
	kind          OwnerKind
	claimID       uuid.UUID
	enhancementID uuid.UUID
	queryID       uuid.UUID
}

func ClaimOwner(claimID uuid.UUID) Owner {
	return Owner{kind: OwnerClaim, claimID: claimID}
}

func EnhancementOwner(claimID, enhancementID uuid.UUID) Owner {
	return Owner{kind: OwnerEnhancement, claimID: claimID, enhancementID: enhancementID}
}

func QueryOwner(claimID, queryID uuid.UUID) Owner {
	return Owner{kind: OwnerQuery, claimID: claimID, queryID: queryID}
}

func EnhancementQueryOwner(claimID, enhancementID, queryID uuid.UUID) Owner {
	return Owner{kind: OwnerEnhancementQuery, claimID: claimID, enhancementID: enhancementID, queryID: queryID}
}

// OwnerFromColumns decodes the stored parent columns.
func OwnerFromColumns(claimID uuid.UUID, enhancementID, queryID *uuid.UUID) (Owner, error) {
	if claimID == uuid.Nil {
		return Owner{}, fmt.Errorf("document has no claim")
	}
	switch {
	case enhancementID == nil && queryID == nil:
		return ClaimOwner(claimID), nil
	case enhancementID != nil && queryID == nil:
		return EnhancementOwner(claimID, *enhancementID), nil
	case enhancementID == nil && queryID != nil:
		return QueryOwner(claimID, *queryID), nil
	default:
		return EnhancementQueryOwner(claimID, *enhancementID, *queryID), nil
	}
}

func (o Owner) Kind() OwnerKind { return o.kind }
func (o Owner) ClaimID() uuid.UUID { return o.claimID }
func (o Owner) Valid() bool { return o.kind != 0 && o.claimID != uuid.Nil }

// EnhancementID is nil unless the owner is an enhancement or a query under one.
func (o Owner) EnhancementID() *uuid.UUID {
	if o.kind != OwnerEnhancement && o.kind != OwnerEnhancementQuery {
		return nil
	}
	id := o.enhancementID
	return &id
}

// QueryID is nil unless the owner is a query.
func (o Owner) QueryID() *uuid.UUID {
	if o.kind != OwnerQuery && o.kind != OwnerEnhancementQuery {
		return nil
	}
	id := o.queryID
	return &id
}
