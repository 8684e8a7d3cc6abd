// Package visibility turns an actor's scope into the predicates every claim
// and comment read applies. Claims resolve to a hospital through their
// patient, so one hospital id is enough to filter the whole claim graph.
package visibility

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

// ClaimScope restricts claims to those whose patient belongs to
// HospitalUserID. A nil HospitalUserID admits every claim.
type ClaimScope struct {
	HospitalUserID *uuid.UUID
}

func ForClaims(s auth.Scope) ClaimScope {
	return ClaimScope{HospitalUserID: s.HospitalScopeID}
}

// All reports whether the scope is unrestricted.
func (c ClaimScope) All() bool { return c.HospitalUserID == nil }

// Allows reports whether a claim owned by hospitalUserID is visible.
func (c ClaimScope) Allows(hospitalUserID uuid.UUID) bool {
	return c.HospitalUserID == nil || *c.HospitalUserID == hospitalUserID
}

// Check returns Forbidden when the claim owned by hospitalUserID is outside
// the scope.
func (c ClaimScope) Check(refNumber string, hospitalUserID uuid.UUID) error {
	if c.Allows(hospitalUserID) {
		return nil
	}
	return apperror.Forbidden("claim %s is outside your hospital scope", refNumber)
}

// Predicate renders the scope as a SQL condition on column. The returned
// condition refers to argument $n where n is len(args)+1; an unrestricted
// scope yields "TRUE" and leaves args untouched.
func (c ClaimScope) Predicate(column string, args []interface{}) (string, []interface{}) {
	if c.HospitalUserID == nil {
		return "TRUE", args
	}
	args = append(args, *c.HospitalUserID)
	return fmt.Sprintf("%s = $%d", column, len(args)), args
}
