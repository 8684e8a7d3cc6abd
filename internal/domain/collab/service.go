// Package collab holds the collaboration around a claim: enhancement
// requests, queries and the comment threads.
package collab

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/domain/sideeffect"
	"github.com/claimdesk/claimdesk/internal/domain/users"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/blobstore"
	"github.com/claimdesk/claimdesk/internal/platform/db"
)

// ClaimLookup resolves a claim the actor is allowed to see.
type ClaimLookup interface {
	Visible(ctx context.Context, actor auth.Actor, id uuid.UUID) (*claims.Claim, error)
	VisibleByRef(ctx context.Context, actor auth.Actor, ref string) (*claims.Claim, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

type Deps struct {
	Tx           db.TxManager
	Claims       ClaimLookup
	Enhancements claims.EnhancementRepository
	Queries      claims.QueryRepository
	Documents    documents.Repository
	Comments     CommentRepository
	Users        UserDirectory
	Effects      claims.Recorder
	Presigner    blobstore.Presigner
	PresignTTL   time.Duration
}

// recordDocuments emits the upload and modification events of a batch
// attached below a claim. subject names the owner, e.g. "enhancement on".
func recordDocuments(ctx context.Context, rec claims.Recorder, actor auth.Actor, c *claims.Claim,
	res *documents.Result, subject, targetType string, targetID uuid.UUID) {
	if res == nil {
		return
	}
	emit := func(verb string, n int) {
		rec.Record(ctx, sideeffect.Event{
			Actor:      actor,
			Grade:      sideeffect.GradeSystem,
			Message:    sideeffect.Describe(actor, "%s %d document(s) for %s %s", verb, n, subject, c.RefNumber),
			TargetType: targetType,
			TargetID:   targetID,
			ClaimID:    &c.ID,
			Recipients: c.Counterparts(),
		})
	}
	if n := len(res.Created); n > 0 {
		emit("uploaded", n)
	}
	if n := len(res.Updated); n > 0 {
		emit("modified", n)
	}
}

func allDocs(res *documents.Result) []*documents.Document {
	if res == nil {
		return nil
	}
	return res.All()
}
