package collab

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/domain/sideeffect"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

type QueryService struct {
	d    Deps
	docs *documents.Manager
}

func NewQueryService(d Deps) *QueryService {
	return &QueryService{d: d, docs: documents.NewManager(d.Documents)}
}

// queryOwner is the document owner for attachments of q.
func queryOwner(q *claims.Query) documents.Owner {
	if q.EnhancementID != nil {
		return documents.EnhancementQueryOwner(q.InsuranceRequestID, *q.EnhancementID, q.ID)
	}
	return documents.QueryOwner(q.InsuranceRequestID, q.ID)
}

func querySubject(q *claims.Query) string {
	if q.EnhancementID != nil {
		return "enhancement query on"
	}
	return "query on"
}

// Create raises a query on a claim, or on one of its enhancements when
// EnhancementID is set.
func (s *QueryService) Create(ctx context.Context, actor auth.Actor, in QueryCreateInput) (*QueryMutation, error) {
	if in.ResolvedRemarks != nil || in.IsResolved != nil {
		return nil, apperror.InvalidState("isResolved", "a new query cannot be resolved")
	}
	if err := documents.Validate(in.Documents); err != nil {
		return nil, err
	}
	c, err := s.d.Claims.Visible(ctx, actor, in.InsuranceRequestID)
	if err != nil {
		return nil, err
	}
	if in.EnhancementID != nil {
		e, err := s.d.Enhancements.GetByID(ctx, *in.EnhancementID)
		if err != nil {
			if apperror.Is(apperror.FromStore(err, "enhancement"), apperror.KindNotFound) {
				return nil, apperror.InvalidReference("enhancement", *in.EnhancementID)
			}
			return nil, err
		}
		if e.InsuranceRequestID != c.ID {
			return nil, apperror.InvalidReference("enhancement", *in.EnhancementID)
		}
	}

	q := &claims.Query{
		InsuranceRequestID: c.ID,
		EnhancementID:      in.EnhancementID,
		Notes:              in.Notes,
		CreatedBy:          actor.ID,
	}
	var res *documents.Result
	err = s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.d.Queries.Create(ctx, q); err != nil {
			return apperror.FromStore(err, "query")
		}
		if len(in.Documents) == 0 {
			return nil
		}
		res, err = s.docs.Apply(ctx, queryOwner(q), actor.ID, in.Documents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.d.Effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeNotify,
		Message:    sideeffect.Describe(actor, "raised a query on %s", c.RefNumber),
		TargetType: sideeffect.TargetQuery,
		TargetID:   q.ID,
		ClaimID:    &c.ID,
		Recipients: c.Counterparts(),
	})
	recordDocuments(ctx, s.d.Effects, actor, c, res, querySubject(q), sideeffect.TargetQuery, q.ID)

	return newQueryMutation(c.RefNumber, q, allDocs(res)), nil
}

// Update edits a query, resolves it and applies a document batch in one
// transaction. Resolving an already resolved query emits nothing new.
func (s *QueryService) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in QueryUpdateInput) (*QueryMutation, error) {
	if err := documents.Validate(in.Documents); err != nil {
		return nil, err
	}
	var (
		q           *claims.Query
		c           *claims.Claim
		wasResolved bool
		res         *documents.Result
	)
	err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		q, err = s.d.Queries.GetByIDForUpdate(ctx, id)
		if err != nil {
			if apperror.Is(apperror.FromStore(err, "query"), apperror.KindNotFound) {
				return apperror.InvalidReference("query", id)
			}
			return err
		}
		c, err = s.d.Claims.Visible(ctx, actor, q.InsuranceRequestID)
		if err != nil {
			return err
		}

		wasResolved = q.IsResolved
		setIfPresent(&q.Notes, in.Notes)
		setIfPresent(&q.ResolvedRemarks, in.ResolvedRemarks)
		if in.IsResolved != nil {
			q.IsResolved = *in.IsResolved
		}
		if err := s.d.Queries.Update(ctx, q); err != nil {
			return apperror.FromStore(err, "query")
		}
		if len(in.Documents) == 0 {
			return nil
		}
		res, err = s.docs.Apply(ctx, queryOwner(q), actor.ID, in.Documents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.d.Effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeAudit,
		Message:    sideeffect.Describe(actor, "updated query on %s", c.RefNumber),
		TargetType: sideeffect.TargetQuery,
		TargetID:   q.ID,
		ClaimID:    &c.ID,
	})
	if !wasResolved && q.IsResolved {
		s.d.Effects.Record(ctx, sideeffect.Event{
			Actor:      actor,
			Grade:      sideeffect.GradeSystem,
			Message:    sideeffect.Describe(actor, "marked query as resolved for %s", c.RefNumber),
			TargetType: sideeffect.TargetQuery,
			TargetID:   q.ID,
			ClaimID:    &c.ID,
			Recipients: c.Counterparts(),
		})
	}
	recordDocuments(ctx, s.d.Effects, actor, c, res, querySubject(q), sideeffect.TargetQuery, q.ID)

	return newQueryMutation(c.RefNumber, q, allDocs(res)), nil
}
