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

type EnhancementService struct {
	d    Deps
	docs *documents.Manager
}

func NewEnhancementService(d Deps) *EnhancementService {
	if d.PresignTTL <= 0 {
		d.PresignTTL = claims.DefaultPresignTTL
	}
	return &EnhancementService{d: d, docs: documents.NewManager(d.Documents)}
}

// Create files an enhancement request with its supporting documents. New
// enhancements always start PENDING.
func (s *EnhancementService) Create(ctx context.Context, actor auth.Actor, in EnhancementCreateInput) (*EnhancementMutation, error) {
	if in.Status != nil {
		return nil, apperror.InvalidState("status", "a new enhancement starts as %s", claims.EnhancementPending)
	}
	if in.NumberOfDays <= 0 {
		return nil, apperror.InvalidState("numberOfDays", "numberOfDays must be greater than zero")
	}
	if len(in.Documents) == 0 {
		return nil, apperror.InvalidState("documents", "at least one document is required")
	}
	if err := documents.Validate(in.Documents); err != nil {
		return nil, err
	}
	c, err := s.d.Claims.Visible(ctx, actor, in.InsuranceRequestID)
	if err != nil {
		return nil, err
	}

	e := &claims.Enhancement{
		InsuranceRequestID: c.ID,
		NumberOfDays:       in.NumberOfDays,
		DoctorName:         in.DoctorName,
		Notes:              in.Notes,
		Status:             claims.EnhancementPending,
		DischargeSummary:   in.DischargeSummary,
		SettlementSummary:  in.SettlementSummary,
		CreatedBy:          actor.ID,
	}
	var res *documents.Result
	err = s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.d.Enhancements.Create(ctx, e); err != nil {
			return apperror.FromStore(err, "enhancement")
		}
		res, err = s.docs.Apply(ctx, documents.EnhancementOwner(c.ID, e.ID), actor.ID, in.Documents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.d.Effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeNotify,
		Message:    sideeffect.Describe(actor, "requested an enhancement for %s", c.RefNumber),
		TargetType: sideeffect.TargetEnhancement,
		TargetID:   e.ID,
		ClaimID:    &c.ID,
		Recipients: c.Counterparts(),
	})
	recordDocuments(ctx, s.d.Effects, actor, c, res, "enhancement on", sideeffect.TargetEnhancement, e.ID)

	return newEnhancementMutation(c.RefNumber, e, res.All()), nil
}

// load returns the enhancement and its claim, checking visibility.
func (s *EnhancementService) load(ctx context.Context, actor auth.Actor, id uuid.UUID) (*claims.Enhancement, *claims.Claim, error) {
	return s.resolve(ctx, actor, id, s.d.Enhancements.GetByID)
}

// lock is load with the enhancement row locked until the transaction in
// ctx ends.
func (s *EnhancementService) lock(ctx context.Context, actor auth.Actor, id uuid.UUID) (*claims.Enhancement, *claims.Claim, error) {
	return s.resolve(ctx, actor, id, s.d.Enhancements.GetByIDForUpdate)
}

func (s *EnhancementService) resolve(ctx context.Context, actor auth.Actor, id uuid.UUID,
	get func(context.Context, uuid.UUID) (*claims.Enhancement, error)) (*claims.Enhancement, *claims.Claim, error) {
	e, err := get(ctx, id)
	if err != nil {
		if apperror.Is(apperror.FromStore(err, "enhancement"), apperror.KindNotFound) {
			return nil, nil, apperror.InvalidReference("enhancement", id)
		}
		return nil, nil, err
	}
	c, err := s.d.Claims.Visible(ctx, actor, e.InsuranceRequestID)
	if err != nil {
		return nil, nil, err
	}
	return e, c, nil
}

// Update patches an enhancement and applies a document batch in one
// transaction.
func (s *EnhancementService) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, in EnhancementUpdateInput) (*EnhancementMutation, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperror.InvalidState("status", "invalid enhancement status: %s", *in.Status)
	}
	if in.NumberOfDays != nil && *in.NumberOfDays <= 0 {
		return nil, apperror.InvalidState("numberOfDays", "numberOfDays must be greater than zero")
	}
	if err := documents.Validate(in.Documents); err != nil {
		return nil, err
	}
	var (
		e          *claims.Enhancement
		c          *claims.Claim
		prevStatus claims.EnhancementStatus
		res        *documents.Result
	)
	err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		e, c, err = s.lock(ctx, actor, id)
		if err != nil {
			return err
		}
		prevStatus = e.Status
		if in.Status != nil {
			e.Status = *in.Status
		}
		if in.NumberOfDays != nil {
			e.NumberOfDays = *in.NumberOfDays
		}
		setIfPresent(&e.DoctorName, in.DoctorName)
		setIfPresent(&e.Notes, in.Notes)
		setIfPresent(&e.DischargeSummary, in.DischargeSummary)
		setIfPresent(&e.SettlementSummary, in.SettlementSummary)

		if err := s.d.Enhancements.Update(ctx, e); err != nil {
			return apperror.FromStore(err, "enhancement")
		}
		if len(in.Documents) == 0 {
			return nil
		}
		res, err = s.docs.Apply(ctx, documents.EnhancementOwner(c.ID, e.ID), actor.ID, in.Documents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.d.Effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeAudit,
		Message:    sideeffect.Describe(actor, "updated enhancement for %s", c.RefNumber),
		TargetType: sideeffect.TargetEnhancement,
		TargetID:   e.ID,
		ClaimID:    &c.ID,
	})
	if e.Status != prevStatus {
		s.d.Effects.Record(ctx, sideeffect.Event{
			Actor:      actor,
			Grade:      sideeffect.GradeSystem,
			Message:    sideeffect.Describe(actor, "updated enhancement status from %s to %s for %s", prevStatus, e.Status, c.RefNumber),
			TargetType: sideeffect.TargetEnhancement,
			TargetID:   e.ID,
			ClaimID:    &c.ID,
			Recipients: c.Counterparts(),
		})
	}
	recordDocuments(ctx, s.d.Effects, actor, c, res, "enhancement on", sideeffect.TargetEnhancement, e.ID)

	return newEnhancementMutation(c.RefNumber, e, allDocs(res)), nil
}

// Get returns an enhancement with its documents and queries, each document
// carrying a download link.
func (s *EnhancementService) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*claims.EnhancementDetail, error) {
	var d *claims.EnhancementDetail
	err := s.d.Tx.WithinReadTx(ctx, func(ctx context.Context) error {
		e, c, err := s.load(ctx, actor, id)
		if err != nil {
			return err
		}
		docs, err := s.d.Documents.ListByClaim(ctx, c.ID)
		if err != nil {
			return err
		}
		qs, err := s.d.Queries.ListByEnhancement(ctx, e.ID)
		if err != nil {
			return err
		}
		d = claims.BuildEnhancementDetail(e, docs, qs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := documents.Presign(ctx, s.d.Presigner, s.d.PresignTTL, d.AllDocuments()); err != nil {
		return nil, err
	}
	return d, nil
}

// setIfPresent copies src into dst when the caller sent the field.
func setIfPresent(dst **string, src *string) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
