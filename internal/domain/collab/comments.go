package collab

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/sideeffect"
	"github.com/claimdesk/claimdesk/internal/domain/visibility"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
)

type CommentService struct {
	d Deps
}

func NewCommentService(d Deps) *CommentService {
	return &CommentService{d: d}
}

// Create posts a comment on a claim thread, or a HOSPITAL_NOTE on a
// hospital thread. Claim comments start read; hospital notes start unread
// so the other side of the conversation sees them.
func (s *CommentService) Create(ctx context.Context, actor auth.Actor, in CommentInput) (*Comment, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, apperror.InvalidState("type", "invalid comment type: %s", in.Type)
	}
	if in.Type == visibility.CommentSystem {
		return nil, apperror.InvalidState("type", "%s comments are written by the server", visibility.CommentSystem)
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, apperror.InvalidState("text", "text is required")
	}
	if (in.InsuranceRequestID == nil) == (in.HospitalID == nil) {
		return nil, apperror.InvalidState("insuranceRequestId", "a comment targets exactly one of insuranceRequestId or hospitalId")
	}

	c := &Comment{
		Text:      in.Text,
		Type:      in.Type,
		FileURL:   in.FileURL,
		CreatedBy: actor.ID,
	}
	var (
		claimID *uuid.UUID
		subject string
	)
	if in.Type == visibility.CommentHospitalNote {
		if in.HospitalID == nil {
			return nil, apperror.InvalidState("hospitalId", "%s comments need hospitalId", visibility.CommentHospitalNote)
		}
		if actor.Role == auth.RoleHospital {
			return nil, apperror.Forbidden("role %s cannot write %s comments", actor.Role, visibility.CommentHospitalNote)
		}
		if !scope.Covers(*in.HospitalID) {
			return nil, apperror.Forbidden("hospital %s is outside your scope", *in.HospitalID)
		}
		h, err := s.d.Users.GetByID(ctx, *in.HospitalID)
		if err != nil {
			if apperror.Is(err, apperror.KindNotFound) {
				return nil, apperror.InvalidReference("hospital", *in.HospitalID)
			}
			return nil, err
		}
		if h.Role != auth.RoleHospital {
			return nil, apperror.InvalidReference("hospital", *in.HospitalID)
		}
		c.HospitalID = in.HospitalID
		subject = "hospital " + h.Name
	} else {
		if in.InsuranceRequestID == nil {
			return nil, apperror.InvalidState("insuranceRequestId", "%s comments need insuranceRequestId", in.Type)
		}
		claim, err := s.d.Claims.Visible(ctx, actor, *in.InsuranceRequestID)
		if err != nil {
			return nil, err
		}
		c.InsuranceRequestID = &claim.ID
		c.IsRead = true
		claimID = &claim.ID
		subject = claim.RefNumber
	}

	err = s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return apperror.FromStore(s.d.Comments.Create(ctx, c), "comment")
	})
	if err != nil {
		return nil, err
	}
	s.d.Effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeAudit,
		Message:    sideeffect.Describe(actor, "commented on %s", subject),
		TargetType: sideeffect.TargetComment,
		TargetID:   c.ID,
		ClaimID:    claimID,
	})
	return c, nil
}

// List pages through the comments visible to the actor, newest first.
func (s *CommentService) List(ctx context.Context, actor auth.Actor, f CommentFilter) (*CommentPage, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if f.InsuranceRequestID != nil {
		if _, err := s.d.Claims.Visible(ctx, actor, *f.InsuranceRequestID); err != nil {
			return nil, err
		}
	}
	cs, err := visibility.ForComments(scope, f.CommentRequest)
	if err != nil {
		return nil, err
	}

	take := f.take()
	page := &CommentPage{Data: []*Comment{}}
	err = s.d.Tx.WithinReadTx(ctx, func(ctx context.Context) error {
		var after *Comment
		if f.Cursor != nil {
			c, err := s.d.Comments.GetByID(ctx, *f.Cursor)
			if err != nil {
				if apperror.Is(apperror.FromStore(err, "comment"), apperror.KindNotFound) {
					return apperror.InvalidReference("cursor", *f.Cursor)
				}
				return err
			}
			after = c
		}
		// One extra row tells whether another page exists.
		items, err := s.d.Comments.List(ctx, cs, after, take+1)
		if err != nil {
			return err
		}
		if len(items) > take {
			items = items[:take]
			next := items[take-1].ID
			page.NextCursor = &next
		}
		if items != nil {
			page.Data = items
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// MarkReadForHospital marks the unread notes on a hospital thread that
// the actor did not write.
func (s *CommentService) MarkReadForHospital(ctx context.Context, actor auth.Actor, hospitalID uuid.UUID) (*Count, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleHospital {
		return nil, apperror.Forbidden("role %s has no hospital thread", actor.Role)
	}
	if !scope.Covers(hospitalID) {
		return nil, apperror.Forbidden("hospital %s is outside your scope", hospitalID)
	}
	return s.markRead(ctx, MarkReadFilter{HospitalID: &hospitalID, Reader: actor.ID})
}

// MarkReadForClaim marks the unread comments on a claim thread that the
// actor did not write.
func (s *CommentService) MarkReadForClaim(ctx context.Context, actor auth.Actor, ref string) (*Count, error) {
	c, err := s.d.Claims.VisibleByRef(ctx, actor, ref)
	if err != nil {
		return nil, err
	}
	return s.markRead(ctx, MarkReadFilter{ClaimID: &c.ID, Reader: actor.ID})
}

// MarkReadManagerThreads marks every unread note on the hospital thread of
// a HOSPITAL_MANAGER.
func (s *CommentService) MarkReadManagerThreads(ctx context.Context, actor auth.Actor) (*Count, error) {
	if actor.Role != auth.RoleHospitalManager {
		return nil, apperror.Forbidden("role %s has no manager thread", actor.Role)
	}
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	return s.markRead(ctx, MarkReadFilter{HospitalID: scope.HospitalScopeID, Reader: actor.ID})
}

func (s *CommentService) markRead(ctx context.Context, f MarkReadFilter) (*Count, error) {
	var n int
	err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.d.Comments.MarkRead(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Count{Count: n}, nil
}

// ListHospitalsWithManagerComments returns one entry per hospital with a
// manager conversation, most recently active first.
func (s *CommentService) ListHospitalsWithManagerComments(ctx context.Context, actor auth.Actor) ([]*HospitalThread, error) {
	if !actor.Role.IsAdmin() {
		return nil, apperror.Forbidden("role %s cannot list manager conversations", actor.Role)
	}
	var out []*HospitalThread
	err := s.d.Tx.WithinReadTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.d.Comments.HospitalThreads(ctx, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*HospitalThread{}
	}
	return out, nil
}
