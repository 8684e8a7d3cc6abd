package claims

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/domain/sideeffect"
	"github.com/claimdesk/claimdesk/internal/domain/users"
	"github.com/claimdesk/claimdesk/internal/domain/visibility"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/blobstore"
	"github.com/claimdesk/claimdesk/internal/platform/db"
)

// DefaultPresignTTL is the lifetime of document links in claim reads.
const DefaultPresignTTL = 3 * time.Hour

// PatientRegistry resolves the hospital user owning a patient.
type PatientRegistry interface {
	OwnerHospitalID(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
}

// UserDirectory looks up assignees and the intake fallback recipient.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
	FirstSuperAdmin(ctx context.Context) (*users.User, error)
}

// Recorder receives side-effect events after a mutation commits.
type Recorder interface {
	Record(ctx context.Context, ev sideeffect.Event)
}

// Deps wires a Service.
type Deps struct {
	Tx           db.TxManager
	Claims       ClaimRepository
	Enhancements EnhancementRepository
	Queries      QueryRepository
	Documents    documents.Repository
	Patients     PatientRegistry
	Users        UserDirectory
	Effects      Recorder
	Presigner    blobstore.Presigner
	PresignTTL   time.Duration
	Logger       zerolog.Logger
}

type Service struct {
	tx           db.TxManager
	claims       ClaimRepository
	enhancements EnhancementRepository
	queries      QueryRepository
	docRepo      documents.Repository
	docs         *documents.Manager
	patients     PatientRegistry
	users        UserDirectory
	effects      Recorder
	presigner    blobstore.Presigner
	presignTTL   time.Duration
	logger       zerolog.Logger
}

func NewService(d Deps) *Service {
	ttl := d.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return &Service{
		tx:           d.Tx,
		claims:       d.Claims,
		enhancements: d.Enhancements,
		queries:      d.Queries,
		docRepo:      d.Documents,
		docs:         documents.NewManager(d.Documents),
		patients:     d.Patients,
		users:        d.Users,
		effects:      d.Effects,
		presigner:    d.Presigner,
		presignTTL:   ttl,
		logger:       d.Logger,
	}
}

// Counterparts returns the claim's assignee and owning hospital user.
func (c *Claim) Counterparts() []uuid.UUID {
	return sideeffect.Counterparts(c.AssignedTo, c.HospitalUserID)
}

// ---------------------------------------------------------------------------
// Lookups shared with the collaboration services
// ---------------------------------------------------------------------------

// Visible loads a claim by id and checks it against the actor's scope. An
// unknown id is an InvalidReference.
func (s *Service) Visible(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Claim, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		if apperror.Is(apperror.FromStore(err, "claim"), apperror.KindNotFound) {
			return nil, apperror.InvalidReference("insuranceRequest", id)
		}
		return nil, err
	}
	if err := visibility.ForClaims(scope).Check(c.RefNumber, c.HospitalUserID); err != nil {
		return nil, err
	}
	return c, nil
}

// VisibleByRef is Visible keyed by reference number.
func (s *Service) VisibleByRef(ctx context.Context, actor auth.Actor, ref string) (*Claim, error) {
	return s.visibleByRef(ctx, actor, ref, s.claims.GetByRef)
}

// lockVisible is VisibleByRef with the claim row locked for the rest of
// the transaction in ctx. Mutations read the claim through it so a
// concurrent writer's committed change is never overwritten.
func (s *Service) lockVisible(ctx context.Context, actor auth.Actor, ref string) (*Claim, error) {
	return s.visibleByRef(ctx, actor, ref, s.claims.GetByRefForUpdate)
}

func (s *Service) visibleByRef(ctx context.Context, actor auth.Actor, ref string,
	get func(context.Context, string) (*Claim, error)) (*Claim, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	c, err := get(ctx, ref)
	if err != nil {
		if apperror.Is(apperror.FromStore(err, "claim"), apperror.KindNotFound) {
			return nil, apperror.InvalidRef("refNumber", ref)
		}
		return nil, err
	}
	if err := visibility.ForClaims(scope).Check(c.RefNumber, c.HospitalUserID); err != nil {
		return nil, err
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// Create files a claim for a patient together with its first documents.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Mutation, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if len(in.Documents) == 0 {
		return nil, apperror.InvalidState("documents", "at least one document is required")
	}
	if err := documents.Validate(in.Documents); err != nil {
		return nil, err
	}
	status := StatusDraft
	if in.Status != nil {
		status = *in.Status
		if status != StatusDraft && status != StatusPending {
			return nil, apperror.InvalidState("status", "a new claim must start as %s or %s", StatusDraft, StatusPending)
		}
	}

	hospitalUserID, err := s.patients.OwnerHospitalID(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if !scope.Covers(hospitalUserID) {
		return nil, apperror.Forbidden("patient %s is outside your hospital scope", in.PatientID)
	}
	if in.AssignedTo != nil {
		if err := s.checkAssignee(ctx, actor, *in.AssignedTo); err != nil {
			return nil, err
		}
	}

	c := &Claim{
		PatientID:      in.PatientID,
		Status:         status,
		AssignedTo:     in.AssignedTo,
		HospitalUserID: hospitalUserID,
	}
	in.Fields.apply(c)

	var res *documents.Result
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ref, err := s.claims.NextRef(ctx)
		if err != nil {
			return err
		}
		c.RefNumber = ref
		if err := s.claims.Create(ctx, c); err != nil {
			return apperror.FromStore(err, "claim")
		}
		res, err = s.docs.Apply(ctx, documents.ClaimOwner(c.ID), actor.ID, in.Documents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeNotify,
		Message:    sideeffect.Describe(actor, "created claim %s", c.RefNumber),
		TargetType: sideeffect.TargetClaim,
		TargetID:   c.ID,
		ClaimID:    &c.ID,
		Recipients: s.intakeRecipients(ctx, c),
	})
	s.recordDocuments(ctx, actor, c, res)

	return newMutation(c, res.All()), nil
}

// intakeRecipients is the assignee, or the first super admin while the
// claim is unassigned.
func (s *Service) intakeRecipients(ctx context.Context, c *Claim) []uuid.UUID {
	if c.AssignedTo != nil {
		return []uuid.UUID{*c.AssignedTo}
	}
	u, err := s.users.FirstSuperAdmin(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("ref_number", c.RefNumber).Msg("no super admin to notify of new claim")
		return nil
	}
	return []uuid.UUID{u.ID}
}

// recordDocuments emits the upload and modification events of a batch.
func (s *Service) recordDocuments(ctx context.Context, actor auth.Actor, c *Claim, res *documents.Result) {
	if res == nil {
		return
	}
	if n := len(res.Created); n > 0 {
		s.effects.Record(ctx, sideeffect.Event{
			Actor:      actor,
			Grade:      sideeffect.GradeSystem,
			Message:    sideeffect.Describe(actor, "uploaded %d document(s) for %s", n, c.RefNumber),
			TargetType: sideeffect.TargetClaim,
			TargetID:   c.ID,
			ClaimID:    &c.ID,
			Recipients: c.Counterparts(),
		})
	}
	if n := len(res.Updated); n > 0 {
		s.effects.Record(ctx, sideeffect.Event{
			Actor:      actor,
			Grade:      sideeffect.GradeSystem,
			Message:    sideeffect.Describe(actor, "modified %d document(s) for %s", n, c.RefNumber),
			TargetType: sideeffect.TargetClaim,
			TargetID:   c.ID,
			ClaimID:    &c.ID,
			Recipients: c.Counterparts(),
		})
	}
}

// checkAssignee enforces that only administrators assign claims and only
// to administrators.
func (s *Service) checkAssignee(ctx context.Context, actor auth.Actor, assigneeID uuid.UUID) error {
	if !actor.Role.IsAdmin() {
		return apperror.Forbidden("role %s cannot assign claims", actor.Role)
	}
	u, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return apperror.InvalidReference("assignee", assigneeID)
		}
		return err
	}
	if !u.Role.IsAdmin() {
		return apperror.InvalidReference("assignee", assigneeID)
	}
	return nil
}

// Update patches a claim, moves its status and applies a document batch in
// one transaction. The transition is checked against the locked row.
func (s *Service) Update(ctx context.Context, actor auth.Actor, ref string, in UpdateInput) (*Mutation, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if err := documents.Validate(in.Documents); err != nil {
		return nil, err
	}

	var (
		c          *Claim
		prevStatus Status
		reassigned bool
		res        *documents.Result
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lockVisible(ctx, actor, ref)
		if err != nil {
			return err
		}
		prevStatus = c.Status
		reassigned, err = s.patch(ctx, actor, scope, c, in)
		if err != nil {
			return err
		}
		if err := s.claims.Update(ctx, c); err != nil {
			return apperror.FromStore(err, "claim")
		}
		if len(in.Documents) == 0 {
			return nil
		}
		res, err = s.docs.Apply(ctx, documents.ClaimOwner(c.ID), actor.ID, in.Documents)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeAudit,
		Message:    sideeffect.Describe(actor, "updated claim %s", c.RefNumber),
		TargetType: sideeffect.TargetClaim,
		TargetID:   c.ID,
		ClaimID:    &c.ID,
	})
	if c.Status != prevStatus {
		s.effects.Record(ctx, sideeffect.Event{
			Actor:      actor,
			Grade:      sideeffect.GradeSystem,
			Message:    sideeffect.Describe(actor, "updated status from %s to %s for %s", prevStatus, c.Status, c.RefNumber),
			TargetType: sideeffect.TargetClaim,
			TargetID:   c.ID,
			ClaimID:    &c.ID,
			Recipients: c.Counterparts(),
		})
	}
	if reassigned {
		s.recordAssignment(ctx, actor, c)
	}
	s.recordDocuments(ctx, actor, c, res)

	var docs []*documents.Document
	if res != nil {
		docs = res.All()
	}
	return newMutation(c, docs), nil
}

// patch applies the requested changes to c and reports whether the
// assignee changed.
func (s *Service) patch(ctx context.Context, actor auth.Actor, scope auth.Scope, c *Claim, in UpdateInput) (bool, error) {
	if in.Status != nil && *in.Status != c.Status {
		if err := checkTransition(c.Status, *in.Status); err != nil {
			return false, err
		}
		c.Status = *in.Status
	}
	if in.PatientID != nil && *in.PatientID != c.PatientID {
		owner, err := s.patients.OwnerHospitalID(ctx, *in.PatientID)
		if err != nil {
			return false, err
		}
		if !scope.Covers(owner) {
			return false, apperror.Forbidden("patient %s is outside your hospital scope", *in.PatientID)
		}
		c.PatientID = *in.PatientID
		c.HospitalUserID = owner
	}
	reassigned := false
	if in.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *in.AssignedTo) {
		if err := s.checkAssignee(ctx, actor, *in.AssignedTo); err != nil {
			return false, err
		}
		id := *in.AssignedTo
		c.AssignedTo = &id
		reassigned = true
	}
	in.Fields.apply(c)
	return reassigned, nil
}

func (s *Service) recordAssignment(ctx context.Context, actor auth.Actor, c *Claim) {
	s.effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeNotify,
		Message:    sideeffect.Describe(actor, "assigned claim %s to you", c.RefNumber),
		TargetType: sideeffect.TargetClaim,
		TargetID:   c.ID,
		ClaimID:    &c.ID,
		Recipients: []uuid.UUID{*c.AssignedTo},
	})
}

// Assign hands the claim to an administrator. Assigning the current
// assignee again succeeds without notifying anyone.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, ref string, assigneeID uuid.UUID) (*Assignment, error) {
	if err := s.checkAssignee(ctx, actor, assigneeID); err != nil {
		return nil, err
	}
	var (
		c   *Claim
		out *Assignment
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lockVisible(ctx, actor, ref)
		if err != nil {
			return err
		}
		out = &Assignment{ID: c.ID, RefNumber: c.RefNumber, AssignedTo: assigneeID}
		if c.AssignedTo != nil && *c.AssignedTo == assigneeID {
			return nil
		}
		c.AssignedTo = &assigneeID
		out.Changed = true
		return apperror.FromStore(s.claims.Update(ctx, c), "claim")
	})
	if err != nil {
		return nil, err
	}
	if !out.Changed {
		return out, nil
	}
	s.recordAssignment(ctx, actor, c)
	return out, nil
}

// Remove deletes a claim that has not been sent onward yet.
func (s *Service) Remove(ctx context.Context, actor auth.Actor, ref string) (*Claim, error) {
	var c *Claim
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.lockVisible(ctx, actor, ref)
		if err != nil {
			return err
		}
		if c.Status != StatusDraft && c.Status != StatusPending {
			return apperror.InvalidState("status", "cannot delete claim %s in status %s", c.RefNumber, c.Status)
		}
		return apperror.FromStore(s.claims.Delete(ctx, c.ID), "claim")
	})
	if err != nil {
		return nil, err
	}
	s.effects.Record(ctx, sideeffect.Event{
		Actor:      actor,
		Grade:      sideeffect.GradeAudit,
		Message:    sideeffect.Describe(actor, "deleted claim %s", c.RefNumber),
		TargetType: sideeffect.TargetClaim,
		TargetID:   c.ID,
	})
	return c, nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// FindOne returns the claim graph with download links on every document.
func (s *Service) FindOne(ctx context.Context, actor auth.Actor, ref string) (*Detail, error) {
	var d *Detail
	err := s.tx.WithinReadTx(ctx, func(ctx context.Context) error {
		c, err := s.VisibleByRef(ctx, actor, ref)
		if err != nil {
			return err
		}
		docs, err := s.docRepo.ListByClaim(ctx, c.ID)
		if err != nil {
			return err
		}
		qs, err := s.queries.ListByClaim(ctx, c.ID)
		if err != nil {
			return err
		}
		es, err := s.enhancements.ListByClaim(ctx, c.ID)
		if err != nil {
			return err
		}
		d = buildDetail(c, docs, qs, es)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := documents.Presign(ctx, s.presigner, s.presignTTL, d.AllDocuments()); err != nil {
		return nil, err
	}
	return d, nil
}

// List pages through the claims visible to the actor.
func (s *Service) List(ctx context.Context, actor auth.Actor, f ListFilter, limit, offset int) ([]*Claim, int, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, 0, err
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, 0, apperror.InvalidState("status", "invalid status: %s", st)
		}
	}

	var (
		items []*Claim
		total int
	)
	err = s.tx.WithinReadTx(ctx, func(ctx context.Context) error {
		var err error
		items, total, err = s.claims.List(ctx, visibility.ForClaims(scope), f, limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Claim{}
	}
	return items, total, nil
}
