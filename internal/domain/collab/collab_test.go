package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/claimdesk/claimdesk/internal/domain/claims"
	"github.com/claimdesk/claimdesk/internal/domain/documents"
	"github.com/claimdesk/claimdesk/internal/domain/sideeffect"
	"github.com/claimdesk/claimdesk/internal/domain/users"
	"github.com/claimdesk/claimdesk/internal/domain/visibility"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/blobstore"
	"github.com/claimdesk/claimdesk/internal/platform/db"
	"github.com/claimdesk/claimdesk/internal/platform/httpx"
	"github.com/claimdesk/claimdesk/internal/platform/notification"
	"github.com/claimdesk/claimdesk/internal/platform/telemetry"
)

// -- Mocks --

type mockClaims struct{ items map[uuid.UUID]*claims.Claim }

func (m *mockClaims) check(actor auth.Actor, c *claims.Claim) (*claims.Claim, error) {
	scope, err := auth.ResolveScope(actor)
	if err != nil {
		return nil, err
	}
	if err := visibility.ForClaims(scope).Check(c.RefNumber, c.HospitalUserID); err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (m *mockClaims) Visible(_ context.Context, actor auth.Actor, id uuid.UUID) (*claims.Claim, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, apperror.InvalidReference("insuranceRequest", id)
	}
	return m.check(actor, c)
}

func (m *mockClaims) VisibleByRef(_ context.Context, actor auth.Actor, ref string) (*claims.Claim, error) {
	for _, c := range m.items {
		if c.RefNumber == ref {
			return m.check(actor, c)
		}
	}
	return nil, apperror.InvalidRef("refNumber", ref)
}

type mockEnhancements struct {
	items      map[uuid.UUID]*claims.Enhancement
	beforeLock func()
}

func (m *mockEnhancements) Create(_ context.Context, e *claims.Enhancement) error {
	e.ID = uuid.New()
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *mockEnhancements) GetByID(_ context.Context, id uuid.UUID) (*claims.Enhancement, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *mockEnhancements) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*claims.Enhancement, error) {
	if hook := m.beforeLock; hook != nil {
		m.beforeLock = nil
		hook()
	}
	return m.GetByID(ctx, id)
}

func (m *mockEnhancements) Update(_ context.Context, e *claims.Enhancement) error {
	cp := *e
	m.items[e.ID] = &cp
	return nil
}

func (m *mockEnhancements) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*claims.Enhancement, error) {
	var out []*claims.Enhancement
	for _, e := range m.items {
		if e.InsuranceRequestID == claimID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockQueries struct {
	items      map[uuid.UUID]*claims.Query
	beforeLock func()
}

func (m *mockQueries) Create(_ context.Context, q *claims.Query) error {
	q.ID = uuid.New()
	cp := *q
	m.items[q.ID] = &cp
	return nil
}

func (m *mockQueries) GetByID(_ context.Context, id uuid.UUID) (*claims.Query, error) {
	q, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

func (m *mockQueries) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*claims.Query, error) {
	if hook := m.beforeLock; hook != nil {
		m.beforeLock = nil
		hook()
	}
	return m.GetByID(ctx, id)
}

func (m *mockQueries) Update(_ context.Context, q *claims.Query) error {
	cp := *q
	m.items[q.ID] = &cp
	return nil
}

func (m *mockQueries) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*claims.Query, error) {
	var out []*claims.Query
	for _, q := range m.items {
		if q.InsuranceRequestID == claimID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *mockQueries) ListByEnhancement(_ context.Context, enhancementID uuid.UUID) ([]*claims.Query, error) {
	var out []*claims.Query
	for _, q := range m.items {
		if q.EnhancementID != nil && *q.EnhancementID == enhancementID {
			out = append(out, q)
		}
	}
	return out, nil
}

type mockDocs struct{ items map[uuid.UUID]*documents.Document }

func (m *mockDocs) CreateMany(_ context.Context, docs []*documents.Document) (int, error) {
	for _, d := range docs {
		d.ID = uuid.New()
		cp := *d
		m.items[d.ID] = &cp
	}
	return len(docs), nil
}

func (m *mockDocs) GetByID(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocs) Update(_ context.Context, d *documents.Document) error {
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDocs) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*documents.Document, error) {
	var out []*documents.Document
	for _, d := range m.items {
		if d.InsuranceRequestID == claimID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockComments struct {
	mu            sync.Mutex
	items         []*Comment
	clock         time.Time
	claimHospital map[uuid.UUID]uuid.UUID
	names         map[uuid.UUID]string
}

func (m *mockComments) Create(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	c.ID = uuid.New()
	c.CreatedAt = m.clock
	cp := *c
	cp.Creator = &claims.UserRef{ID: c.CreatedBy, Name: m.names[c.CreatedBy]}
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockComments) GetByID(_ context.Context, id uuid.UUID) (*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func newer(a, b *Comment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

func (m *mockComments) matches(s visibility.CommentScope, c *Comment) bool {
	typeOK := false
	for _, t := range s.Types {
		typeOK = typeOK || t == c.Type
	}
	switch {
	case !typeOK:
		return false
	case s.ClaimID != nil && (c.InsuranceRequestID == nil || *c.InsuranceRequestID != *s.ClaimID):
		return false
	case s.HospitalID != nil && (c.HospitalID == nil || *c.HospitalID != *s.HospitalID):
		return false
	case s.CreatedBy != nil && c.CreatedBy != *s.CreatedBy:
		return false
	}
	if s.ClaimHospitalUserID != nil {
		h := *s.ClaimHospitalUserID
		if c.HospitalID != nil {
			return *c.HospitalID == h
		}
		return m.claimHospital[*c.InsuranceRequestID] == h
	}
	return true
}

func (m *mockComments) List(_ context.Context, s visibility.CommentScope, after *Comment, limit int) ([]*Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Comment
	for _, c := range m.items {
		if !m.matches(s, c) {
			continue
		}
		if after != nil && !newer(after, c) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockComments) MarkRead(_ context.Context, f MarkReadFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.items {
		if c.IsRead || c.CreatedBy == f.Reader {
			continue
		}
		if f.ClaimID != nil && (c.InsuranceRequestID == nil || *c.InsuranceRequestID != *f.ClaimID) {
			continue
		}
		if f.HospitalID != nil && (c.HospitalID == nil || *c.HospitalID != *f.HospitalID) {
			continue
		}
		c.IsRead = true
		n++
	}
	return n, nil
}

func (m *mockComments) HospitalThreads(_ context.Context, reader uuid.UUID) ([]*HospitalThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byHospital := make(map[uuid.UUID]*HospitalThread)
	for _, c := range m.items {
		if c.Type != visibility.CommentHospitalNote || c.HospitalID == nil {
			continue
		}
		th, ok := byHospital[*c.HospitalID]
		if !ok {
			th = &HospitalThread{HospitalID: *c.HospitalID, HospitalName: m.names[*c.HospitalID]}
			byHospital[*c.HospitalID] = th
		}
		if th.LastComment == nil || newer(c, th.LastComment) {
			th.LastComment = c
		}
		if !c.IsRead && c.CreatedBy != reader {
			th.UnreadCount++
		}
	}
	var out []*HospitalThread
	for _, th := range byHospital {
		out = append(out, th)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].LastComment, out[j].LastComment) })
	return out, nil
}

type mockUsers struct{ items map[uuid.UUID]*users.User }

func (m *mockUsers) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	u, ok := m.items[id]
	if !ok {
		return nil, apperror.NotFound("user", id.String())
	}
	return u, nil
}

type recorder struct {
	mu     sync.Mutex
	events []sideeffect.Event
}

func (r *recorder) Record(_ context.Context, ev sideeffect.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Message
	}
	return out
}

// -- Fixture --

type fixture struct {
	deps         Deps
	enhancements *EnhancementService
	queries      *QueryService
	comments     *CommentService
	events       *recorder
	docs         *mockDocs
	commentRepo  *mockComments
	store        *blobstore.MemoryStore

	hospital      auth.Actor
	otherHospital auth.Actor
	manager       auth.Actor
	admin         auth.Actor
	superAdmin    auth.Actor
	claim         *claims.Claim
	otherClaim    *claims.Claim
}

func newFixture() *fixture {
	f := &fixture{
		events: &recorder{},
		docs:   &mockDocs{items: make(map[uuid.UUID]*documents.Document)},
		store:  blobstore.NewMemoryStore("claims"),
	}
	f.hospital = auth.Actor{ID: uuid.New(), Role: auth.RoleHospital, Name: "City Hospital"}
	f.otherHospital = auth.Actor{ID: uuid.New(), Role: auth.RoleHospital, Name: "Lake Clinic"}
	f.manager = auth.Actor{ID: uuid.New(), Role: auth.RoleHospitalManager, Name: "Meera", HospitalID: &f.hospital.ID}
	f.admin = auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin, Name: "Ravi"}
	f.superAdmin = auth.Actor{ID: uuid.New(), Role: auth.RoleSuperAdmin, Name: "Asha"}

	f.claim = &claims.Claim{ID: uuid.New(), RefNumber: "CLM-00001", Status: claims.StatusPending,
		HospitalUserID: f.hospital.ID, AssignedTo: &f.admin.ID}
	f.otherClaim = &claims.Claim{ID: uuid.New(), RefNumber: "CLM-00002", Status: claims.StatusPending,
		HospitalUserID: f.otherHospital.ID}

	names := make(map[uuid.UUID]string)
	dir := &mockUsers{items: make(map[uuid.UUID]*users.User)}
	for _, a := range []auth.Actor{f.hospital, f.otherHospital, f.manager, f.admin, f.superAdmin} {
		names[a.ID] = a.Name
		dir.items[a.ID] = &users.User{ID: a.ID, Name: a.Name, Role: a.Role}
	}
	f.commentRepo = &mockComments{
		clock: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		claimHospital: map[uuid.UUID]uuid.UUID{
			f.claim.ID:      f.hospital.ID,
			f.otherClaim.ID: f.otherHospital.ID,
		},
		names: names,
	}

	f.deps = Deps{
		Tx:           db.InlineTxManager{},
		Claims:       &mockClaims{items: map[uuid.UUID]*claims.Claim{f.claim.ID: f.claim, f.otherClaim.ID: f.otherClaim}},
		Enhancements: &mockEnhancements{items: make(map[uuid.UUID]*claims.Enhancement)},
		Queries:      &mockQueries{items: make(map[uuid.UUID]*claims.Query)},
		Documents:    f.docs,
		Comments:     f.commentRepo,
		Users:        dir,
		Effects:      f.events,
		Presigner:    f.store,
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.enhancements = NewEnhancementService(f.deps)
	f.queries = NewQueryService(f.deps)
	f.comments = NewCommentService(f.deps)
}

func oneDoc(name string) []documents.Input {
	return []documents.Input{{FileName: name, Type: documents.TypeBill}}
}

func (f *fixture) createEnhancement(t *testing.T) *EnhancementMutation {
	t.Helper()
	m, err := f.enhancements.Create(context.Background(), f.hospital, EnhancementCreateInput{
		InsuranceRequestID: f.claim.ID,
		NumberOfDays:       3,
		Documents:          oneDoc("documents/enh.pdf"),
	})
	if err != nil {
		t.Fatalf("create enhancement: %v", err)
	}
	return m
}

// -- Enhancements --

func TestEnhancementService_Create(t *testing.T) {
	f := newFixture()
	m := f.createEnhancement(t)

	if m.Status != claims.EnhancementPending {
		t.Errorf("expected PENDING, got %s", m.Status)
	}
	if m.RefNumber != "CLM-00001" || m.NumberOfDays != 3 {
		t.Errorf("unexpected mutation %+v", m)
	}
	if len(m.Documents) != 1 {
		t.Fatalf("expected 1 document, got %d", len(m.Documents))
	}
	if k := m.Documents[0].Owner().Kind(); k != documents.OwnerEnhancement {
		t.Errorf("expected enhancement owner, got %s", k)
	}

	msgs := f.events.messages()
	want := []string{
		"City Hospital requested an enhancement for CLM-00001",
		"City Hospital uploaded 1 document(s) for enhancement on CLM-00001",
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %v, got %v", want, msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], msgs[i])
		}
	}
	if f.events.events[0].Grade != sideeffect.GradeNotify || f.events.events[1].Grade != sideeffect.GradeSystem {
		t.Errorf("unexpected grades %s, %s", f.events.events[0].Grade, f.events.events[1].Grade)
	}
}

func TestEnhancementService_Create_Rejects(t *testing.T) {
	f := newFixture()
	approved := claims.EnhancementApproved
	tests := []struct {
		name  string
		actor auth.Actor
		in    EnhancementCreateInput
		want  apperror.Kind
	}{
		{"explicit status", f.hospital, EnhancementCreateInput{InsuranceRequestID: f.claim.ID, NumberOfDays: 2, Status: &approved, Documents: oneDoc("a.pdf")}, apperror.KindInvalidState},
		{"zero days", f.hospital, EnhancementCreateInput{InsuranceRequestID: f.claim.ID, Documents: oneDoc("a.pdf")}, apperror.KindInvalidState},
		{"no documents", f.hospital, EnhancementCreateInput{InsuranceRequestID: f.claim.ID, NumberOfDays: 2}, apperror.KindInvalidState},
		{"unknown claim", f.hospital, EnhancementCreateInput{InsuranceRequestID: uuid.New(), NumberOfDays: 2, Documents: oneDoc("a.pdf")}, apperror.KindInvalidReference},
		{"other hospital", f.otherHospital, EnhancementCreateInput{InsuranceRequestID: f.claim.ID, NumberOfDays: 2, Documents: oneDoc("a.pdf")}, apperror.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.enhancements.Create(context.Background(), tt.actor, tt.in)
			if !apperror.Is(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
	if len(f.events.events) != 0 {
		t.Errorf("rejected creates must not emit events, got %v", f.events.messages())
	}
}

func TestEnhancementService_Update(t *testing.T) {
	f := newFixture()
	m := f.createEnhancement(t)
	f.events.events = nil

	sent := claims.EnhancementSentToTPA
	out, err := f.enhancements.Update(context.Background(), f.admin, m.ID, EnhancementUpdateInput{
		Status:    &sent,
		Documents: []documents.Input{{ID: &m.Documents[0].ID, FileName: "documents/enh-v2.pdf", Type: documents.TypeBill}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != claims.EnhancementSentToTPA {
		t.Errorf("expected SENT_TO_TPA, got %s", out.Status)
	}
	msgs := strings.Join(f.events.messages(), "|")
	for _, want := range []string{
		"Ravi updated enhancement for CLM-00001",
		"Ravi updated enhancement status from PENDING to SENT_TO_TPA for CLM-00001",
		"Ravi modified 1 document(s) for enhancement on CLM-00001",
	} {
		if !strings.Contains(msgs, want) {
			t.Errorf("missing %q in %s", want, msgs)
		}
	}
}

func TestEnhancementService_Update_RejectsClaimDocument(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.createEnhancement(t)
	seeded, err := documents.NewManager(f.docs).Apply(ctx, documents.ClaimOwner(f.claim.ID), f.hospital.ID, oneDoc("documents/icp.pdf"))
	if err != nil {
		t.Fatalf("seed claim document: %v", err)
	}
	claimDoc := seeded.Created[0].ID
	f.events.events = nil

	_, err = f.enhancements.Update(ctx, f.hospital, m.ID, EnhancementUpdateInput{
		Documents: []documents.Input{{ID: &claimDoc, FileName: "documents/icp-v2.pdf", Type: documents.TypeBill}},
	})
	if !apperror.Is(err, apperror.KindInvalidReference) {
		t.Fatalf("expected InvalidReference, got %v", err)
	}
	if got := f.docs.items[claimDoc].FileName; got != "documents/icp.pdf" {
		t.Errorf("claim document was modified: %s", got)
	}
	for _, msg := range f.events.messages() {
		if strings.Contains(msg, "modified") {
			t.Errorf("unexpected event %q", msg)
		}
	}
}

func TestEnhancementService_Update_KeepsStatusCommittedBeforeLock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	m := f.createEnhancement(t)

	approved := claims.EnhancementApproved
	f.deps.Enhancements.(*mockEnhancements).beforeLock = func() {
		if _, err := f.enhancements.Update(ctx, f.admin, m.ID, EnhancementUpdateInput{Status: &approved}); err != nil {
			t.Errorf("concurrent status change: %v", err)
		}
	}
	notes := "extended stay for observation"
	out, err := f.enhancements.Update(ctx, f.hospital, m.ID, EnhancementUpdateInput{Notes: &notes})
	if err != nil {
		t.Fatalf("notes edit: %v", err)
	}
	if out.Status != claims.EnhancementApproved {
		t.Errorf("expected committed %s to survive the notes edit, got %s", claims.EnhancementApproved, out.Status)
	}
	stored, _ := f.deps.Enhancements.GetByID(ctx, m.ID)
	if stored.Status != claims.EnhancementApproved || stored.Notes == nil || *stored.Notes != notes {
		t.Errorf("unexpected stored enhancement: status %s, notes %v", stored.Status, stored.Notes)
	}
}

func TestEnhancementService_Update_Rejects(t *testing.T) {
	f := newFixture()
	m := f.createEnhancement(t)

	bogus := claims.EnhancementStatus("SETTLED")
	if _, err := f.enhancements.Update(context.Background(), f.admin, m.ID, EnhancementUpdateInput{Status: &bogus}); !apperror.Is(err, apperror.KindInvalidState) {
		t.Errorf("expected invalid state, got %v", err)
	}
	if _, err := f.enhancements.Update(context.Background(), f.admin, uuid.New(), EnhancementUpdateInput{}); !apperror.Is(err, apperror.KindInvalidReference) {
		t.Errorf("expected invalid reference, got %v", err)
	}
	if _, err := f.enhancements.Update(context.Background(), f.otherHospital, m.ID, EnhancementUpdateInput{}); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestEnhancementService_Get(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	key := blobstore.NewKey("enh.pdf")
	if err := f.store.Put(ctx, key, strings.NewReader("pdf"), 3, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	m, err := f.enhancements.Create(ctx, f.hospital, EnhancementCreateInput{
		InsuranceRequestID: f.claim.ID, NumberOfDays: 1, Documents: oneDoc(key),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.queries.Create(ctx, f.admin, QueryCreateInput{
		InsuranceRequestID: f.claim.ID, EnhancementID: &m.ID, Documents: oneDoc("documents/query.pdf"),
	}); err != nil {
		t.Fatalf("create query: %v", err)
	}

	d, err := f.enhancements.Get(ctx, f.hospital, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(d.Documents) != 1 || d.Documents[0].URL == "" {
		t.Errorf("expected one presigned enhancement document, got %+v", d.Documents)
	}
	if len(d.Queries) != 1 || len(d.Queries[0].Documents) != 1 {
		t.Errorf("expected the enhancement query with its document, got %+v", d.Queries)
	}
}

// -- Queries --

func TestQueryService_Create_Rejects(t *testing.T) {
	f := newFixture()
	resolved := true
	remarks := "done"
	foreign := &claims.Enhancement{InsuranceRequestID: f.otherClaim.ID, NumberOfDays: 1}
	_ = f.deps.Enhancements.Create(context.Background(), foreign)
	missing := uuid.New()

	tests := []struct {
		name string
		in   QueryCreateInput
		want apperror.Kind
	}{
		{"isResolved", QueryCreateInput{InsuranceRequestID: f.claim.ID, IsResolved: &resolved}, apperror.KindInvalidState},
		{"resolvedRemarks", QueryCreateInput{InsuranceRequestID: f.claim.ID, ResolvedRemarks: &remarks}, apperror.KindInvalidState},
		{"enhancement of other claim", QueryCreateInput{InsuranceRequestID: f.claim.ID, EnhancementID: &foreign.ID}, apperror.KindInvalidReference},
		{"unknown enhancement", QueryCreateInput{InsuranceRequestID: f.claim.ID, EnhancementID: &missing}, apperror.KindInvalidReference},
		{"unknown claim", QueryCreateInput{InsuranceRequestID: uuid.New()}, apperror.KindInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.queries.Create(context.Background(), f.admin, tt.in)
			if !apperror.Is(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
}

func TestQueryService_Create(t *testing.T) {
	f := newFixture()
	enh := f.createEnhancement(t)
	f.events.events = nil

	top, err := f.queries.Create(context.Background(), f.admin, QueryCreateInput{InsuranceRequestID: f.claim.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(top.Documents) != 0 {
		t.Errorf("expected no documents, got %d", len(top.Documents))
	}
	if msgs := f.events.messages(); len(msgs) != 1 || msgs[0] != "Ravi raised a query on CLM-00001" {
		t.Errorf("unexpected events %v", msgs)
	}

	nested, err := f.queries.Create(context.Background(), f.admin, QueryCreateInput{
		InsuranceRequestID: f.claim.ID, EnhancementID: &enh.ID, Documents: oneDoc("documents/q.pdf"),
	})
	if err != nil {
		t.Fatalf("create nested: %v", err)
	}
	if k := nested.Documents[0].Owner().Kind(); k != documents.OwnerEnhancementQuery {
		t.Errorf("expected enhancement query owner, got %s", k)
	}
	if last := f.events.messages()[len(f.events.events)-1]; last != "Ravi uploaded 1 document(s) for enhancement query on CLM-00001" {
		t.Errorf("unexpected upload event %q", last)
	}
}

// notificationStore counts notification rows per recipient.
type notificationStore struct {
	mu    sync.Mutex
	perTo map[uuid.UUID][]string
}

func (s *notificationStore) InsertActivity(context.Context, uuid.UUID, string, string, uuid.UUID) error {
	return nil
}

func (s *notificationStore) InsertNotifications(_ context.Context, userIDs []uuid.UUID, message string) ([]notification.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Message, 0, len(userIDs))
	for _, id := range userIDs {
		s.perTo[id] = append(s.perTo[id], message)
		out = append(out, notification.Message{ID: uuid.New(), UserID: id, Text: message})
	}
	return out, nil
}

func (s *notificationStore) InsertSystemComment(context.Context, uuid.UUID, uuid.UUID, string) error {
	return nil
}

func TestQueryService_ResolveNotifiesEachCounterpartOnce(t *testing.T) {
	f := newFixture()
	q, err := f.queries.Create(context.Background(), f.admin, QueryCreateInput{InsuranceRequestID: f.claim.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store := &notificationStore{perTo: make(map[uuid.UUID][]string)}
	pub := &notification.MemoryPublisher{}
	f.deps.Effects = sideeffect.NewPipeline(db.InlineTxManager{}, store, pub, telemetry.NewMetrics(), zerolog.Nop())
	f.rebuild()

	resolved := true
	remarks := "policy copy received"
	for i := 0; i < 2; i++ {
		if _, err := f.queries.Update(context.Background(), f.superAdmin, q.ID, QueryUpdateInput{IsResolved: &resolved, ResolvedRemarks: &remarks}); err != nil {
			t.Fatalf("resolve #%d: %v", i+1, err)
		}
	}

	want := "Asha marked query as resolved for CLM-00001"
	for _, id := range []uuid.UUID{f.admin.ID, f.hospital.ID} {
		got := store.perTo[id]
		if len(got) != 1 || got[0] != want {
			t.Errorf("recipient %s: expected exactly one %q, got %v", id, want, got)
		}
	}
	if len(store.perTo) != 2 {
		t.Errorf("expected 2 recipients, got %d", len(store.perTo))
	}
	if len(pub.Sent()) != 2 {
		t.Errorf("expected 2 published notifications, got %d", len(pub.Sent()))
	}
}

func TestQueryService_Update_KeepsResolutionCommittedBeforeLock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q, err := f.queries.Create(ctx, f.admin, QueryCreateInput{InsuranceRequestID: f.claim.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved := true
	f.deps.Queries.(*mockQueries).beforeLock = func() {
		if _, err := f.queries.Update(ctx, f.admin, q.ID, QueryUpdateInput{IsResolved: &resolved}); err != nil {
			t.Errorf("concurrent resolve: %v", err)
		}
	}
	notes := "discharge card attached"
	if _, err := f.queries.Update(ctx, f.hospital, q.ID, QueryUpdateInput{Notes: &notes}); err != nil {
		t.Fatalf("notes edit: %v", err)
	}

	stored, _ := f.deps.Queries.GetByID(ctx, q.ID)
	if !stored.IsResolved {
		t.Error("notes edit reopened a query resolved before it took the lock")
	}
	if stored.Notes == nil || *stored.Notes != notes {
		t.Errorf("expected notes %q, got %v", notes, stored.Notes)
	}
}

// The acting user is never notified of their own action, so a hospital
// resolving its own query notifies only the assignee.
func TestQueryService_ResolveByHospitalNotifiesAssigneeOnly(t *testing.T) {
	f := newFixture()
	q, err := f.queries.Create(context.Background(), f.admin, QueryCreateInput{InsuranceRequestID: f.claim.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store := &notificationStore{perTo: make(map[uuid.UUID][]string)}
	f.deps.Effects = sideeffect.NewPipeline(db.InlineTxManager{}, store, &notification.MemoryPublisher{}, telemetry.NewMetrics(), zerolog.Nop())
	f.rebuild()

	resolved := true
	if _, err := f.queries.Update(context.Background(), f.hospital, q.ID, QueryUpdateInput{IsResolved: &resolved}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := "City Hospital marked query as resolved for CLM-00001"
	if got := store.perTo[f.admin.ID]; len(got) != 1 || got[0] != want {
		t.Errorf("assignee: expected exactly one %q, got %v", want, got)
	}
	if got := store.perTo[f.hospital.ID]; len(got) != 0 {
		t.Errorf("hospital resolved the query itself and should get nothing, got %v", got)
	}
}

// -- Comments --

func TestCommentService_Create_Rejects(t *testing.T) {
	f := newFixture()
	otherHospital := f.otherHospital.ID
	tests := []struct {
		name  string
		actor auth.Actor
		in    CommentInput
		want  apperror.Kind
	}{
		{"system", f.admin, CommentInput{Text: "x", Type: visibility.CommentSystem, InsuranceRequestID: &f.claim.ID}, apperror.KindInvalidState},
		{"both targets", f.admin, CommentInput{Text: "x", Type: visibility.CommentNote, InsuranceRequestID: &f.claim.ID, HospitalID: &f.hospital.ID}, apperror.KindInvalidState},
		{"no target", f.admin, CommentInput{Text: "x", Type: visibility.CommentNote}, apperror.KindInvalidState},
		{"unknown type", f.admin, CommentInput{Text: "x", Type: "RANT", InsuranceRequestID: &f.claim.ID}, apperror.KindInvalidState},
		{"note on hospital", f.admin, CommentInput{Text: "x", Type: visibility.CommentNote, HospitalID: &f.hospital.ID}, apperror.KindInvalidState},
		{"hospital note on claim", f.admin, CommentInput{Text: "x", Type: visibility.CommentHospitalNote, InsuranceRequestID: &f.claim.ID}, apperror.KindInvalidState},
		{"hospital writes note", f.hospital, CommentInput{Text: "x", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID}, apperror.KindForbidden},
		{"manager other hospital", f.manager, CommentInput{Text: "x", Type: visibility.CommentHospitalNote, HospitalID: &otherHospital}, apperror.KindForbidden},
		{"note to non hospital", f.admin, CommentInput{Text: "x", Type: visibility.CommentHospitalNote, HospitalID: &f.admin.ID}, apperror.KindInvalidReference},
		{"foreign claim", f.hospital, CommentInput{Text: "x", Type: visibility.CommentNote, InsuranceRequestID: &f.otherClaim.ID}, apperror.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.comments.Create(context.Background(), tt.actor, tt.in)
			if !apperror.Is(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
	if len(f.commentRepo.items) != 0 {
		t.Errorf("rejected comments must not be stored, got %d", len(f.commentRepo.items))
	}
}

func TestCommentService_Create(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	onClaim, err := f.comments.Create(ctx, f.hospital, CommentInput{Text: "bill attached", Type: visibility.CommentNote, InsuranceRequestID: &f.claim.ID})
	if err != nil {
		t.Fatalf("claim comment: %v", err)
	}
	if !onClaim.IsRead {
		t.Error("claim comments start read")
	}
	note, err := f.comments.Create(ctx, f.manager, CommentInput{Text: "call me", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})
	if err != nil {
		t.Fatalf("hospital note: %v", err)
	}
	if note.IsRead {
		t.Error("hospital notes start unread")
	}

	if len(f.events.events) != 2 {
		t.Fatalf("expected 2 audit events, got %v", f.events.messages())
	}
	for _, ev := range f.events.events {
		if ev.Grade != sideeffect.GradeAudit || ev.TargetType != sideeffect.TargetComment {
			t.Errorf("unexpected event %+v", ev)
		}
	}
	if f.events.events[0].Message != "City Hospital commented on CLM-00001" {
		t.Errorf("unexpected message %q", f.events.events[0].Message)
	}
}

func TestCommentService_List_CursorPagination(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if _, err := f.comments.Create(ctx, f.admin, CommentInput{Text: "c", Type: visibility.CommentNote, InsuranceRequestID: &f.claim.ID}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	seen := make(map[uuid.UUID]bool)
	var cursor *uuid.UUID
	sizes := []int{}
	for {
		page, err := f.comments.List(ctx, f.hospital, CommentFilter{
			CommentRequest: visibility.CommentRequest{InsuranceRequestID: &f.claim.ID},
			Cursor:         cursor,
		})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		sizes = append(sizes, len(page.Data))
		for i, c := range page.Data {
			if seen[c.ID] {
				t.Fatalf("comment %s returned twice", c.ID)
			}
			seen[c.ID] = true
			if i > 0 && !newer(page.Data[i-1], c) {
				t.Errorf("page not ordered newest first at %d", i)
			}
			if c.Creator == nil || c.Creator.Name != "Ravi" {
				t.Errorf("expected creator Ravi, got %+v", c.Creator)
			}
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Errorf("expected pages of 10, 10, 5, got %v", sizes)
	}

	page, err := f.comments.List(ctx, f.admin, CommentFilter{Take: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Data) != 25 {
		t.Errorf("expected all 25 under the cap, got %d", len(page.Data))
	}
}

func TestCommentService_List_Scope(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.comments.Create(ctx, f.admin, CommentInput{Text: "a", Type: visibility.CommentNote, InsuranceRequestID: &f.claim.ID})
	_, _ = f.comments.Create(ctx, f.admin, CommentInput{Text: "b", Type: visibility.CommentNote, InsuranceRequestID: &f.otherClaim.ID})
	_, _ = f.comments.Create(ctx, f.admin, CommentInput{Text: "c", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})

	if _, err := f.comments.List(ctx, f.hospital, CommentFilter{}); !apperror.Is(err, apperror.KindInvalidState) {
		t.Errorf("expected invalid state without claim filter, got %v", err)
	}
	if _, err := f.comments.List(ctx, f.hospital, CommentFilter{CommentRequest: visibility.CommentRequest{InsuranceRequestID: &f.otherClaim.ID}}); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden for foreign claim, got %v", err)
	}

	page, err := f.comments.List(ctx, f.manager, CommentFilter{})
	if err != nil {
		t.Fatalf("manager list: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].Type != visibility.CommentHospitalNote {
		t.Errorf("manager default view is its hospital thread, got %+v", page.Data)
	}

	page, err = f.comments.List(ctx, f.admin, CommentFilter{})
	if err != nil || len(page.Data) != 3 {
		t.Errorf("admin sees every comment, got %d (%v)", len(page.Data), err)
	}
}

func TestCommentService_MarkRead_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.comments.Create(ctx, f.admin, CommentInput{Text: "n", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})
	}
	_, _ = f.comments.Create(ctx, f.manager, CommentInput{Text: "mine", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})

	first, err := f.comments.MarkReadManagerThreads(ctx, f.manager)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if first.Count != 3 {
		t.Errorf("expected 3, got %d", first.Count)
	}
	second, err := f.comments.MarkReadManagerThreads(ctx, f.manager)
	if err != nil || second.Count != 0 {
		t.Errorf("expected count 0 on repeat, got %+v (%v)", second, err)
	}

	byAdmin, err := f.comments.MarkReadForHospital(ctx, f.admin, f.hospital.ID)
	if err != nil || byAdmin.Count != 1 {
		t.Errorf("admin should flip the manager's note only, got %+v (%v)", byAdmin, err)
	}
	again, _ := f.comments.MarkReadForHospital(ctx, f.admin, f.hospital.ID)
	if again.Count != 0 {
		t.Errorf("expected 0 on repeat, got %d", again.Count)
	}
}

func TestCommentService_MarkRead_Rejects(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.comments.MarkReadManagerThreads(ctx, f.admin); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden for admin, got %v", err)
	}
	if _, err := f.comments.MarkReadForHospital(ctx, f.hospital, f.hospital.ID); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden for hospital, got %v", err)
	}
	if _, err := f.comments.MarkReadForHospital(ctx, f.manager, f.otherHospital.ID); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden for other hospital, got %v", err)
	}
	if _, err := f.comments.MarkReadForClaim(ctx, f.hospital, f.otherClaim.RefNumber); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden for foreign claim, got %v", err)
	}
}

func TestCommentService_MarkReadForClaim(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c, _ := f.comments.Create(ctx, f.admin, CommentInput{Text: "x", Type: visibility.CommentNote, InsuranceRequestID: &f.claim.ID})
	f.commentRepo.items[0].IsRead = false

	n, err := f.comments.MarkReadForClaim(ctx, f.hospital, f.claim.RefNumber)
	if err != nil || n.Count != 1 {
		t.Errorf("expected 1, got %+v (%v)", n, err)
	}
	n, _ = f.comments.MarkReadForClaim(ctx, f.hospital, f.claim.RefNumber)
	if n.Count != 0 {
		t.Errorf("expected 0 on repeat, got %d", n.Count)
	}
	if got, _ := f.commentRepo.GetByID(ctx, c.ID); !got.IsRead {
		t.Error("expected comment to be read")
	}
}

func TestCommentService_ListHospitalsWithManagerComments(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _ = f.comments.Create(ctx, f.manager, CommentInput{Text: "first", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})
	_, _ = f.comments.Create(ctx, f.admin, CommentInput{Text: "other", Type: visibility.CommentHospitalNote, HospitalID: &f.otherHospital.ID})
	_, _ = f.comments.Create(ctx, f.manager, CommentInput{Text: "latest", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})

	threads, err := f.comments.ListHospitalsWithManagerComments(ctx, f.admin)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}
	if threads[0].HospitalID != f.hospital.ID || threads[0].LastComment.Text != "latest" {
		t.Errorf("expected City Hospital first with latest note, got %+v", threads[0])
	}
	if threads[0].UnreadCount != 2 {
		t.Errorf("expected 2 unread, got %d", threads[0].UnreadCount)
	}
	if threads[1].UnreadCount != 0 {
		t.Errorf("own notes are never unread, got %d", threads[1].UnreadCount)
	}

	if _, err := f.comments.ListHospitalsWithManagerComments(ctx, f.manager); !apperror.Is(err, apperror.KindForbidden) {
		t.Errorf("expected forbidden for manager, got %v", err)
	}
}

// -- Handler tests --

func newTestServer(f *fixture, actor auth.Actor) *echo.Echo {
	e := echo.New()
	e.Validator = httpx.NewValidator()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithActor(c.Request().Context(), actor)))
			return next(c)
		}
	})
	NewHandler(f.enhancements, f.queries, f.comments).RegisterRoutes(api, auth.NewPermissionSet(auth.DefaultRolePermissions()))
	return e
}

func TestHandler_CreateComment_SystemRejected(t *testing.T) {
	f := newFixture()
	e := newTestServer(f, f.admin)

	body := `{"text":"hello","type":"SYSTEM","insuranceRequestId":"` + f.claim.ID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/comments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_CreateEnhancement_StatusRejected(t *testing.T) {
	f := newFixture()
	e := newTestServer(f, f.hospital)

	body := `{"insuranceRequestId":"` + f.claim.ID.String() + `","numberOfDays":2,"status":"APPROVED","documents":[{"fileName":"a.pdf","type":"BILL"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enhancements", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ListManagerThreads_RequiresAdmin(t *testing.T) {
	f := newFixture()
	e := newTestServer(f, f.hospital)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/comments/list_manager_comments", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_MarkReadManager(t *testing.T) {
	f := newFixture()
	_, _ = f.comments.Create(context.Background(), f.admin, CommentInput{Text: "n", Type: visibility.CommentHospitalNote, HospitalID: &f.hospital.ID})
	e := newTestServer(f, f.manager)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/comments/markRead/manager", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("expected count 1, got %s", rec.Body.String())
	}
}
