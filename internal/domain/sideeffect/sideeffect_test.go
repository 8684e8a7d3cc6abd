package sideeffect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/notification"
	"github.com/claimdesk/claimdesk/internal/platform/telemetry"
)

// -- Mock Store --

type activityRow struct {
	userID     uuid.UUID
	action     string
	targetType string
	targetID   uuid.UUID
}

type commentRow struct {
	claimID   uuid.UUID
	createdBy uuid.UUID
	text      string
}

// mockStore stages writes and only keeps them when the surrounding
// transaction commits.
type mockStore struct {
	mu            sync.Mutex
	failStage     string
	activity      []activityRow
	notifications []notification.Message
	comments      []commentRow

	pendingActivity      []activityRow
	pendingNotifications []notification.Message
	pendingComments      []commentRow
}

func (m *mockStore) InsertActivity(_ context.Context, userID uuid.UUID, action, targetType string, targetID uuid.UUID) error {
	if m.failStage == "activity" {
		return errors.New("activity insert failed")
	}
	m.pendingActivity = append(m.pendingActivity, activityRow{userID, action, targetType, targetID})
	return nil
}

func (m *mockStore) InsertNotifications(_ context.Context, userIDs []uuid.UUID, message string) ([]notification.Message, error) {
	if m.failStage == "notification" {
		return nil, errors.New("notification insert failed")
	}
	var out []notification.Message
	for _, id := range userIDs {
		out = append(out, notification.Message{ID: uuid.New(), UserID: id, Text: message, CreatedAt: time.Now()})
	}
	m.pendingNotifications = append(m.pendingNotifications, out...)
	return out, nil
}

func (m *mockStore) InsertSystemComment(_ context.Context, claimID, createdBy uuid.UUID, text string) error {
	if m.failStage == "system_comment" {
		return errors.New("comment insert failed")
	}
	m.pendingComments = append(m.pendingComments, commentRow{claimID, createdBy, text})
	return nil
}

// stagingTx commits the mock store's pending rows when fn succeeds.
type stagingTx struct{ store *mockStore }

func (s stagingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	err := fn(ctx)
	if err == nil {
		s.store.activity = append(s.store.activity, s.store.pendingActivity...)
		s.store.notifications = append(s.store.notifications, s.store.pendingNotifications...)
		s.store.comments = append(s.store.comments, s.store.pendingComments...)
	}
	s.store.pendingActivity, s.store.pendingNotifications, s.store.pendingComments = nil, nil, nil
	return err
}

func (s stagingTx) WithinReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestPipeline(store *mockStore, pub notification.Publisher) (*Pipeline, *telemetry.Metrics) {
	m := telemetry.NewMetrics()
	return NewPipeline(stagingTx{store: store}, store, pub, m, zerolog.Nop()), m
}

var actor = auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin, Name: "Asha"}

// -- Helpers --

func TestRecipients(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	got := Recipients(actor.ID, []uuid.UUID{a, uuid.Nil, actor.ID, b, a})
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("expected [%s %s], got %v", a, b, got)
	}
}

func TestCounterparts(t *testing.T) {
	hospital := uuid.New()
	if got := Counterparts(nil, hospital); len(got) != 1 || got[0] != hospital {
		t.Errorf("expected only hospital, got %v", got)
	}
	assignee := uuid.New()
	if got := Counterparts(&assignee, hospital); len(got) != 2 || got[0] != assignee {
		t.Errorf("expected assignee then hospital, got %v", got)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(actor, "created claim %s", "CLM-00001"); got != "Asha created claim CLM-00001" {
		t.Errorf("unexpected message %q", got)
	}
	if got := Describe(auth.Actor{Role: auth.RoleHospital}, "did %s", "x"); got != "HOSPITAL did x" {
		t.Errorf("unexpected fallback %q", got)
	}
}

// -- Pipeline --

func TestRecord_Audit(t *testing.T) {
	store := &mockStore{}
	pub := &notification.MemoryPublisher{}
	p, m := newTestPipeline(store, pub)
	target := uuid.New()

	p.Record(context.Background(), Event{
		Actor:      actor, Grade: GradeAudit, Message: "Asha updated claim CLM-00001",
		TargetType: TargetClaim, TargetID: target, Recipients: []uuid.UUID{uuid.New()},
	})

	if len(store.activity) != 1 || store.activity[0].targetID != target {
		t.Fatalf("expected one activity row, got %+v", store.activity)
	}
	if len(store.notifications) != 0 {
		t.Errorf("audit grade must not notify, got %d", len(store.notifications))
	}
	if len(pub.Sent()) != 0 {
		t.Errorf("expected nothing published, got %d", len(pub.Sent()))
	}
	if got := testutil.ToFloat64(m.SideEffectsApplied.WithLabelValues("audit")); got != 1 {
		t.Errorf("expected applied=1, got %v", got)
	}
}

func TestRecord_Notify(t *testing.T) {
	store := &mockStore{}
	pub := &notification.MemoryPublisher{}
	p, _ := newTestPipeline(store, pub)
	assignee, hospital := uuid.New(), uuid.New()
	claimID := uuid.New()

	p.Record(context.Background(), Event{
		Actor:      actor, Grade: GradeNotify, Message: "Asha raised a query on CLM-00002",
		TargetType: TargetQuery, TargetID: uuid.New(), ClaimID: &claimID,
		Recipients: []uuid.UUID{assignee, hospital, assignee, actor.ID},
	})

	if len(store.notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.notifications))
	}
	if len(store.comments) != 0 {
		t.Errorf("notify grade must not comment, got %d", len(store.comments))
	}
	sent := pub.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 published, got %d", len(sent))
	}
	for _, msg := range sent {
		if msg.ClaimID == nil || *msg.ClaimID != claimID || msg.ActorID != actor.ID {
			t.Errorf("published message missing claim or actor: %+v", msg)
		}
	}
}

func TestRecord_System(t *testing.T) {
	store := &mockStore{}
	p, _ := newTestPipeline(store, nil)
	claimID := uuid.New()

	p.Record(context.Background(), Event{
		Actor:      actor, Grade: GradeSystem, Message: "Asha uploaded 2 document(s) for CLM-00003",
		TargetType: TargetClaim, TargetID: claimID, ClaimID: &claimID,
		Recipients: []uuid.UUID{uuid.New()},
	})

	if len(store.comments) != 1 {
		t.Fatalf("expected 1 system comment, got %d", len(store.comments))
	}
	if store.comments[0].claimID != claimID || store.comments[0].createdBy != actor.ID {
		t.Errorf("unexpected comment %+v", store.comments[0])
	}
	if len(store.notifications) != 1 {
		t.Errorf("expected 1 notification, got %d", len(store.notifications))
	}
}

func TestRecord_FailureRollsBackAndCounts(t *testing.T) {
	for _, stage := range []string{"activity", "notification", "system_comment"} {
		t.Run(stage, func(t *testing.T) {
			store := &mockStore{failStage: stage}
			pub := &notification.MemoryPublisher{}
			p, m := newTestPipeline(store, pub)
			claimID := uuid.New()

			p.Record(context.Background(), Event{
				Actor:      actor, Grade: GradeSystem, Message: "x",
				TargetType: TargetClaim, TargetID: claimID, ClaimID: &claimID,
				Recipients: []uuid.UUID{uuid.New()},
			})

			if len(store.activity)+len(store.notifications)+len(store.comments) != 0 {
				t.Errorf("expected no rows after failure")
			}
			if len(pub.Sent()) != 0 {
				t.Errorf("expected nothing published after failure")
			}
			if got := testutil.ToFloat64(m.SideEffectFailures.WithLabelValues("system")); got != 1 {
				t.Errorf("expected failures=1, got %v", got)
			}
		})
	}
}

func TestRecord_PublishFailureIsCounted(t *testing.T) {
	store := &mockStore{}
	pub := &notification.MemoryPublisher{ShouldFail: true}
	p, m := newTestPipeline(store, pub)

	p.Record(context.Background(), Event{
		Actor:      actor, Grade: GradeNotify, Message: "x",
		TargetType: TargetClaim, TargetID: uuid.New(), Recipients: []uuid.UUID{uuid.New()},
	})

	if len(store.notifications) != 1 {
		t.Errorf("notification rows must survive a publish failure, got %d", len(store.notifications))
	}
	if got := testutil.ToFloat64(m.PublishFailures); got != 1 {
		t.Errorf("expected publish failures=1, got %v", got)
	}
}

func TestRecord_IgnoresCancelledContext(t *testing.T) {
	store := &mockStore{}
	p, _ := newTestPipeline(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.Record(ctx, Event{Actor: actor, Grade: GradeAudit, Message: "x", TargetType: TargetClaim, TargetID: uuid.New()})
	if len(store.activity) != 1 {
		t.Errorf("expected activity row despite cancelled request, got %d", len(store.activity))
	}
}
