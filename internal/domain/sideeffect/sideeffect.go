// Package sideeffect records the audit trail and notification fan-out that
// follows a committed claim mutation. Side effects run in their own
// transaction and never fail the mutation that caused them.
package sideeffect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/db"
	"github.com/claimdesk/claimdesk/internal/platform/middleware"
	"github.com/claimdesk/claimdesk/internal/platform/notification"
	"github.com/claimdesk/claimdesk/internal/platform/telemetry"
)

// Grade selects which rows an event produces.
type Grade string

const (
	// GradeAudit writes an activity log entry only.
	GradeAudit Grade = "audit"
	// GradeNotify adds one notification per recipient.
	GradeNotify Grade = "notify"
	// GradeSystem adds a SYSTEM comment on the claim thread as well.
	GradeSystem Grade = "system"
)

// Target types recorded in the activity log.
const (
	TargetClaim       = "InsuranceRequest"
	TargetEnhancement = "Enhancement"
	TargetQuery       = "Query"
	TargetComment     = "Comment"
)

type Event struct {
	Actor      auth.Actor
	Grade      Grade
	Message    string
	TargetType string
	TargetID   uuid.UUID
	ClaimID    *uuid.UUID
	Recipients []uuid.UUID
}

// Describe prefixes msg with the actor's display name.
func Describe(actor auth.Actor, format string, args ...interface{}) string {
	name := actor.Name
	if name == "" {
		name = string(actor.Role)
	}
	return name + " " + fmt.Sprintf(format, args...)
}

// Counterparts returns the parties of a claim other than the actor: the
// assignee and the owning hospital user.
func Counterparts(assignee *uuid.UUID, hospitalUserID uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, 2)
	if assignee != nil {
		out = append(out, *assignee)
	}
	return append(out, hospitalUserID)
}

// Recipients de-duplicates ids, drops nil ids and the actor.
func Recipients(actorID uuid.UUID, ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == actorID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Pipeline writes events through a Store and hands committed notifications
// to a Publisher.
type Pipeline struct {
	tx        db.TxManager
	store     Store
	publisher notification.Publisher
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

// NewPipeline builds a Pipeline. publisher and metrics may be nil.
func NewPipeline(tx db.TxManager, store Store, publisher notification.Publisher, metrics *telemetry.Metrics, logger zerolog.Logger) *Pipeline {
	if publisher == nil {
		publisher = notification.NopPublisher{}
	}
	return &Pipeline{tx: tx, store: store, publisher: publisher, metrics: metrics, logger: logger}
}

// Record writes ev. It must be called after the primary transaction has
// committed, with a context that carries no transaction. Errors are logged
// and counted, never returned.
func (p *Pipeline) Record(ctx context.Context, ev Event) {
	ctx = context.WithoutCancel(ctx)
	recipients := Recipients(ev.Actor.ID, ev.Recipients)

	var sent []notification.Message
	stage := "activity"
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.store.InsertActivity(ctx, ev.Actor.ID, ev.Message, ev.TargetType, ev.TargetID); err != nil {
			return err
		}
		if ev.Grade == GradeAudit {
			return nil
		}

		stage = "notification"
		if len(recipients) > 0 {
			rows, err := p.store.InsertNotifications(ctx, recipients, ev.Message)
			if err != nil {
				return err
			}
			sent = rows
		}
		if ev.Grade != GradeSystem || ev.ClaimID == nil {
			return nil
		}

		stage = "system_comment"
		return p.store.InsertSystemComment(ctx, *ev.ClaimID, ev.Actor.ID, ev.Message)
	})
	if err != nil {
		p.logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Str("stage", stage).
			Str("grade", string(ev.Grade)).
			Str("target_type", ev.TargetType).
			Str("target_id", ev.TargetID.String()).
			Msg("side effect failed")
		if p.metrics != nil {
			p.metrics.SideEffectFailures.WithLabelValues(string(ev.Grade)).Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.SideEffectsApplied.WithLabelValues(string(ev.Grade)).Inc()
	}
	p.publish(ctx, ev, sent)
}

func (p *Pipeline) publish(ctx context.Context, ev Event, rows []notification.Message) {
	if len(rows) == 0 {
		return
	}
	for i := range rows {
		rows[i].ClaimID = ev.ClaimID
		rows[i].ActorID = ev.Actor.ID
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = time.Now().UTC()
		}
	}
	if err := p.publisher.Publish(ctx, rows...); err != nil {
		p.logger.Warn().Err(err).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Int("count", len(rows)).
			Msg("notification publish failed")
		if p.metrics != nil {
			p.metrics.PublishFailures.Inc()
		}
	}
}
