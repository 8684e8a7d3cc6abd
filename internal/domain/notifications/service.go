// Package notifications is the read side of in-app notifications: the
// caller's inbox and its acknowledgement.
package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/db"
	"github.com/claimdesk/claimdesk/pkg/pagination"
)

type Service struct {
	tx   db.TxManager
	repo Repository
}

func NewService(tx db.TxManager, repo Repository) *Service {
	return &Service{tx: tx, repo: repo}
}

// List returns a page of the actor's notifications with the total matching
// the same filter. Both are read in one snapshot.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) (*Page, error) {
	switch f.SortOrder {
	case "":
		f.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return nil, apperror.InvalidState("sortOrder", "sortOrder must be asc or desc, got %s", f.SortOrder)
	}
	if f.Skip < 0 {
		return nil, apperror.InvalidState("skip", "skip must not be negative")
	}
	if f.Take <= 0 {
		f.Take = pagination.DefaultLimit
	}
	if f.Take > pagination.MaxLimit {
		f.Take = pagination.MaxLimit
	}

	page := &Page{Data: []*Notification{}}
	err := s.tx.WithinReadTx(ctx, func(ctx context.Context) error {
		total, err := s.repo.Count(ctx, actor.ID, f.IsRead)
		if err != nil {
			return err
		}
		items, err := s.repo.List(ctx, actor.ID, f)
		if err != nil {
			return err
		}
		page.Total = total
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

// MarkRead acknowledges notifications of the actor. Rows that are already
// read or belong to someone else are not counted.
func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, in MarkReadInput) (*Count, error) {
	if in.MarkAllRead == (len(in.IDs) > 0) {
		return nil, apperror.InvalidState("ids", "set either markAllRead or ids")
	}
	var ids []uuid.UUID
	if !in.MarkAllRead {
		ids = in.IDs
	}

	var n int
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.repo.MarkRead(ctx, actor.ID, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Count{Count: n}, nil
}
