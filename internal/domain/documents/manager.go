package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/blobstore"
)

// Manager attaches document batches to an owner. It runs inside the
// caller's transaction; a batch is either applied completely or the
// caller's unit of work fails.
type Manager struct {
	repo Repository
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// Validate checks a batch without touching the store.
func Validate(inputs []Input) error {
	for i, in := range inputs {
		if strings.TrimSpace(in.FileName) == "" {
			return apperror.InvalidState(fmt.Sprintf("documents[%d].fileName", i), "documents[%d].fileName is required", i)
		}
		if !in.Type.Valid() {
			return apperror.InvalidState(fmt.Sprintf("documents[%d].type", i), "invalid document type: %s", in.Type)
		}
		if in.ID != nil && *in.ID == uuid.Nil {
			return apperror.InvalidState(fmt.Sprintf("documents[%d].id", i), "documents[%d].id must not be empty", i)
		}
	}
	return nil
}

// Apply creates the entries without an id under owner and edits the
// entries with one. An edited document must already belong to owner, so a
// claim batch cannot touch an enhancement's files or the reverse. Fewer
// rows created than requested is a DependencyFailure.
func (m *Manager) Apply(ctx context.Context, owner Owner, uploadedBy uuid.UUID, inputs []Input) (*Result, error) {
	if !owner.Valid() {
		return nil, fmt.Errorf("document owner is not set")
	}
	if err := Validate(inputs); err != nil {
		return nil, err
	}

	var fresh, edits []Input
	for _, in := range inputs {
		if in.ID == nil {
			fresh = append(fresh, in)
		} else {
			edits = append(edits, in)
		}
	}

	res := &Result{}
	if len(fresh) > 0 {
		docs := make([]*Document, 0, len(fresh))
		for _, in := range fresh {
			d := &Document{
				FileName:   strings.TrimSpace(in.FileName),
				Type:       in.Type,
				Remark:     nonEmpty(in.Remark),
				UploadedBy: uploadedBy,
			}
			d.setOwner(owner)
			docs = append(docs, d)
		}
		n, err := m.repo.CreateMany(ctx, docs)
		if err != nil {
			return nil, apperror.FromStore(err, "document")
		}
		if n < len(docs) {
			return nil, apperror.DependencyFailure("created %d of %d document(s)", n, len(docs))
		}
		res.Created = docs
	}

	for _, in := range edits {
		d, err := m.repo.GetByID(ctx, *in.ID)
		if err != nil {
			if apperror.Is(apperror.FromStore(err, "document"), apperror.KindNotFound) {
				return nil, apperror.InvalidReference("document", *in.ID)
			}
			return nil, err
		}
		if d.Owner() != owner {
			return nil, apperror.InvalidReference("document", *in.ID)
		}
		d.FileName = strings.TrimSpace(in.FileName)
		d.Type = in.Type
		if r := nonEmpty(in.Remark); r != nil {
			d.Remark = r
		}
		d.UploadedBy = uploadedBy
		if err := m.repo.Update(ctx, d); err != nil {
			return nil, apperror.FromStore(err, "document")
		}
		res.Updated = append(res.Updated, d)
	}
	return res, nil
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Presign attaches a download link to every document. Documents whose
// object is missing are returned without a link.
func Presign(ctx context.Context, p blobstore.Presigner, ttl time.Duration, docs []*Document) error {
	for _, d := range docs {
		u, err := p.PresignedURL(ctx, d.FileName, ttl)
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("presign %s: %w", d.ID, err)
		}
		d.URL = u
	}
	return nil
}
