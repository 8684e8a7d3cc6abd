package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one in-app message addressed to a single user. Rows are
// written by the side-effect pipeline; this package only reads and acks them.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"isRead"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type Filter struct {
	IsRead    *bool
	Skip      int
	Take      int
	SortOrder SortOrder
}

type Page struct {
	Total int             `json:"total"`
	Data  []*Notification `json:"data"`
}

// MarkReadInput selects the rows to acknowledge: every unread row of the
// caller, or the listed ids. Exactly one mode must be chosen.
type MarkReadInput struct {
	MarkAllRead bool        `json:"markAllRead"`
	IDs         []uuid.UUID `json:"ids" validate:"omitempty,max=100,dive,notnil_uuid"`
}

type Count struct {
	Count int `json:"count"`
}
