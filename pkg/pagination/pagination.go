package pagination

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	DefaultTake = 10
	MaxTake     = 50
)

// Params holds offset pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads take/skip, falling back to limit/offset.
func FromContext(c echo.Context) Params {
	limit := firstInt(c, "take", "limit")
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset := firstInt(c, "skip", "offset")
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func firstInt(c echo.Context, names ...string) int {
	for _, n := range names {
		if v, err := strconv.Atoi(c.QueryParam(n)); err == nil && v != 0 {
			return v
		}
	}
	return 0
}

// Response wraps an offset-paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"hasMore"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Cursor holds keyset pagination parameters. After is the id of the last
// row of the previous page.
type Cursor struct {
	After *uuid.UUID
	Take  int
}

// CursorFromContext reads cursor and take. A malformed cursor is ignored and
// the first page is returned.
func CursorFromContext(c echo.Context) Cursor {
	cur := Cursor{Take: ClampTake(firstInt(c, "take"))}
	if raw := c.QueryParam("cursor"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			cur.After = &id
		}
	}
	return cur
}

func ClampTake(take int) int {
	if take <= 0 {
		return DefaultTake
	}
	if take > MaxTake {
		return MaxTake
	}
	return take
}

// CursorResponse wraps a keyset-paginated response. NextCursor is nil on the
// last page.
type CursorResponse struct {
	Data       interface{} `json:"data"`
	NextCursor *uuid.UUID  `json:"nextCursor"`
}
