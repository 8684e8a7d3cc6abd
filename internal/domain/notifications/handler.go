package notifications

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/httpx"
	"github.com/claimdesk/claimdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, perms *auth.PermissionSet) {
	g := api.Group("/notifications")
	g.GET("", h.List, perms.Require(auth.PermNotificationList))
	g.PATCH("/markRead", h.MarkRead, perms.Require(auth.PermNotificationRead))
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	f := Filter{Skip: p.Offset, Take: p.Limit, SortOrder: SortOrder(c.QueryParam("sortOrder"))}
	if f.IsRead, err = httpx.QueryBool(c, "isRead"); err != nil {
		return err
	}

	page, err := h.svc.List(ctx, actor, f)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in MarkReadInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	n, err := h.svc.MarkRead(ctx, actor, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}
