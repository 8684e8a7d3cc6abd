package users

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
	g := api.Group("/users", perms.Require(auth.PermUserRead))
	g.GET("/me", h.Me)
	g.GET("/dropdown", h.Dropdown)
	g.GET("", h.List, perms.Require(auth.PermUserList))
	g.GET("/:id", h.Get, perms.Require(auth.PermUserList))
	g.PATCH("/:id", h.Update, perms.Require(auth.PermUserUpdate))
	g.DELETE("/:id", h.Delete, perms.Require(auth.PermUserDelete))
}

// Me returns the directory entry of the caller.
func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	u, err := h.svc.GetByID(ctx, actor.ID)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Dropdown(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	opts, err := h.svc.Dropdown(ctx, actor, DropdownFilter{
		Search: c.QueryParam("search"),
		Role:   auth.Role(c.QueryParam("role")),
	})
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, opts)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, ListFilter{
		Name:  c.QueryParam("name"),
		Email: c.QueryParam("email"),
		Role:  auth.Role(c.QueryParam("role")),
	}, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.GetByID(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	u, err := h.svc.Update(ctx, actor, id, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.Delete(ctx, actor, id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}
