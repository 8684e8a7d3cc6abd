package patients

import (
	"net/http"
	"strconv"

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
	g := api.Group("/patients")
	g.POST("", h.Create, perms.Require(auth.PermPatientCreate))
	g.GET("", h.List, perms.Require(auth.PermPatientList))
	g.GET("/dropdown", h.Dropdown, perms.Require(auth.PermPatientList))
	g.GET("/:id", h.Get, perms.Require(auth.PermPatientRead))
	g.PATCH("/:id", h.Update, perms.Require(auth.PermPatientUpdate))
	g.DELETE("/:id", h.Delete, perms.Require(auth.PermPatientDelete))
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	hospitalID, err := httpx.QueryUUID(c, "hospitalId")
	if err != nil {
		return err
	}
	f := ListFilter{HospitalUserID: hospitalID, Name: c.QueryParam("name")}
	if raw := c.QueryParam("age"); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid age")
		}
		f.Age = &age
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Dropdown(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	hospitalID, err := httpx.QueryUUID(c, "hospitalId")
	if err != nil {
		return err
	}
	opts, err := h.svc.Dropdown(ctx, actor, hospitalID, c.QueryParam("search"))
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, opts)
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
	p, err := h.svc.Update(ctx, actor, id, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
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
	p, err := h.svc.Delete(ctx, actor, id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
