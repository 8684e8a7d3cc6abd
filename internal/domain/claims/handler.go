package claims

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
	g := api.Group("/insurance-requests")
	g.POST("", h.Create, perms.Require(auth.PermClaimCreate))
	g.GET("", h.List, perms.Require(auth.PermClaimList))
	g.GET("/:refNumber", h.FindOne, perms.Require(auth.PermClaimRead))
	g.PATCH("/:refNumber", h.Update, perms.Require(auth.PermClaimUpdate))
	g.PATCH("/:refNumber/assign", h.Assign, perms.Require(auth.PermClaimAssign))
	g.DELETE("/:refNumber", h.Remove, perms.Require(auth.PermClaimDelete))
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
	m, err := h.svc.Create(ctx, actor, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	f := ListFilter{
		RefNumber:        c.QueryParam("refNumber"),
		DoctorName:       c.QueryParam("doctorName"),
		InsuranceCompany: c.QueryParam("insuranceCompany"),
		TPAName:          c.QueryParam("tpaName"),
		AssigneeName:     c.QueryParam("assigneeName"),
		PatientName:      c.QueryParam("patientName"),
	}
	if f.PatientID, err = httpx.QueryUUID(c, "patientId"); err != nil {
		return err
	}
	for _, s := range httpx.QueryList(c, "status") {
		f.Statuses = append(f.Statuses, Status(s))
	}
	if f.CreatedFrom, err = httpx.QueryTime(c, "createdFrom", false); err != nil {
		return err
	}
	if f.CreatedTo, err = httpx.QueryTime(c, "createdTo", true); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) FindOne(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	d, err := h.svc.FindOne(ctx, actor, c.Param("refNumber"))
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	m, err := h.svc.Update(ctx, actor, c.Param("refNumber"), in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Assign(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in AssignInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.Assign(ctx, actor, c.Param("refNumber"), in.AssignedTo)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Remove(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	claim, err := h.svc.Remove(ctx, actor, c.Param("refNumber"))
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, claim)
}
