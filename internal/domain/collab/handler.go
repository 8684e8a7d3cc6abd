package collab

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/claimdesk/claimdesk/internal/domain/visibility"
	"github.com/claimdesk/claimdesk/internal/platform/apperror"
	"github.com/claimdesk/claimdesk/internal/platform/auth"
	"github.com/claimdesk/claimdesk/internal/platform/httpx"
)

type Handler struct {
	enhancements *EnhancementService
	queries      *QueryService
	comments     *CommentService
}

func NewHandler(e *EnhancementService, q *QueryService, c *CommentService) *Handler {
	return &Handler{enhancements: e, queries: q, comments: c}
}

func (h *Handler) RegisterRoutes(api *echo.Group, perms *auth.PermissionSet) {
	eg := api.Group("/enhancements")
	eg.POST("", h.CreateEnhancement, perms.Require(auth.PermEnhancementCreate))
	eg.GET("/:id", h.GetEnhancement, perms.Require(auth.PermEnhancementRead))
	eg.PATCH("/:id", h.UpdateEnhancement, perms.Require(auth.PermEnhancementUpdate))

	qg := api.Group("/queries")
	qg.POST("", h.CreateQuery, perms.Require(auth.PermQueryCreate))
	qg.PATCH("/:id", h.UpdateQuery, perms.Require(auth.PermQueryUpdate))

	cg := api.Group("/comments")
	cg.POST("", h.CreateComment, perms.Require(auth.PermCommentCreate))
	cg.GET("", h.ListComments, perms.Require(auth.PermCommentList))
	cg.GET("/list_manager_comments", h.ListManagerThreads, perms.Require(auth.PermCommentManagerList))
	cg.PATCH("/markRead/manager", h.MarkReadManager, perms.Require(auth.PermCommentMarkRead))
	cg.PATCH("/markRead/claims/:refNumber", h.MarkReadClaim, perms.Require(auth.PermCommentMarkRead))
	cg.PATCH("/markRead/:hospitalId", h.MarkReadHospital, perms.Require(auth.PermCommentMarkRead))
}

// -- Enhancements --

func (h *Handler) CreateEnhancement(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in EnhancementCreateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	m, err := h.enhancements.Create(ctx, actor, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetEnhancement(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.enhancements.Get(ctx, actor, id)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateEnhancement(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in EnhancementUpdateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	m, err := h.enhancements.Update(ctx, actor, id, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

// -- Queries --

func (h *Handler) CreateQuery(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in QueryCreateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	m, err := h.queries.Create(ctx, actor, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateQuery(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var in QueryUpdateInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	m, err := h.queries.Update(ctx, actor, id, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

// -- Comments --

func (h *Handler) CreateComment(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	var in CommentInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	out, err := h.comments.Create(ctx, actor, in)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListComments(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	f := CommentFilter{}
	f.Type = visibility.CommentType(c.QueryParam("type"))
	if f.InsuranceRequestID, err = httpx.QueryUUID(c, "insuranceRequestId"); err != nil {
		return err
	}
	if f.HospitalID, err = httpx.QueryUUID(c, "hospitalId"); err != nil {
		return err
	}
	if f.CreatedBy, err = httpx.QueryUUID(c, "createdBy"); err != nil {
		return err
	}
	if f.Cursor, err = httpx.QueryUUID(c, "cursor"); err != nil {
		return err
	}
	if v := c.QueryParam("take"); v != "" {
		if f.Take, err = strconv.Atoi(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid take")
		}
	}

	page, err := h.comments.List(ctx, actor, f)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) MarkReadHospital(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	hospitalID, err := httpx.ParamUUID(c, "hospitalId")
	if err != nil {
		return err
	}
	n, err := h.comments.MarkReadForHospital(ctx, actor, hospitalID)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkReadClaim(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	n, err := h.comments.MarkReadForClaim(ctx, actor, c.Param("refNumber"))
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkReadManager(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	n, err := h.comments.MarkReadManagerThreads(ctx, actor)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) ListManagerThreads(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := auth.RequireActor(ctx)
	if err != nil {
		return err
	}
	out, err := h.comments.ListHospitalsWithManagerComments(ctx, actor)
	if err != nil {
		return apperror.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}
