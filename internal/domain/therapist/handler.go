package therapist

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/auth"
	"github.com/islandmassage/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public directory
	api.GET("/therapists", h.ListPublic)
	api.GET("/therapists/:id", h.GetPublic)

	// Own profile
	own := api.Group("/therapist", auth.RequireRole(auth.RoleTherapist))
	own.GET("/profile", h.GetOwn)
	own.PUT("/profile", h.UpsertProfile)
	own.PUT("/services", h.SetServices)
	own.PUT("/location", h.SetLocation)

	// Review
	admin := api.Group("/admin/therapists", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListByStatus)
	admin.POST("/:id/approve", h.Approve)
	admin.POST("/:id/reject", h.Reject)
}

func (h *Handler) ListPublic(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListPublic(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetPublic(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetPublic(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetOwn(c echo.Context) error {
	ctx := c.Request().Context()
	uid, _ := auth.UserUUID(ctx)
	t, err := h.svc.Get(ctx, uid)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpsertProfile(c echo.Context) error {
	var in ProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	uid, _ := auth.UserUUID(ctx)
	t, err := h.svc.UpsertProfile(ctx, uid, in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) SetServices(c echo.Context) error {
	var in ServicesInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	uid, _ := auth.UserUUID(ctx)
	ids, err := h.svc.SetServices(ctx, uid, in.ServiceIDs)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"service_ids": ids})
}

func (h *Handler) SetLocation(c echo.Context) error {
	var in LocationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	uid, _ := auth.UserUUID(ctx)
	if err := h.svc.SetLocation(ctx, uid, in); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByStatus(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListByStatus(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Approve(c echo.Context) error {
	return h.review(c, h.svc.Approve, StatusApproved)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.review(c, h.svc.Reject, StatusRejected)
}

func (h *Handler) review(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error, status string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id.String(), "onboarding_status": status})
}
