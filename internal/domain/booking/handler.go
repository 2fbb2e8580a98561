package booking

import (
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

// RegisterRoutes mounts the booking endpoints. limit guards the public
// intake endpoint.
func (h *Handler) RegisterRoutes(api *echo.Group, limit echo.MiddlewareFunc) {
	api.POST("/bookings", h.Create, limit)
	api.GET("/bookings/:id", h.Get, auth.RequireAuth())

	customer := api.Group("/customer/bookings", auth.RequireRole(auth.RoleCustomer))
	customer.GET("", h.ListForCustomer)
	customer.POST("/:id/cancel", h.Cancel)

	therapist := api.Group("/therapist/bookings", auth.RequireRole(auth.RoleTherapist))
	therapist.GET("", h.ListForTherapist)
	therapist.PATCH("/:id/status", h.SetStatus)

	admin := api.Group("/admin/bookings", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/:id/assign", h.Assign)
}

func userID(c echo.Context) uuid.UUID {
	uid, _ := auth.UserUUID(c.Request().Context())
	return uid
}

func bookingParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid booking id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var p Payload
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var customerID *uuid.UUID
	if uid, ok := auth.UserUUID(c.Request().Context()); ok {
		customerID = &uid
	}
	res, err := h.svc.Create(c.Request().Context(), customerID, p)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := bookingParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	b, err := h.svc.Get(ctx, userID(c), auth.HasRole(ctx, auth.RoleAdmin), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListForCustomer(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListForCustomer(c.Request().Context(), userID(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListForTherapist(c echo.Context) error {
	pg, err := pagination.FromContext(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListForTherapist(c.Request().Context(), userID(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := bookingParam(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Cancel(c.Request().Context(), userID(c), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := bookingParam(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.SetStatus(c.Request().Context(), userID(c), id, in.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"id": b.ID, "status": b.Status})
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := bookingParam(c)
	if err != nil {
		return err
	}
	var in AssignInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := h.svc.Assign(c.Request().Context(), id, in.TherapistID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}
