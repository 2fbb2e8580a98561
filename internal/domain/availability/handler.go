package availability

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/islandmassage/booking/internal/platform/apperr"
	"github.com/islandmassage/booking/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/therapist/availability", auth.RequireRole(auth.RoleTherapist))
	g.GET("/slots", h.ListSlots)
	g.POST("/slots", h.CreateSlots)
	g.DELETE("/slots/:id", h.DeleteSlot)
	g.GET("/patterns", h.ListPatterns)
	g.POST("/patterns", h.CreatePattern)
	g.DELETE("/patterns/:id", h.DeletePattern)
	g.POST("/patterns/generate-slots", h.GenerateSlots)
}

func therapistID(c echo.Context) uuid.UUID {
	uid, _ := auth.UserUUID(c.Request().Context())
	return uid
}

func (h *Handler) ListSlots(c echo.Context) error {
	items, err := h.svc.ListSlots(c.Request().Context(), therapistID(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"slots": items})
}

func (h *Handler) CreateSlots(c echo.Context) error {
	var in SlotsInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.svc.CreateSlots(c.Request().Context(), therapistID(c), in.Slots)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"slots": created})
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), therapistID(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPatterns(c echo.Context) error {
	items, err := h.svc.ListPatterns(c.Request().Context(), therapistID(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"patterns": items})
}

func (h *Handler) CreatePattern(c echo.Context) error {
	var in PatternInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.CreatePattern(c.Request().Context(), therapistID(c), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) DeletePattern(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeletePattern(c.Request().Context(), therapistID(c), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GenerateSlots(c echo.Context) error {
	var in GenerateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.StartDate == "" || in.EndDate == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "start_date and end_date are required")
	}
	loc := h.svc.Location()
	from, err := ParseDate(in.StartDate, loc)
	if err != nil {
		return apperr.HTTP(err)
	}
	to, err := ParseDate(in.EndDate, loc)
	if err != nil {
		return apperr.HTTP(err)
	}
	res, err := h.svc.GenerateSlots(c.Request().Context(), therapistID(c), from, to)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
