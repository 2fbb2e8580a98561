package account

import (
	"net/http"

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

// RegisterRoutes mounts the profile endpoints. limit guards sign-up.
func (h *Handler) RegisterRoutes(api *echo.Group, limit echo.MiddlewareFunc) {
	api.GET("/me", h.Me, auth.RequireAuth())
	api.POST("/auth/ensure-profile", h.EnsureProfile, limit, auth.RequireAuth())
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	uid, _ := auth.UserUUID(ctx)
	p, err := h.svc.Get(ctx, uid)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) EnsureProfile(c echo.Context) error {
	var req EnsureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	uid, _ := auth.UserUUID(ctx)
	p, created, err := h.svc.EnsureProfile(ctx, uid, auth.EmailFromContext(ctx), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	if created {
		return c.JSON(http.StatusCreated, p)
	}
	return c.JSON(http.StatusOK, p)
}
