package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/islandmassage/booking/internal/platform/apperr"
)

// RoleResolver looks up the application role of a user.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (string, error)
}

// ResolveRoles loads the profile role for authenticated requests that do not
// already carry roles. Users without a profile proceed with no role.
func ResolveRoles(resolver RoleResolver, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			uid, ok := UserUUID(ctx)
			if !ok || len(RolesFromContext(ctx)) > 0 {
				return next(c)
			}

			role, err := resolver.RoleOf(ctx, uid)
			switch {
			case err == nil:
				c.SetRequest(c.Request().WithContext(WithUser(ctx, uid.String(), []string{role})))
			case apperr.Is(err, apperr.KindNotFound):
			default:
				logger.Error().Err(err).Str("user_id", uid.String()).Msg("resolve role")
				return apperr.HTTP(err)
			}
			return next(c)
		}
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := UserUUID(c.Request().Context()); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that checks if the user has at least one of
// the specified roles. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if _, ok := UserUUID(ctx); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			userRoles := RolesFromContext(ctx)
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
