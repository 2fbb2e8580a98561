package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserEmailKey contextKey = "user_email"
)

// Application roles stored on the user's profile.
const (
	RoleCustomer  = "customer"
	RoleTherapist = "therapist"
	RoleAdmin     = "admin"
)

// Claims are the identity provider's access token claims. The subject is the
// user id; the application role lives on the profile, not in the token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256 validation with a shared secret.
	SigningKey []byte
	// Optional lets requests without an Authorization header through anonymously.
	Optional bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keys *KeySet
	methods := []string{"HS256"}
	if len(cfg.SigningKey) == 0 {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" && cfg.Issuer != "" {
			ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
			if u, err := DiscoverJWKS(ctx, nil, cfg.Issuer); err == nil {
				jwksURL = u
			}
			cancel()
		}
		keys = NewKeySet(jwksURL, defaultKeyTTL)
		methods = []string{"RS256", "ES256"}
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if cfg.Optional {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
			if keys != nil {
				keyFunc = keys.Keyfunc(c.Request().Context())
			}
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if _, err := uuid.Parse(claims.Subject); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			ctx := WithEmail(c.Request().Context(), claims.Email)
			setUser(c, WithUser(ctx, claims.Subject, nil), claims.Subject)
			return next(c)
		}
	}
}

// DevAuthMiddleware trusts X-Dev-User-ID and X-Dev-Role headers. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := c.Request().Header.Get("X-Dev-User-ID")
			if uid == "" {
				return next(c)
			}
			if _, err := uuid.Parse(uid); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid X-Dev-User-ID")
			}
			var roles []string
			if role := c.Request().Header.Get("X-Dev-Role"); role != "" {
				roles = []string{role}
			}
			setUser(c, WithUser(c.Request().Context(), uid, roles), uid)
			return next(c)
		}
	}
}

func setUser(c echo.Context, ctx context.Context, uid string) {
	c.Set("user_id", uid)
	c.SetRequest(c.Request().WithContext(ctx))
}

// WithUser returns ctx carrying the authenticated user and roles.
func WithUser(ctx context.Context, userID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UserRolesKey, roles)
}

func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, UserEmailKey, email)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// UserUUID returns the authenticated user id, or false for anonymous requests.
func UserUUID(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

// HasRole reports whether the context's user holds role.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
