package middleware

import (
	"context"
	"errors"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/services"
)

// SessionCookieName is the cookie holding the Firebase session
const SessionCookieName = "session"

const (
	contextActor    = "actor"
	contextOperator = "operator"
)

// SessionVerifier verifies a Firebase session cookie. *auth.Client satisfies it.
type SessionVerifier interface {
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
}

// OperatorResolver maps a verified Firebase UID to an operator
type OperatorResolver interface {
	FindOperatorByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})
}

// RequireAuth returns a middleware that verifies the session cookie and resolves the
// operator. Handlers read the result with ActorFrom.
func RequireAuth(verifier SessionVerifier, operators OperatorResolver, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication is not configured")
			}

			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
			}

			ctx := c.Request().Context()
			token, err := verifier.VerifySessionCookie(ctx, cookie.Value)
			if err != nil {
				ClearSessionCookie(c)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}

			operator, err := operators.FindOperatorByFirebaseUID(ctx, token.UID)
			if errors.Is(err, services.ErrNotFound) {
				log.Info("session for unknown operator", zap.String("uid", token.UID))
				return echo.NewHTTPError(http.StatusForbidden, "no operator account for this user")
			}
			if err != nil {
				return err
			}

			c.Set(contextOperator, operator)
			c.Set(contextActor, models.Actor{
				TenantID: operator.TenantID,
				UserID:   operator.ID,
				Role:     operator.Role,
			})
			return next(c)
		}
	}
}

// RequireSuperAdmin restricts a group to superadmins. It must run after RequireAuth.
func RequireSuperAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok || !actor.IsSuperAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "superadmin only")
			}
			return next(c)
		}
	}
}

// ActorFrom returns the actor set by RequireAuth
func ActorFrom(c echo.Context) (models.Actor, bool) {
	actor, ok := c.Get(contextActor).(models.Actor)
	return actor, ok
}

// OperatorFrom returns the signed-in operator set by RequireAuth
func OperatorFrom(c echo.Context) (*models.User, bool) {
	op, ok := c.Get(contextOperator).(*models.User)
	return op, ok
}

// SetActor stores an actor on the context. Used by tests and internal callers.
func SetActor(c echo.Context, actor models.Actor) {
	c.Set(contextActor, actor)
}
