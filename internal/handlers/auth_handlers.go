package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/middleware"
)

// SessionIssuer exchanges a Firebase ID token for a session cookie. *auth.Client satisfies it.
type SessionIssuer interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	issuer       SessionIssuer
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. issuer may be nil when Firebase is not configured.
func NewAuthHandler(issuer SessionIssuer, secureCookie bool) *AuthHandler {
	return &AuthHandler{issuer: issuer, secureCookie: secureCookie}
}

// HandleLogin verifies the Firebase ID token and creates a session cookie
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	if h.issuer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication is not configured")
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	ctx := c.Request().Context()
	if _, err := h.issuer.VerifyIDToken(ctx, tokenString); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	// Session cookie valid for 5 days
	expiresIn := time.Hour * 24 * 5
	cookieValue, err := h.issuer.SessionCookie(ctx, tokenString, expiresIn)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    cookieValue,
		MaxAge:   int(expiresIn.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

// HandleLogout clears the session cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	middleware.ClearSessionCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

// Me returns the signed-in operator
func (h *AuthHandler) Me(c echo.Context) error {
	op, ok := middleware.OperatorFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	return c.JSON(http.StatusOK, op)
}
