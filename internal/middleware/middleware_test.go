package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/reconcile"
	"estate_backoffice/internal/services"
)

type fakeVerifier map[string]string

func (f fakeVerifier) VerifySessionCookie(_ context.Context, cookie string) (*auth.Token, error) {
	uid, ok := f[cookie]
	if !ok {
		return nil, errors.New("session cookie is invalid")
	}
	return &auth.Token{UID: uid}, nil
}

type fakeOperators map[string]*models.User

func (f fakeOperators) FindOperatorByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	u, ok := f[uid]
	if !ok {
		return nil, services.ErrNotFound
	}
	return u, nil
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(zap.NewNop())
	return e
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	operators := fakeOperators{
		"uid-admin": {ID: 7, TenantID: 3, Role: models.UserRoleAdmin},
		"uid-root":  {ID: 1, Role: models.UserRoleSuperAdmin},
	}
	verifier := fakeVerifier{"good": "uid-admin", "root": "uid-root", "stranger": "uid-none"}

	e := newTestEcho()
	g := e.Group("", RequireAuth(verifier, operators, zap.NewNop()))
	g.GET("/me", func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, actor)
	})
	g.GET("/console", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireSuperAdmin())

	tests := []struct {
		name   string
		path   string
		cookie string
		status int
	}{
		{"no cookie", "/me", "", http.StatusUnauthorized},
		{"invalid cookie", "/me", "forged", http.StatusUnauthorized},
		{"unknown operator", "/me", "stranger", http.StatusForbidden},
		{"operator", "/me", "good", http.StatusOK},
		{"admin on console", "/console", "good", http.StatusForbidden},
		{"superadmin on console", "/console", "root", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var actor models.Actor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
	assert.Equal(t, models.Actor{TenantID: 3, UserID: 7, Role: models.UserRoleAdmin}, actor)
}

func TestRequireAuth_NotConfigured(t *testing.T) {
	e := newTestEcho()
	e.GET("/me", func(c echo.Context) error { return nil }, RequireAuth(nil, fakeOperators{}, zap.NewNop()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeError(t, rec).Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("plot 4: %w", reconcile.ErrNotFound), http.StatusNotFound, "not_found"},
		{"validation", fmt.Errorf("%w: name is required", services.ErrValidation), http.StatusBadRequest, "invalid_request"},
		{"refund rule", reconcile.ErrRefundDecrease, http.StatusUnprocessableEntity, "refund_rejected"},
		{"state", reconcile.ErrPlotNotSold, http.StatusConflict, "state_conflict"},
		{"idempotency", reconcile.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
		{"in progress", reconcile.ErrWorkflowInProgress, http.StatusConflict, "in_progress"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"step failure", &reconcile.StepError{Step: "release_plot", Err: errors.New("conn reset")}, http.StatusInternalServerError, "step_failed"},
		{"unknown", errors.New("pq: something odd"), http.StatusInternalServerError, "internal"},
		{"echo", echo.NewHTTPError(http.StatusNotFound), http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestErrorHandler_Messages(t *testing.T) {
	e := newTestEcho()
	e.GET("/step", func(c echo.Context) error {
		return &reconcile.StepError{Step: "release_plot", Err: errors.New("conn reset")}
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("pq: password authentication failed for user estate")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/step", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "no changes were saved")

	// Unknown failures never leak internals
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, ErrorResponse{Error: "internal server error", Code: "internal"}, decodeError(t, rec))
}
