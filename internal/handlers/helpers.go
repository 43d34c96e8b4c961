package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/middleware"
	"estate_backoffice/internal/models"
)

// IdempotencyKeyHeader carries the client-chosen key of a reconciliation request
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set when a reconciliation response was served from a completed workflow
const ReplayedHeader = "Idempotent-Replayed"

func actorOf(c echo.Context) (models.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return models.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	return actor, nil
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func queryUint(c echo.Context, name string) (uint, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(v), nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return v, nil
}

func bindJSON(c echo.Context, dest interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
