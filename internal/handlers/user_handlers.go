package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/services"
)

// UserHandler serves a tenant's operators and their notification preferences
type UserHandler struct {
	svc *services.TenantService
}

func NewUserHandler(svc *services.TenantService) *UserHandler {
	return &UserHandler{svc: svc}
}

// ListUsers returns the operators of the actor's tenant
func (h *UserHandler) ListUsers(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	users, err := h.svc.ListOperators(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// CreateUser adds an operator. The Firebase account must already exist.
func (h *UserHandler) CreateUser(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in services.OperatorInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	user, err := h.svc.CreateOperator(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// GetUserPreference returns the stored preference, or the email default
func (h *UserHandler) GetUserPreference(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	pref, err := h.svc.GetPreference(c.Request().Context(), actor, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pref)
}

func (h *UserHandler) UpdateUserPreference(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	userID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.PreferenceInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	pref, err := h.svc.UpdatePreference(c.Request().Context(), actor, userID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pref)
}

// ConsoleHandler is the superadmin provisioning console
type ConsoleHandler struct {
	svc *services.TenantService
}

func NewConsoleHandler(svc *services.TenantService) *ConsoleHandler {
	return &ConsoleHandler{svc: svc}
}

// ProvisionResponse is the reply to a provisioned tenant
type ProvisionResponse struct {
	Tenant *models.Tenant `json:"tenant"`
	Admin  *models.User   `json:"admin"`
}

func (h *ConsoleHandler) ListTenants(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	tenants, err := h.svc.ListTenants(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *ConsoleHandler) CreateTenant(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in services.TenantInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	tenant, admin, err := h.svc.ProvisionTenant(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ProvisionResponse{Tenant: tenant, Admin: admin})
}
