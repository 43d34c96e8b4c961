package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/services"
)

// InventoryHandler serves projects and plots
type InventoryHandler struct {
	svc *services.InventoryService
}

func NewInventoryHandler(svc *services.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

func (h *InventoryHandler) ListProjects(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	projects, err := h.svc.ListProjects(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projects)
}

func (h *InventoryHandler) CreateProject(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in services.ProjectInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	project, err := h.svc.CreateProject(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, project)
}

// ListPlots accepts optional project_id and status filters
func (h *InventoryHandler) ListPlots(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	projectID, err := queryUint(c, "project_id")
	if err != nil {
		return err
	}
	plots, err := h.svc.ListPlots(c.Request().Context(), actor, services.PlotFilter{
		ProjectID: projectID,
		Status:    models.PlotStatus(c.QueryParam("status")),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, plots)
}

func (h *InventoryHandler) CreatePlot(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	projectID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.PlotInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	plot, err := h.svc.CreatePlot(c.Request().Context(), actor, projectID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, plot)
}
