package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/services"
)

// SalesHandler serves clients (sales), their payments and installment schedules
type SalesHandler struct {
	svc *services.SalesService
}

func NewSalesHandler(svc *services.SalesService) *SalesHandler {
	return &SalesHandler{svc: svc}
}

// PaymentResponse is the reply to a recorded payment
type PaymentResponse struct {
	Payment *models.Payment `json:"payment"`
	Client  *models.Client  `json:"client"`
}

func (h *SalesHandler) ListClients(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	projectID, err := queryUint(c, "project_id")
	if err != nil {
		return err
	}
	clients, err := h.svc.ListClients(c.Request().Context(), actor, services.ClientFilter{
		Status:    models.SaleStatus(c.QueryParam("status")),
		ProjectID: projectID,
		Search:    c.QueryParam("q"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clients)
}

func (h *SalesHandler) CreateSale(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in services.CreateSaleInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	client, err := h.svc.CreateSale(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, client)
}

func (h *SalesHandler) GetClient(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	client, err := h.svc.GetClient(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, client)
}

func (h *SalesHandler) ListPayments(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	payments, err := h.svc.ListPayments(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *SalesHandler) RecordPayment(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.PaymentInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	payment, client, err := h.svc.RecordPayment(c.Request().Context(), actor, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, PaymentResponse{Payment: payment, Client: client})
}

// Schedule lists upcoming installments. The service picks a default when limit is absent
func (h *SalesHandler) Schedule(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	dues, err := h.svc.InstallmentSchedule(c.Request().Context(), actor, id, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dues)
}
