package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/services"
)

// ExpenseHandler serves the expense ledger and the tenant summary report
type ExpenseHandler struct {
	expenses *services.ExpenseService
	reports  *services.ReportService
}

func NewExpenseHandler(expenses *services.ExpenseService, reports *services.ReportService) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, reports: reports}
}

func (h *ExpenseHandler) ListExpenses(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	cancelledSaleID, err := queryUint(c, "cancelled_sale_id")
	if err != nil {
		return err
	}
	expenses, err := h.expenses.ListExpenses(c.Request().Context(), actor, services.ExpenseFilter{
		Category:        c.QueryParam("category"),
		Status:          models.ExpenseStatus(c.QueryParam("status")),
		CancelledSaleID: cancelledSaleID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, expenses)
}

// CreateExpense records a manual expense. Refunds only come from reconciliation.
func (h *ExpenseHandler) CreateExpense(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in services.ExpenseInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	expense, err := h.expenses.CreateExpense(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, expense)
}

func (h *ExpenseHandler) Summary(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	summary, err := h.reports.Summary(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
