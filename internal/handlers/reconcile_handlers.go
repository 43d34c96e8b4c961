package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/reconcile"
)

// ReconcileHandler serves cancellations, transfers, refund updates and their workflows
type ReconcileHandler struct {
	engine *reconcile.Engine
}

func NewReconcileHandler(engine *reconcile.Engine) *ReconcileHandler {
	return &ReconcileHandler{engine: engine}
}

type cancelBody struct {
	RefundAmount    decimal.Decimal     `json:"refund_amount"`
	CancellationFee decimal.Decimal     `json:"cancellation_fee"`
	RefundStatus    models.RefundStatus `json:"refund_status"`
	Reason          string              `json:"reason"`
	Notes           string              `json:"notes"`
}

type transferBody struct {
	NewPlotID uint   `json:"new_plot_id"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

type refundBody struct {
	RefundStatus    models.RefundStatus `json:"refund_status"`
	RefundAmount    *decimal.Decimal    `json:"refund_amount"`
	CancellationFee *decimal.Decimal    `json:"cancellation_fee"`
	Notes           *string             `json:"notes"`
}

// writeResult answers 201 for a fresh workflow and 200 for a replayed one
func writeResult(c echo.Context, res *reconcile.Result) error {
	if res.Replayed {
		c.Response().Header().Set(ReplayedHeader, "true")
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusCreated, res)
}

// CancelSale handles POST /plots/:id/cancel
func (h *ReconcileHandler) CancelSale(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	plotID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var body cancelBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	res, err := h.engine.CancelSale(c.Request().Context(), actor, reconcile.CancelRequest{
		PlotID:          plotID,
		RefundAmount:    body.RefundAmount,
		CancellationFee: body.CancellationFee,
		RefundStatus:    body.RefundStatus,
		Reason:          body.Reason,
		Notes:           body.Notes,
		IdempotencyKey:  c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return err
	}
	return writeResult(c, res)
}

// TransferSale handles POST /plots/:id/transfer, where :id is the plot being vacated
func (h *ReconcileHandler) TransferSale(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	oldPlotID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var body transferBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	res, err := h.engine.TransferSale(c.Request().Context(), actor, reconcile.TransferRequest{
		OldPlotID:      oldPlotID,
		NewPlotID:      body.NewPlotID,
		Reason:         body.Reason,
		Notes:          body.Notes,
		IdempotencyKey: c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return err
	}
	return writeResult(c, res)
}

// UpdateRefund handles PATCH /cancelled-sales/:id/refund
func (h *ReconcileHandler) UpdateRefund(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var body refundBody
	if err := bindJSON(c, &body); err != nil {
		return err
	}
	res, err := h.engine.UpdateRefund(c.Request().Context(), actor, reconcile.RefundUpdateRequest{
		CancelledSaleID: id,
		RefundStatus:    body.RefundStatus,
		RefundAmount:    body.RefundAmount,
		CancellationFee: body.CancellationFee,
		Notes:           body.Notes,
		IdempotencyKey:  c.Request().Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		return err
	}
	return writeResult(c, res)
}

func (h *ReconcileHandler) ListCancelledSales(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	projectID, err := queryUint(c, "project_id")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return err
	}
	sales, err := h.engine.ListCancelledSales(c.Request().Context(), actor, reconcile.CancelledSaleFilter{
		RefundStatus: models.RefundStatus(c.QueryParam("refund_status")),
		Outcome:      models.OutcomeType(c.QueryParam("outcome")),
		ProjectID:    projectID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sales)
}

func (h *ReconcileHandler) GetCancelledSale(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	cs, err := h.engine.GetCancelledSale(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *ReconcileHandler) GetWorkflow(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	wf, err := h.engine.GetWorkflow(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}
