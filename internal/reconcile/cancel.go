package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
	"estate_backoffice/internal/services"
)

// CancelRequest cancels the sale currently holding a plot
type CancelRequest struct {
	PlotID          uint                `json:"plot_id"`
	RefundAmount    decimal.Decimal     `json:"refund_amount"`
	CancellationFee decimal.Decimal     `json:"cancellation_fee"`
	RefundStatus    models.RefundStatus `json:"refund_status"`
	Reason          string              `json:"reason"`
	Notes           string              `json:"notes"`
	IdempotencyKey  string              `json:"-"`
}

func (r *CancelRequest) normalize() error {
	if r.PlotID == 0 {
		return fmt.Errorf("plot_id is required: %w", ErrInvalidRequest)
	}
	if r.RefundStatus == "" {
		r.RefundStatus = models.RefundStatusPending
	}
	if !r.RefundStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRefundStatus, r.RefundStatus)
	}
	if r.RefundAmount.IsNegative() || r.CancellationFee.IsNegative() {
		return ErrInvalidAmount
	}
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// CancelSale cancels the plot's sale, records the refund split and frees the plot.
//
// The CancelledSale snapshot, the refund Expense (only when the refund is already
// disbursed), the plot release, the sale cancellation and the notification are
// written in one transaction.
func (e *Engine) CancelSale(ctx context.Context, actor models.Actor, req CancelRequest) (*Result, error) {
	return e.execute(ctx, operation{
		kind:      models.WorkflowOperationCancel,
		actor:     actor,
		key:       req.IdempotencyKey,
		request:   &req,
		subjectID: req.PlotID,
		lockKeys:  []string{services.PlotLockKey(actor.TenantID, req.PlotID)},
		validate:  req.normalize,
		prepare: func(wf *models.ReconciliationWorkflow) {
			plotID := req.PlotID
			wf.PlotID = &plotID
		},
		run: func(tx *gorm.DB, wf *models.ReconciliationWorkflow, res *Result) error {
			return e.cancelSale(tx, actor, req, wf, res)
		},
	})
}

func (e *Engine) cancelSale(tx *gorm.DB, actor models.Actor, req CancelRequest, wf *models.ReconciliationWorkflow, res *Result) error {
	plot, err := lockPlot(tx, actor.TenantID, req.PlotID)
	if err != nil {
		return err
	}
	if !plot.IsOccupied() {
		return ErrPlotNotSold
	}
	client, err := lockClient(tx, actor.TenantID, *plot.ClientID)
	if err != nil {
		return err
	}
	if !client.Status.CanTransitionTo(models.SaleStatusCancelled) {
		return ErrSaleNotActive
	}

	net := NetRefund(req.RefundAmount, req.CancellationFee)
	if net.GreaterThan(client.TotalPaid) {
		return ErrRefundExceedsPaid
	}
	disbursed := net.IsPositive() && req.RefundStatus.IsRefunded()

	now := e.now()
	wfID := wf.ID
	wf.ClientID = &client.ID

	cs := models.CancelledSale{
		TenantID:        actor.TenantID,
		ClientID:        client.ID,
		PlotID:          plot.ID,
		ProjectID:       plot.ProjectID,
		ClientName:      client.Name,
		PlotNumber:      plot.PlotNumber,
		TotalPrice:      client.TotalPrice,
		TotalPaid:       client.TotalPaid,
		RefundAmount:    req.RefundAmount,
		CancellationFee: req.CancellationFee,
		NetRefund:       net,
		ExpensedAmount:  decimal.Zero,
		RefundStatus:    req.RefundStatus,
		OutcomeType:     models.OutcomeFor(req.RefundStatus, net),
		Reason:          req.Reason,
		Notes:           req.Notes,
		CancelledBy:     actor.UserID,
		CancelledAt:     now,
		WorkflowID:      &wfID,
	}
	if disbursed {
		cs.ExpensedAmount = net
	}
	if err := e.step(wf, "create_cancelled_sale", func() (string, error) {
		if err := tx.Create(&cs).Error; err != nil {
			return "", err
		}
		return fmt.Sprintf("cancelled sale %d, net refund %s", cs.ID, money(net)), nil
	}); err != nil {
		return err
	}
	wf.CancelledSaleID = &cs.ID
	wf.Result.CancelledSaleID = cs.ID
	res.CancelledSale = &cs

	if disbursed {
		exp := refundExpense(actor, &cs, net, models.ExpenseStatusPaid, wfID, now)
		if err := e.step(wf, "record_refund_expense", func() (string, error) {
			if err := tx.Create(&exp).Error; err != nil {
				return "", err
			}
			return fmt.Sprintf("expense %d for %s", exp.ID, money(net)), nil
		}); err != nil {
			return err
		}
		wf.Result.ExpenseIDs = append(wf.Result.ExpenseIDs, exp.ID)
		res.Expenses = append(res.Expenses, exp)
	}

	if err := e.step(wf, "release_plot", func() (string, error) {
		return fmt.Sprintf("plot %s %s -> %s", plot.PlotNumber, plot.Status, models.PlotStatusAvailable),
			tx.Model(plot).Updates(map[string]interface{}{
				"status":    models.PlotStatusAvailable,
				"client_id": nil,
			}).Error
	}); err != nil {
		return err
	}

	if err := e.step(wf, "cancel_sale", func() (string, error) {
		return fmt.Sprintf("client %d %s -> %s", client.ID, client.Status, models.SaleStatusCancelled),
			tx.Model(client).Update("status", models.SaleStatusCancelled).Error
	}); err != nil {
		return err
	}

	return e.step(wf, "enqueue_notification", func() (string, error) {
		return e.notify(tx, actor.TenantID, client, "Sale cancelled", outbox.TemplateSaleCancelled, map[string]string{
			"client_name":   cs.ClientName,
			"plot_number":   cs.PlotNumber,
			"net_refund":    money(cs.NetRefund),
			"retained":      money(cs.Retained()),
			"refund_status": string(cs.RefundStatus),
		})
	})
}
