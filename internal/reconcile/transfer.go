package reconcile

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
	"estate_backoffice/internal/services"
)

// TransferRequest moves a sale from one plot to another
type TransferRequest struct {
	OldPlotID      uint   `json:"old_plot_id"`
	NewPlotID      uint   `json:"new_plot_id"`
	Reason         string `json:"reason"`
	Notes          string `json:"notes"`
	IdempotencyKey string `json:"-"`
}

func (r *TransferRequest) normalize() error {
	if r.OldPlotID == 0 || r.NewPlotID == 0 {
		return fmt.Errorf("old_plot_id and new_plot_id are required: %w", ErrInvalidRequest)
	}
	if r.OldPlotID == r.NewPlotID {
		return ErrSamePlot
	}
	r.Reason = strings.TrimSpace(r.Reason)
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

// TransferSale cancels the sale on the old plot and opens a new sale on the new plot,
// carrying over what the buyer has paid. Any overpayment becomes a pending refund.
func (e *Engine) TransferSale(ctx context.Context, actor models.Actor, req TransferRequest) (*Result, error) {
	first, second := req.OldPlotID, req.NewPlotID
	if second < first {
		first, second = second, first
	}

	return e.execute(ctx, operation{
		kind:      models.WorkflowOperationTransfer,
		actor:     actor,
		key:       req.IdempotencyKey,
		request:   &req,
		subjectID: req.OldPlotID,
		lockKeys: []string{
			services.PlotLockKey(actor.TenantID, first),
			services.PlotLockKey(actor.TenantID, second),
		},
		validate: req.normalize,
		prepare: func(wf *models.ReconciliationWorkflow) {
			plotID := req.OldPlotID
			wf.PlotID = &plotID
		},
		run: func(tx *gorm.DB, wf *models.ReconciliationWorkflow, res *Result) error {
			return e.transferSale(tx, actor, req, wf, res)
		},
	})
}

func (e *Engine) transferSale(tx *gorm.DB, actor models.Actor, req TransferRequest, wf *models.ReconciliationWorkflow, res *Result) error {
	oldPlot, err := lockPlot(tx, actor.TenantID, req.OldPlotID)
	if err != nil {
		return err
	}
	if !oldPlot.IsOccupied() {
		return ErrPlotNotSold
	}
	oldSale, err := lockClient(tx, actor.TenantID, *oldPlot.ClientID)
	if err != nil {
		return err
	}
	if !oldSale.Status.CanTransitionTo(models.SaleStatusCancelled) {
		return ErrSaleNotActive
	}
	newPlot, err := lockPlot(tx, actor.TenantID, req.NewPlotID)
	if err != nil {
		return err
	}
	if newPlot.Status != models.PlotStatusAvailable || newPlot.ClientID != nil {
		return ErrPlotUnavailable
	}

	split := SplitTransfer(oldSale.TotalPaid, newPlot.Price)
	now := e.now()
	wfID := wf.ID
	wf.ClientID = &oldSale.ID

	status := models.SaleStatusOngoing
	if split.Completed {
		status = models.SaleStatusCompleted
	}
	newSale := models.Client{
		TenantID:            actor.TenantID,
		Name:                oldSale.Name,
		Email:               oldSale.Email,
		Phone:               oldSale.Phone,
		NationalID:          oldSale.NationalID,
		ProjectID:           newPlot.ProjectID,
		PlotID:              newPlot.ID,
		TotalPrice:          newPlot.Price,
		TotalPaid:           split.Carried,
		Balance:             split.Balance,
		Status:              status,
		PaymentPlan:         oldSale.PaymentPlan,
		InstallmentRule:     oldSale.InstallmentRule,
		InstallmentAmount:   oldSale.InstallmentAmount,
		InstallmentStart:    oldSale.InstallmentStart,
		NotificationChannel: oldSale.NotificationChannel,
		TransferredFromID:   &oldSale.ID,
	}
	if err := e.step(wf, "create_new_sale", func() (string, error) {
		if err := tx.Create(&newSale).Error; err != nil {
			return "", err
		}
		return fmt.Sprintf("client %d on plot %s, paid %s, balance %s",
			newSale.ID, newPlot.PlotNumber, money(split.Carried), money(split.Balance)), nil
	}); err != nil {
		return err
	}
	wf.Result.NewClientID = newSale.ID
	res.NewClient = &newSale

	if err := e.step(wf, "assign_new_plot", func() (string, error) {
		return fmt.Sprintf("plot %s %s -> %s", newPlot.PlotNumber, newPlot.Status, models.PlotStatusSold),
			tx.Model(newPlot).Updates(map[string]interface{}{
				"status":    models.PlotStatusSold,
				"client_id": newSale.ID,
			}).Error
	}); err != nil {
		return err
	}

	if split.Carried.IsPositive() {
		payment := models.Payment{
			TenantID:    actor.TenantID,
			ClientID:    newSale.ID,
			Amount:      split.Carried,
			Method:      models.PaymentMethodTransfer,
			Reference:   fmt.Sprintf("TRF-%d-%d", oldSale.ID, newSale.ID),
			PaymentDate: now,
			Notes:       fmt.Sprintf("Carried over from plot %s (client #%d)", oldPlot.PlotNumber, oldSale.ID),
			RecordedBy:  actor.UserID,
			WorkflowID:  &wfID,
		}
		if err := e.step(wf, "record_transfer_payment", func() (string, error) {
			if err := tx.Create(&payment).Error; err != nil {
				return "", err
			}
			return fmt.Sprintf("payment %d for %s", payment.ID, money(payment.Amount)), nil
		}); err != nil {
			return err
		}
		wf.Result.PaymentID = payment.ID
		res.Payment = &payment
	}

	if err := e.step(wf, "release_old_plot", func() (string, error) {
		return fmt.Sprintf("plot %s %s -> %s", oldPlot.PlotNumber, oldPlot.Status, models.PlotStatusAvailable),
			tx.Model(oldPlot).Updates(map[string]interface{}{
				"status":    models.PlotStatusAvailable,
				"client_id": nil,
			}).Error
	}); err != nil {
		return err
	}

	if err := e.step(wf, "cancel_old_sale", func() (string, error) {
		return fmt.Sprintf("client %d %s -> %s", oldSale.ID, oldSale.Status, models.SaleStatusCancelled),
			tx.Model(oldSale).Update("status", models.SaleStatusCancelled).Error
	}); err != nil {
		return err
	}

	refundStatus := models.RefundStatusNone
	if split.Refund.IsPositive() {
		refundStatus = models.RefundStatusPending
	}
	cs := models.CancelledSale{
		TenantID:              actor.TenantID,
		ClientID:              oldSale.ID,
		PlotID:                oldPlot.ID,
		ProjectID:             oldPlot.ProjectID,
		ClientName:            oldSale.Name,
		PlotNumber:            oldPlot.PlotNumber,
		TotalPrice:            oldSale.TotalPrice,
		TotalPaid:             oldSale.TotalPaid,
		RefundAmount:          split.Refund,
		NetRefund:             split.Refund,
		ExpensedAmount:        split.Refund,
		RefundStatus:          refundStatus,
		OutcomeType:           models.OutcomeTransferred,
		Reason:                req.Reason,
		Notes:                 req.Notes,
		TransferredToClientID: &newSale.ID,
		TransferredToPlotID:   &newPlot.ID,
		CancelledBy:           actor.UserID,
		CancelledAt:           now,
		WorkflowID:            &wfID,
	}
	if err := e.step(wf, "create_cancelled_sale", func() (string, error) {
		if err := tx.Create(&cs).Error; err != nil {
			return "", err
		}
		return fmt.Sprintf("cancelled sale %d, refund due %s", cs.ID, money(split.Refund)), nil
	}); err != nil {
		return err
	}
	wf.CancelledSaleID = &cs.ID
	wf.Result.CancelledSaleID = cs.ID
	res.CancelledSale = &cs

	if split.Refund.IsPositive() {
		exp := refundExpense(actor, &cs, split.Refund, models.ExpenseStatusPending, wfID, now)
		if err := e.step(wf, "record_refund_expense", func() (string, error) {
			if err := tx.Create(&exp).Error; err != nil {
				return "", err
			}
			return fmt.Sprintf("pending expense %d for %s", exp.ID, money(exp.Amount)), nil
		}); err != nil {
			return err
		}
		wf.Result.ExpenseIDs = append(wf.Result.ExpenseIDs, exp.ID)
		res.Expenses = append(res.Expenses, exp)
	}

	return e.step(wf, "enqueue_notification", func() (string, error) {
		return e.notify(tx, actor.TenantID, &newSale, "Sale transferred", outbox.TemplateSaleTransferred, map[string]string{
			"client_name": newSale.Name,
			"old_plot":    oldPlot.PlotNumber,
			"new_plot":    newPlot.PlotNumber,
			"carried":     money(split.Carried),
			"balance":     money(split.Balance),
			"refund":      money(split.Refund),
		})
	})
}
