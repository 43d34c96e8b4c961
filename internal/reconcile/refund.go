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

// RefundUpdateRequest revises a cancelled sale's refund. Nil amounts keep the stored value.
type RefundUpdateRequest struct {
	CancelledSaleID uint                `json:"cancelled_sale_id"`
	RefundStatus    models.RefundStatus `json:"refund_status"`
	RefundAmount    *decimal.Decimal    `json:"refund_amount,omitempty"`
	CancellationFee *decimal.Decimal    `json:"cancellation_fee,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	IdempotencyKey  string              `json:"-"`
}

func (r *RefundUpdateRequest) normalize() error {
	if r.CancelledSaleID == 0 {
		return fmt.Errorf("cancelled_sale_id is required: %w", ErrInvalidRequest)
	}
	if !r.RefundStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRefundStatus, r.RefundStatus)
	}
	if (r.RefundAmount != nil && r.RefundAmount.IsNegative()) ||
		(r.CancellationFee != nil && r.CancellationFee.IsNegative()) {
		return ErrInvalidAmount
	}
	if r.Notes != nil {
		notes := strings.TrimSpace(*r.Notes)
		r.Notes = &notes
	}
	return nil
}

// UpdateRefund moves a cancelled sale's refund forward. Only the part of the net
// refund not yet recorded becomes a new Expense, and reaching a refunded status
// settles any pending refund expenses for the sale.
func (e *Engine) UpdateRefund(ctx context.Context, actor models.Actor, req RefundUpdateRequest) (*Result, error) {
	return e.execute(ctx, operation{
		kind:      models.WorkflowOperationRefundUpdate,
		actor:     actor,
		key:       req.IdempotencyKey,
		request:   &req,
		subjectID: req.CancelledSaleID,
		lockKeys:  []string{services.CancelledSaleLockKey(actor.TenantID, req.CancelledSaleID)},
		validate:  req.normalize,
		prepare: func(wf *models.ReconciliationWorkflow) {
			id := req.CancelledSaleID
			wf.CancelledSaleID = &id
		},
		run: func(tx *gorm.DB, wf *models.ReconciliationWorkflow, res *Result) error {
			return e.updateRefund(tx, actor, req, wf, res)
		},
	})
}

func (e *Engine) updateRefund(tx *gorm.DB, actor models.Actor, req RefundUpdateRequest, wf *models.ReconciliationWorkflow, res *Result) error {
	cs, err := lockCancelledSale(tx, actor.TenantID, req.CancelledSaleID)
	if err != nil {
		return err
	}
	if !cs.RefundStatus.CanTransitionTo(req.RefundStatus) {
		return fmt.Errorf("%w: %s -> %s", ErrRefundTransition, cs.RefundStatus, req.RefundStatus)
	}

	refund, fee := cs.RefundAmount, cs.CancellationFee
	if req.RefundAmount != nil {
		refund = *req.RefundAmount
	}
	if req.CancellationFee != nil {
		fee = *req.CancellationFee
	}
	net := NetRefund(refund, fee)
	if net.GreaterThan(cs.TotalPaid) {
		return ErrRefundExceedsPaid
	}
	if net.LessThan(cs.ExpensedAmount) {
		return ErrRefundDecrease
	}
	if req.RefundStatus == models.RefundStatusNone && cs.ExpensedAmount.IsPositive() {
		return fmt.Errorf("%w: %s already recorded", ErrRefundDecrease, money(cs.ExpensedAmount))
	}

	delta := decimal.Zero
	if req.RefundStatus.IsRefunded() && net.IsPositive() {
		delta = RefundDelta(net, cs.ExpensedAmount)
	}

	outcome := cs.OutcomeType
	if outcome != models.OutcomeTransferred {
		outcome = models.OutcomeFor(req.RefundStatus, net)
	}
	notes := cs.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}

	now := e.now()
	wfID := wf.ID
	wf.PlotID = &cs.PlotID
	wf.ClientID = &cs.ClientID
	previous := cs.RefundStatus

	cs.RefundAmount = refund
	cs.CancellationFee = fee
	cs.NetRefund = net
	cs.ExpensedAmount = cs.ExpensedAmount.Add(delta)
	cs.RefundStatus = req.RefundStatus
	cs.OutcomeType = outcome
	cs.Notes = notes

	if err := e.step(wf, "update_refund", func() (string, error) {
		return fmt.Sprintf("%s -> %s, net refund %s", previous, cs.RefundStatus, money(net)),
			tx.Model(cs).Updates(map[string]interface{}{
				"refund_amount":    cs.RefundAmount,
				"cancellation_fee": cs.CancellationFee,
				"net_refund":       cs.NetRefund,
				"expensed_amount":  cs.ExpensedAmount,
				"refund_status":    cs.RefundStatus,
				"outcome_type":     cs.OutcomeType,
				"notes":            cs.Notes,
			}).Error
	}); err != nil {
		return err
	}
	wf.Result.CancelledSaleID = cs.ID
	res.CancelledSale = cs

	if delta.IsPositive() {
		exp := refundExpense(actor, cs, delta, models.ExpenseStatusPaid, wfID, now)
		if err := e.step(wf, "record_refund_expense", func() (string, error) {
			if err := tx.Create(&exp).Error; err != nil {
				return "", err
			}
			return fmt.Sprintf("expense %d for %s", exp.ID, money(delta)), nil
		}); err != nil {
			return err
		}
		wf.Result.ExpenseIDs = append(wf.Result.ExpenseIDs, exp.ID)
		res.Expenses = append(res.Expenses, exp)
	}

	if cs.RefundStatus.IsRefunded() {
		if err := e.step(wf, "settle_pending_expenses", func() (string, error) {
			result := tx.Model(&models.Expense{}).
				Where("tenant_id = ? AND cancelled_sale_id = ? AND category = ? AND status = ?",
					actor.TenantID, cs.ID, models.ExpenseCategoryRefund, models.ExpenseStatusPending).
				Update("status", models.ExpenseStatusPaid)
			return fmt.Sprintf("%d expenses marked paid", result.RowsAffected), result.Error
		}); err != nil {
			return err
		}
	}

	return e.step(wf, "enqueue_notification", func() (string, error) {
		return e.notify(tx, actor.TenantID, nil, "Refund updated", outbox.TemplateRefundUpdated, map[string]string{
			"client_name":   cs.ClientName,
			"plot_number":   cs.PlotNumber,
			"refund_status": string(cs.RefundStatus),
			"net_refund":    money(cs.NetRefund),
			"expensed":      money(cs.ExpensedAmount),
		})
	})
}
