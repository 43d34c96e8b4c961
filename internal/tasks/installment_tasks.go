package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
)

const defaultReminderHorizonDays = 3

// InstallmentReminderTask notifies buyers whose next installment is due within
// horizon_days. It is meant to run as a recurring task; a task with tenant 0
// covers every tenant. Each installment is reminded once.
type InstallmentReminderTask struct {
	log *zap.Logger
	now func() time.Time
}

func (t *InstallmentReminderTask) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	horizonDays := defaultReminderHorizonDays
	if v, ok := task.Arguments["horizon_days"].(float64); ok && v > 0 {
		horizonDays = int(v)
	}
	now := t.now()
	until := now.Add(time.Duration(horizonDays) * 24 * time.Hour)

	q := db.WithContext(ctx).Where("payment_plan = ? AND status = ? AND balance > 0",
		models.PaymentPlanInstallment, models.SaleStatusOngoing)
	if task.TenantID != 0 {
		q = q.Where("tenant_id = ?", task.TenantID)
	}
	var clients []models.Client
	if err := q.Order("id").Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("load installment sales: %w", err)
	}

	reminded, skipped := 0, 0
	for _, c := range clients {
		due, err := c.NextInstallment(now)
		if err != nil {
			t.log.Warn("invalid installment rule", zap.Uint("client_id", c.ID), zap.Error(err))
			skipped++
			continue
		}
		if due == nil || due.DueDate.After(until) {
			continue
		}
		if c.AlreadyReminded(due.DueDate) {
			skipped++
			continue
		}
		r, ok := outbox.ClientRecipient(c)
		if !ok {
			skipped++
			continue
		}

		var plot models.Plot
		if err := db.WithContext(ctx).Select("plot_number").First(&plot, c.PlotID).Error; err != nil {
			return nil, fmt.Errorf("load plot %d: %w", c.PlotID, err)
		}
		dueDate := due.DueDate
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Client{}).Where("id = ?", c.ID).
				Update("last_reminded_due", dueDate).Error; err != nil {
				return fmt.Errorf("mark client %d reminded: %w", c.ID, err)
			}
			_, err := outbox.Enqueue(tx, c.TenantID, outbox.NotificationArgs{
				Recipients: []outbox.Recipient{r},
				Template:   outbox.TemplateInstallmentReminder,
				Subject:    "Installment reminder",
				Vars: map[string]string{
					"amount":      due.Amount.StringFixed(2),
					"plot_number": plot.PlotNumber,
					"due_date":    dueDate.Format("2006-01-02"),
					"balance":     c.Balance.StringFixed(2),
				},
			}, now, task.MaxAttempt)
			return err
		})
		if err != nil {
			return nil, err
		}
		reminded++
	}

	return map[string]interface{}{
		"checked":  len(clients),
		"reminded": reminded,
		"skipped":  skipped,
	}, nil
}
