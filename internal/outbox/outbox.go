// Package outbox writes notification tasks in the same transaction as the change they announce.
package outbox

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"estate_backoffice/internal/models"
)

// TaskSendNotification is the worker task that delivers NotificationArgs
const TaskSendNotification = "send_notification"

// Message templates. $name and $email come from the recipient, every other
// placeholder from NotificationArgs.Vars.
const (
	TemplateSaleCancelled = "Hello $name, the sale of plot $plot_number ($client_name) was cancelled. " +
		"Net refund: $net_refund, retained: $retained, refund status: $refund_status."
	TemplateSaleTransferred = "Hello $name, the sale for $client_name was moved from plot $old_plot to plot $new_plot. " +
		"Carried over: $carried, balance: $balance, refund due: $refund."
	TemplateRefundUpdated = "Hello $name, the refund for $client_name (plot $plot_number) is now $refund_status. " +
		"Net refund: $net_refund, recorded so far: $expensed."
	TemplatePaymentReceipt = "Hello $name, we received $amount for plot $plot_number ($reference). " +
		"Total paid: $total_paid, balance: $balance."
	TemplateInstallmentReminder = "Hello $name, your installment of $amount for plot $plot_number is due on $due_date. " +
		"Outstanding balance: $balance."
)

// Recipient is one addressee. Operators (UserID set) are reached through their
// notification preference; buyers through Channel and their contact details.
type Recipient struct {
	UserID  uint                       `json:"user_id,omitempty"`
	Name    string                     `json:"name"`
	Email   string                     `json:"email,omitempty"`
	Phone   string                     `json:"phone,omitempty"`
	Channel models.NotificationChannel `json:"channel,omitempty"`
}

// NotificationArgs defines the arguments for a notification task
type NotificationArgs struct {
	Recipients   []Recipient       `json:"recipients"`
	Template     string            `json:"template"`
	Subject      string            `json:"subject"`
	Vars         map[string]string `json:"vars,omitempty"`
	AttemptCount int               `json:"attempt_count"`
}

// BuildScheduledTask is a helper to build ScheduledTask records generically
func BuildScheduledTask(tenantID uint, taskName string, args interface{}, due time.Time, recurringInterval *string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var mapArgs map[string]interface{}
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	if maxAttempt < 1 {
		maxAttempt = 1
	}

	return &models.ScheduledTask{
		TenantID:          tenantID,
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// DecodeArgs converts a task's argument map back into a typed struct
func DecodeArgs(raw map[string]interface{}, dest interface{}) error {
	argsBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(argsBytes, dest); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return nil
}

// Enqueue inserts a send_notification task using tx. It returns nil when there is
// nobody to notify.
func Enqueue(tx *gorm.DB, tenantID uint, args NotificationArgs, due time.Time, maxAttempt int) (*models.ScheduledTask, error) {
	if len(args.Recipients) == 0 {
		return nil, nil
	}
	task, err := BuildScheduledTask(tenantID, TaskSendNotification, args, due, nil, models.ScheduledTaskTypeOneTime, maxAttempt)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(task).Error; err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	return task, nil
}

// AdminRecipients lists the tenant's admin operators
func AdminRecipients(tx *gorm.DB, tenantID uint) ([]Recipient, error) {
	var admins []models.User
	if err := tx.Where("tenant_id = ? AND role = ?", tenantID, models.UserRoleAdmin).
		Order("id").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}
	recipients := make([]Recipient, 0, len(admins))
	for _, u := range admins {
		recipients = append(recipients, Recipient{UserID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone})
	}
	return recipients, nil
}

// ClientRecipient addresses a buyer, or returns false when the buyer opted out
// or has no contact for their channel
func ClientRecipient(c models.Client) (Recipient, bool) {
	r := Recipient{Name: c.Name, Email: c.Email, Phone: c.Phone, Channel: c.NotificationChannel}
	switch c.NotificationChannel {
	case models.NotificationChannelEmail:
		return r, c.Email != ""
	case models.NotificationChannelWhatsapp:
		return r, c.Phone != ""
	}
	return r, false
}

// Render substitutes placeholders in template. Longer names are replaced first so
// $amount never clobbers $amount_paid.
func Render(template string, r Recipient, vars map[string]string) string {
	values := map[string]string{"name": r.Name, "email": r.Email}
	for k, v := range vars {
		values[k] = v
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "$"+k, values[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
