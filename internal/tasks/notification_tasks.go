package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
	"estate_backoffice/internal/services"
)

var errNoSender = errors.New("no sender configured for channel")

// SendNotificationTask delivers outbox.NotificationArgs. Operators are reached through
// their stored preference, buyers through the channel on their sale.
type SendNotificationTask struct {
	log        *zap.Logger
	email      services.EmailSender
	whatsapp   services.WhatsappSender
	retryDelay time.Duration
	now        func() time.Time
}

// delivery is where one recipient's message goes
type delivery struct {
	channel models.NotificationChannel
	target  string
}

// HandleExecution handles sending notifications based on recipient preference
func (t *SendNotificationTask) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args outbox.NotificationArgs
	if err := outbox.DecodeArgs(task.Arguments, &args); err != nil {
		return nil, Permanent(err)
	}
	if args.Template == "" {
		return nil, Permanent(fmt.Errorf("template is missing"))
	}
	subject := args.Subject
	if subject == "" {
		subject = "Notification"
	}

	total := len(args.Recipients)
	successCount := 0
	skippedCount := 0
	var failures []string
	var failed []outbox.Recipient

	for _, r := range args.Recipients {
		d, err := t.resolve(ctx, db, r)
		if err != nil {
			t.log.Warn("notification preference lookup failed", zap.String("recipient", r.Name), zap.Error(err))
			failures = append(failures, fmt.Sprintf("%s: %v", r.Name, err))
			failed = append(failed, r)
			continue
		}
		if d.channel == models.NotificationChannelNone || d.target == "" {
			skippedCount++
			continue
		}

		msg := outbox.Render(args.Template, r, args.Vars)
		switch d.channel {
		case models.NotificationChannelEmail:
			err = t.sendEmail(d.target, subject, msg)
		case models.NotificationChannelWhatsapp:
			err = t.sendWhatsapp(ctx, d.target, msg)
		default:
			t.log.Warn("unsupported notification channel", zap.String("channel", string(d.channel)), zap.String("recipient", r.Name))
			skippedCount++
			continue
		}

		if err != nil {
			t.log.Warn("notification delivery failed",
				zap.String("recipient", r.Name),
				zap.String("channel", string(d.channel)),
				zap.Error(err),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", r.Name, err))
			failed = append(failed, r)
			continue
		}
		successCount++
	}

	result := map[string]interface{}{
		"total":   total,
		"success": successCount,
		"skipped": skippedCount,
		"failure": len(failed),
	}
	if len(failed) == 0 {
		return result, nil
	}
	result["errors"] = failures

	attempt := args.AttemptCount + 1
	if attempt >= task.MaxAttempt {
		return result, Permanent(fmt.Errorf("max attempts reached, failed to deliver to %d recipients", len(failed)))
	}

	retryArgs := args
	retryArgs.Recipients = failed
	retryArgs.AttemptCount = attempt
	retry, err := outbox.BuildScheduledTask(task.TenantID, outbox.TaskSendNotification, retryArgs,
		t.now().Add(t.retryDelay), nil, models.ScheduledTaskTypeOneTime, task.MaxAttempt)
	if err != nil {
		return result, Permanent(err)
	}
	if err := db.WithContext(ctx).Create(retry).Error; err != nil {
		return result, fmt.Errorf("reschedule notification: %w", err)
	}
	result["rescheduled_task_id"] = retry.ID
	t.log.Info("notification partially failed, rescheduled",
		zap.Uint("task_id", task.ID),
		zap.Uint("retry_task_id", retry.ID),
		zap.Int("failed", len(failed)),
		zap.Int("attempt", attempt+1),
	)
	return result, nil
}

func (t *SendNotificationTask) resolve(ctx context.Context, db *gorm.DB, r outbox.Recipient) (delivery, error) {
	if r.UserID == 0 {
		switch r.Channel {
		case models.NotificationChannelEmail:
			return delivery{channel: r.Channel, target: r.Email}, nil
		case models.NotificationChannelWhatsapp:
			return delivery{channel: r.Channel, target: r.Phone}, nil
		}
		return delivery{channel: models.NotificationChannelNone}, nil
	}

	var pref models.UserNotifPreference
	err := db.WithContext(ctx).Where("user_id = ?", r.UserID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return delivery{channel: models.NotificationChannelEmail, target: r.Email}, nil
	}
	if err != nil {
		return delivery{}, err
	}

	switch pref.Channel {
	case models.NotificationChannelEmail:
		return delivery{channel: pref.Channel, target: r.Email}, nil
	case models.NotificationChannelWhatsapp:
		if pref.WhatsappTargetType == models.WhatsappTargetTypeGroup {
			group := pref.WhatsappGroupID
			if group != "" && !strings.HasSuffix(group, "@g.us") {
				group += "@g.us"
			}
			return delivery{channel: pref.Channel, target: group}, nil
		}
		return delivery{channel: pref.Channel, target: r.Phone}, nil
	}
	return delivery{channel: pref.Channel}, nil
}

func (t *SendNotificationTask) sendEmail(to, subject, body string) error {
	if t.email == nil {
		return errNoSender
	}
	return t.email.SendEmail([]string{to}, subject, body)
}

func (t *SendNotificationTask) sendWhatsapp(ctx context.Context, chatID, text string) error {
	if t.whatsapp == nil {
		return errNoSender
	}
	return t.whatsapp.SendMessage(ctx, chatID, text)
}
