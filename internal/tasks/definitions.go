package tasks

import (
	"time"

	"go.uber.org/zap"

	"estate_backoffice/internal/outbox"
	"estate_backoffice/internal/services"
)

const (
	TaskLogInfo             = "log_info"
	TaskInstallmentReminder = "installment_reminder"
	TaskCheckPlotIntegrity  = "check_plot_integrity"
)

// Deps are the collaborators task handlers need
type Deps struct {
	Log      *zap.Logger
	Email    services.EmailSender
	Whatsapp services.WhatsappSender
	// RetryDelay is how long a partially failed notification waits before the next attempt
	RetryDelay time.Duration
	Now        func() time.Time
}

// DefineTasks registers all available tasks
func DefineTasks(r *Registry, deps Deps) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.RetryDelay <= 0 {
		deps.RetryDelay = 5 * time.Minute
	}

	r.Register(TaskLogInfo, (&LogInfoTask{log: deps.Log}).HandleExecution)

	notify := &SendNotificationTask{
		log:        deps.Log,
		email:      deps.Email,
		whatsapp:   deps.Whatsapp,
		retryDelay: deps.RetryDelay,
		now:        deps.Now,
	}
	r.Register(outbox.TaskSendNotification, notify.HandleExecution)

	r.Register(TaskInstallmentReminder, (&InstallmentReminderTask{log: deps.Log, now: deps.Now}).HandleExecution)
	r.Register(TaskCheckPlotIntegrity, (&PlotIntegrityTask{log: deps.Log}).HandleExecution)
}
