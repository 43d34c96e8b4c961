package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"estate_backoffice/internal/dbtest"
	"estate_backoffice/internal/models"
	"estate_backoffice/internal/outbox"
)

var taskNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeEmail struct {
	mu   sync.Mutex
	sent map[string]string
	fail map[string]bool
}

func (f *fakeEmail) SendEmail(to []string, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[to[0]] {
		return errors.New("mailbox unavailable")
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[to[0]] = body
	return nil
}

type fakeWhatsapp struct {
	sent map[string]string
}

func (f *fakeWhatsapp) SendMessage(_ context.Context, chatID, text string) error {
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[chatID] = text
	return nil
}

func newNotificationTask(t *testing.T, email *fakeEmail, wa *fakeWhatsapp) *SendNotificationTask {
	return &SendNotificationTask{
		log:        zaptest.NewLogger(t),
		email:      email,
		whatsapp:   wa,
		retryDelay: 5 * time.Minute,
		now:        func() time.Time { return taskNow },
	}
}

func notificationTask(t *testing.T, tenantID uint, args outbox.NotificationArgs, maxAttempt int) models.ScheduledTask {
	t.Helper()
	task, err := outbox.BuildScheduledTask(tenantID, outbox.TaskSendNotification, args, taskNow, nil, models.ScheduledTaskTypeOneTime, maxAttempt)
	require.NoError(t, err)
	return *task
}

func TestSendNotification_Channels(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)

	staff := models.User{TenantID: fx.Tenant.ID, Name: "Group Staff", FirebaseUID: "uid-g", Role: models.UserRoleStaff}
	require.NoError(t, db.Create(&staff).Error)
	require.NoError(t, db.Create(&models.UserNotifPreference{
		TenantID: fx.Tenant.ID, UserID: staff.ID,
		Channel:            models.NotificationChannelWhatsapp,
		WhatsappTargetType: models.WhatsappTargetTypeGroup,
		WhatsappGroupID:    "120363",
	}).Error)
	muted := models.User{TenantID: fx.Tenant.ID, Name: "Muted", FirebaseUID: "uid-m", Role: models.UserRoleStaff}
	require.NoError(t, db.Create(&muted).Error)
	require.NoError(t, db.Create(&models.UserNotifPreference{TenantID: fx.Tenant.ID, UserID: muted.ID, Channel: models.NotificationChannelNone}).Error)

	email := &fakeEmail{fail: map[string]bool{"bad@example.com": true}}
	wa := &fakeWhatsapp{}
	handler := newNotificationTask(t, email, wa)

	args := outbox.NotificationArgs{
		Template: "Hello $name, plot $plot_number",
		Subject:  "Update",
		Vars:     map[string]string{"plot_number": "A-01"},
		Recipients: []outbox.Recipient{
			{UserID: fx.Admin.ID, Name: "Admin", Email: fx.Admin.Email},
			{UserID: staff.ID, Name: "Group Staff"},
			{UserID: muted.ID, Name: "Muted", Email: "muted@example.com"},
			{Name: "Buyer", Phone: "0812", Channel: models.NotificationChannelWhatsapp},
			{Name: "Bad", Email: "bad@example.com", Channel: models.NotificationChannelEmail},
			{Name: "Opted out", Email: "x@example.com", Channel: models.NotificationChannelNone},
		},
	}
	task := notificationTask(t, fx.Tenant.ID, args, 3)
	require.NoError(t, db.Create(&task).Error)

	result, err := handler.HandleExecution(context.Background(), db, task)
	require.NoError(t, err)
	assert.Equal(t, 3, result["success"])
	assert.Equal(t, 2, result["skipped"])
	assert.Equal(t, 1, result["failure"])

	assert.Equal(t, "Hello Admin, plot A-01", email.sent[fx.Admin.Email])
	assert.Equal(t, "Hello Group Staff, plot A-01", wa.sent["120363@g.us"])
	assert.Equal(t, "Hello Buyer, plot A-01", wa.sent["0812"])
	assert.NotContains(t, email.sent, "muted@example.com")

	// Only the failed recipient is retried
	var retry models.ScheduledTask
	require.NoError(t, db.Where("id <> ?", task.ID).First(&retry).Error)
	assert.Equal(t, taskNow.Add(5*time.Minute), retry.Due.UTC())
	assert.Equal(t, fx.Tenant.ID, retry.TenantID)
	var retryArgs outbox.NotificationArgs
	require.NoError(t, outbox.DecodeArgs(retry.Arguments, &retryArgs))
	require.Len(t, retryArgs.Recipients, 1)
	assert.Equal(t, "Bad", retryArgs.Recipients[0].Name)
	assert.Equal(t, 1, retryArgs.AttemptCount)
}

func TestSendNotification_MaxAttempts(t *testing.T) {
	db := dbtest.Open(t)
	email := &fakeEmail{fail: map[string]bool{"bad@example.com": true}}
	handler := newNotificationTask(t, email, nil)

	task := notificationTask(t, 1, outbox.NotificationArgs{
		Template:     "x",
		AttemptCount: 2,
		Recipients:   []outbox.Recipient{{Name: "Bad", Email: "bad@example.com", Channel: models.NotificationChannelEmail}},
	}, 3)

	_, err := handler.HandleExecution(context.Background(), db, task)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	var n int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSendNotification_MissingTemplate(t *testing.T) {
	handler := newNotificationTask(t, &fakeEmail{}, nil)
	_, err := handler.HandleExecution(context.Background(), dbtest.Open(t), notificationTask(t, 1, outbox.NotificationArgs{}, 3))
	assert.True(t, IsPermanent(err))
}

func TestInstallmentReminder(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)

	soon := dbtest.AddPlot(t, db, fx, "I-01", "300000")
	c1 := dbtest.AddSale(t, db, fx, &soon, "0")
	later := dbtest.AddPlot(t, db, fx, "I-02", "300000")
	c2 := dbtest.AddSale(t, db, fx, &later, "0")

	setPlan := func(c models.Client, rule string, start time.Time) {
		require.NoError(t, db.Model(&c).Updates(map[string]interface{}{
			"payment_plan":       models.PaymentPlanInstallment,
			"installment_rule":   rule,
			"installment_amount": dbtest.Money("50000"),
			"installment_start":  start,
		}).Error)
	}
	setPlan(c1, "FREQ=MONTHLY;BYMONTHDAY=2", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	setPlan(c2, "FREQ=MONTHLY;BYMONTHDAY=20", time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))

	handler := &InstallmentReminderTask{log: zaptest.NewLogger(t), now: func() time.Time { return taskNow }}
	result, err := handler.HandleExecution(context.Background(), db, models.ScheduledTask{
		TenantID:   fx.Tenant.ID,
		Arguments:  map[string]interface{}{"horizon_days": float64(3)},
		MaxAttempt: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result["checked"])
	assert.Equal(t, 1, result["reminded"])

	var tasks []models.ScheduledTask
	require.NoError(t, db.Find(&tasks).Error)
	require.Len(t, tasks, 1)
	var args outbox.NotificationArgs
	require.NoError(t, outbox.DecodeArgs(tasks[0].Arguments, &args))
	assert.Equal(t, outbox.TemplateInstallmentReminder, args.Template)
	assert.Equal(t, "I-01", args.Vars["plot_number"])
	assert.Equal(t, "2026-03-02", args.Vars["due_date"])
	assert.Equal(t, "50000.00", args.Vars["amount"])
}

func TestInstallmentReminder_OncePerInstallment(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)
	plot := dbtest.AddPlot(t, db, fx, "I-03", "300000")
	client := dbtest.AddSale(t, db, fx, &plot, "0")
	require.NoError(t, db.Model(&client).Updates(map[string]interface{}{
		"payment_plan":       models.PaymentPlanInstallment,
		"installment_rule":   "FREQ=MONTHLY;BYMONTHDAY=4",
		"installment_amount": dbtest.Money("50000"),
		"installment_start":  time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC),
	}).Error)

	runOn := func(day time.Time) map[string]interface{} {
		handler := &InstallmentReminderTask{log: zaptest.NewLogger(t), now: func() time.Time { return day }}
		result, err := handler.HandleExecution(context.Background(), db, models.ScheduledTask{
			TenantID:   fx.Tenant.ID,
			Arguments:  map[string]interface{}{"horizon_days": float64(3)},
			MaxAttempt: 3,
		})
		require.NoError(t, err)
		return result
	}

	assert.Equal(t, 1, runOn(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))["reminded"])
	assert.Equal(t, 0, runOn(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))["reminded"])
	assert.Equal(t, 0, runOn(time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))["reminded"])

	var n int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// The next month's installment gets its own reminder
	assert.Equal(t, 1, runOn(time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC))["reminded"])

	var tasks []models.ScheduledTask
	require.NoError(t, db.Order("id").Find(&tasks).Error)
	require.Len(t, tasks, 2)
	var args outbox.NotificationArgs
	require.NoError(t, outbox.DecodeArgs(tasks[1].Arguments, &args))
	assert.Equal(t, "2026-04-04", args.Vars["due_date"])
}

func TestCheckPlotIntegrity(t *testing.T) {
	db := dbtest.Open(t)
	fx := dbtest.Seed(t, db)
	ctx := context.Background()

	ok := dbtest.AddPlot(t, db, fx, "K-01", "100000")
	dbtest.AddSale(t, db, fx, &ok, "10000")

	violations, err := CheckPlotIntegrity(ctx, db, fx.Tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, violations)

	orphan := dbtest.AddPlot(t, db, fx, "K-02", "100000")
	require.NoError(t, db.Model(&orphan).Update("status", models.PlotStatusSold).Error)

	drifted := dbtest.AddPlot(t, db, fx, "K-03", "100000")
	c := dbtest.AddSale(t, db, fx, &drifted, "10000")
	require.NoError(t, db.Model(&c).Update("balance", dbtest.Money("1")).Error)

	violations, err = CheckPlotIntegrity(ctx, db, fx.Tenant.ID)
	require.NoError(t, err)
	assert.Len(t, violations, 2)

	handler := &PlotIntegrityTask{log: zaptest.NewLogger(t)}
	result, err := handler.HandleExecution(ctx, db, models.ScheduledTask{TenantID: fx.Tenant.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, result["count"])
}

func TestDefineTasks(t *testing.T) {
	r := NewRegistry()
	DefineTasks(r, Deps{})
	assert.Equal(t, []string{
		TaskCheckPlotIntegrity,
		TaskInstallmentReminder,
		TaskLogInfo,
		outbox.TaskSendNotification,
	}, r.Names())
}
