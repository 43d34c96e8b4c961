package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estate_backoffice/internal/models"
)

func TestBuildScheduledTask(t *testing.T) {
	due := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	args := NotificationArgs{
		Recipients: []Recipient{{Name: "Budi", Email: "budi@example.com", Channel: models.NotificationChannelEmail}},
		Template:   TemplatePaymentReceipt,
		Subject:    "Receipt",
		Vars:       map[string]string{"amount": "100"},
	}

	task, err := BuildScheduledTask(4, TaskSendNotification, args, due, nil, models.ScheduledTaskTypeOneTime, 0)
	require.NoError(t, err)
	assert.Equal(t, uint(4), task.TenantID)
	assert.Equal(t, TaskSendNotification, task.TaskName)
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, 1, task.MaxAttempt)
	assert.Equal(t, due, task.Due)

	var decoded NotificationArgs
	require.NoError(t, DecodeArgs(task.Arguments, &decoded))
	assert.Equal(t, args, decoded)
}

func TestRender(t *testing.T) {
	r := Recipient{Name: "Sari", Email: "sari@example.com"}
	vars := map[string]string{"amount": "10", "amount_paid": "99", "plot_number": "A-1"}

	out := Render("$name paid $amount_paid of $amount on $plot_number ($email) $unknown", r, vars)
	assert.Equal(t, "Sari paid 99 of 10 on A-1 (sari@example.com) $unknown", out)
}

func TestClientRecipient(t *testing.T) {
	tests := []struct {
		name   string
		client models.Client
		ok     bool
	}{
		{"email with address", models.Client{Email: "a@example.com", NotificationChannel: models.NotificationChannelEmail}, true},
		{"email without address", models.Client{NotificationChannel: models.NotificationChannelEmail}, false},
		{"whatsapp with phone", models.Client{Phone: "0812", NotificationChannel: models.NotificationChannelWhatsapp}, true},
		{"opted out", models.Client{Email: "a@example.com", NotificationChannel: models.NotificationChannelNone}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ClientRecipient(tt.client)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
