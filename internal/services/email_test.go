package services

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estate_backoffice/internal/config"
)

func TestEmailService_NotConfigured(t *testing.T) {
	svc := NewEmailService(config.SMTPConfig{Host: "smtp.example.com"})
	err := svc.SendEmail([]string{"a@example.com"}, "s", "b")
	assert.ErrorIs(t, err, ErrSMTPNotConfigured)
}

func TestEmailService_SendEmail(t *testing.T) {
	svc := NewEmailService(config.SMTPConfig{
		Host: "smtp.example.com", Port: "587", User: "u", Password: "p", From: "office@example.com",
	})

	var gotAddr string
	var gotMsg []byte
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		assert.Equal(t, "office@example.com", from)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, to)
		return nil
	}

	require.NoError(t, svc.SendEmail([]string{"a@example.com", "b@example.com"}, "Receipt", "Thanks"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Contains(t, string(gotMsg), "Subject: Receipt\r\n")
	assert.Contains(t, string(gotMsg), "To: a@example.com, b@example.com\r\n")

	svc.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("dial tcp: refused") }
	err := svc.SendEmail([]string{"a@example.com"}, "Receipt", "Thanks")
	assert.ErrorContains(t, err, "failed to send email")
}
